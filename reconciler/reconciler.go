// Package reconciler applies external payment-gateway events to
// Booking+Payment state. It is the single writer of payment-derived booking
// fields: both the client confirmation callback and the asynchronous
// webhook funnel into the same code path here, so the two delivery channels
// can never disagree about how money is accounted for.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/planora/booking-service/clients"
	"github.com/planora/booking-service/logger"
	"github.com/planora/booking-service/models/booking_models"
	"github.com/planora/booking-service/models/payment_models"
	"github.com/planora/booking-service/models/shared_models"
	"github.com/planora/booking-service/utils"
)

// ErrPaymentUnknown is returned when a capture names a gateway payment this
// service never initiated. Payments are never fabricated from webhook data.
var ErrPaymentUnknown = fmt.Errorf("%w: payment unknown to this system", utils.ErrNotFound)

// Reconciler converts gateway settlement events into ledger mutations.
type Reconciler struct {
	ledger  Ledger
	gateway clients.GatewayClient
}

// New creates a Reconciler.
func New(ledger Ledger, gateway clients.GatewayClient) *Reconciler {
	return &Reconciler{ledger: ledger, gateway: gateway}
}

// ConfirmPayment is the client-side confirmation entry point: the frontend
// returns from the gateway checkout with order id, payment id and a
// signature. After signature verification it is treated exactly like a
// capture webhook for the same payment.
func (r *Reconciler) ConfirmPayment(ctx context.Context, orderID, paymentID, signature string) (*booking_models.Booking, error) {
	if orderID == "" || paymentID == "" || signature == "" {
		return nil, fmt.Errorf("%w: order id, payment id and signature are required", utils.ErrValidation)
	}
	if !r.gateway.VerifyPaymentSignature(orderID, paymentID, signature) {
		logger.WarnLogger.Warnf("Rejected payment confirmation with bad signature (order %s, payment %s)", orderID, paymentID)
		return nil, utils.ErrInvalidSignature
	}

	return r.applyCapture(ctx, captureInput{
		GatewayPaymentID: paymentID,
		GatewayOrderID:   orderID,
		CapturedAt:       time.Now(),
	})
}

// HandleEvent processes a parsed webhook event. The caller has already
// verified the webhook signature against the raw body. Unknown event kinds
// return nil so the handler acks them.
func (r *Reconciler) HandleEvent(ctx context.Context, evt *Event, raw []byte) error {
	r.ledger.RecordWebhookEvent(ctx, evt.Kind, raw)

	switch evt.Kind {
	case EventPaymentCaptured:
		_, err := r.applyCapture(ctx, captureInput{
			GatewayPaymentID: evt.Capture.PaymentID,
			GatewayOrderID:   evt.Capture.OrderID,
			EventAmount:      evt.Capture.Amount,
			CapturedAt:       evt.Capture.CapturedAt,
		})
		return err

	case EventOrderPaid:
		// Fallback correlation: settle the open attempt for the order when
		// the capture event did not reach us (or carried no usable payment).
		_, err := r.applyCapture(ctx, captureInput{
			GatewayPaymentID: evt.OrderPaid.PaymentID,
			GatewayOrderID:   evt.OrderPaid.OrderID,
			CapturedAt:       time.Now(),
		})
		return err

	case EventPaymentFailed:
		return r.applyFailure(ctx, evt.Failure)

	case EventRefundCreated:
		return r.applyRefund(ctx, evt.Refund)

	default:
		logger.InfoLogger.Infof("Ignoring unhandled webhook event type: %s", evt.Kind)
		return nil
	}
}

type captureInput struct {
	GatewayPaymentID string
	GatewayOrderID   string
	EventAmount      int64 // minor units; 0 when the channel carries none
	CapturedAt       time.Time
}

// applyCapture is the one capture algorithm: locate the Payment, check
// idempotency, resolve it, then fold its amount into the booking. The
// resolve and the booking increment commit atomically.
func (r *Reconciler) applyCapture(ctx context.Context, in captureInput) (*booking_models.Booking, error) {
	payment, err := r.findPayment(ctx, in.GatewayPaymentID, in.GatewayOrderID)
	if err != nil {
		return nil, err
	}

	// Idempotent replay: the attempt is already resolved. SUCCESS and
	// REFUNDED both mean the capture was applied once already.
	if payment.Status != shared_models.TxStatusPending {
		if payment.Status == shared_models.TxStatusFailed {
			logger.WarnLogger.Warnf("Capture for payment %s arrived after it was resolved FAILED; ignoring", payment.ID)
		}
		logger.InfoLogger.Infof("Capture replay for payment %s (status %s); no-op", payment.ID, payment.Status)
		return r.ledger.GetBookingByID(ctx, payment.BookingID)
	}

	// The gateway-reported amount (minor units) must match what the attempt
	// was created for. A mismatch means a reconciliation bug, not a replay.
	if in.EventAmount > 0 && in.EventAmount != payment.Amount*100 {
		logger.ErrorLogger.Errorf("Capture amount mismatch for payment %s: event %d vs recorded %d (order %s)",
			payment.ID, in.EventAmount, payment.Amount*100, in.GatewayOrderID)
		return nil, fmt.Errorf("%w: capture amount mismatch for payment %s", utils.ErrInvariantViolation, payment.ID)
	}

	var booking *booking_models.Booking
	err = r.ledger.WithTx(ctx, func(tx Ledger) error {
		applied, err := tx.ResolveToSuccess(ctx, payment.ID, in.GatewayPaymentID, in.CapturedAt)
		if err != nil {
			return err
		}
		if !applied {
			// A concurrent delivery resolved it between our read and this
			// update; it also owns the booking increment.
			logger.InfoLogger.Infof("Payment %s resolved concurrently; skipping booking update", payment.ID)
			booking, err = tx.GetBookingByID(ctx, payment.BookingID)
			return err
		}

		online := payment.Method == shared_models.PaymentMethodOnline
		booking, err = tx.ApplyCapture(ctx, payment.BookingID, payment.Amount, online)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: booking %s for payment %s", utils.ErrNotFound, payment.BookingID, payment.ID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.InfoLogger.Infof("Reconciled capture for payment %s: booking %s now %s (%d/%d)",
		payment.ID, booking.ID, booking.PaymentStatus, booking.AmountPaid, booking.TotalAmount)
	return booking, nil
}

func (r *Reconciler) applyFailure(ctx context.Context, evt *FailureEvent) error {
	payment, err := r.findPayment(ctx, evt.PaymentID, evt.OrderID)
	if err != nil {
		if errors.Is(err, ErrPaymentUnknown) {
			// A failure for an attempt we never opened carries no state to
			// fix; ack it.
			logger.WarnLogger.Warnf("Failure event for unknown payment %s (order %s); ignoring", evt.PaymentID, evt.OrderID)
			return nil
		}
		return err
	}

	applied, err := r.ledger.ResolveToFailed(ctx, payment.ID, evt.Reason)
	if err != nil {
		return err
	}
	if !applied {
		logger.InfoLogger.Infof("Failure replay for payment %s (status %s); no-op", payment.ID, payment.Status)
		return nil
	}

	// Failed attempts never touch the booking's money fields.
	logger.InfoLogger.Infof("Payment %s marked FAILED: %s", payment.ID, evt.Reason)
	return nil
}

// applyRefund records the gateway refund against the Payment row. The
// booking's amountPaid and paymentStatus are intentionally left alone:
// refunds are settled out-of-band and this path is bookkeeping only.
func (r *Reconciler) applyRefund(ctx context.Context, evt *RefundEvent) error {
	amount := evt.Amount / 100 // minor units -> whole units

	applied, err := r.ledger.MarkRefunded(ctx, evt.PaymentID, evt.RefundID, amount)
	if err != nil {
		return err
	}
	if !applied {
		// Replay, or the payment never reached SUCCESS, or it is unknown.
		// Nothing a gateway retry could fix.
		logger.WarnLogger.Warnf("Refund %s for payment %s not applied (replay or ineligible payment)", evt.RefundID, evt.PaymentID)
		return nil
	}

	logger.InfoLogger.Infof("Refund %s recorded for payment %s (amount %d)", evt.RefundID, evt.PaymentID, amount)
	return nil
}

// RecordCashPayment settles a cash amount against a booking through the
// same atomic path online captures use. Admin-only; there is no gateway
// event to wait for.
func (r *Reconciler) RecordCashPayment(ctx context.Context, bookingID uuid.UUID, amount int64) (*booking_models.Booking, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: cash amount must be positive", utils.ErrValidation)
	}

	payment, err := payment_models.NewPayment(bookingID, shared_models.PaymentMethodCash, "", amount)
	if err != nil {
		return nil, err
	}

	var booking *booking_models.Booking
	err = r.ledger.WithTx(ctx, func(tx Ledger) error {
		if _, err := tx.GetBookingByID(ctx, bookingID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: booking %s", utils.ErrNotFound, bookingID)
			}
			return err
		}

		if _, err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		applied, err := tx.ResolveToSuccess(ctx, payment.ID, "", time.Now())
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("%w: fresh cash payment %s could not be resolved", utils.ErrInvariantViolation, payment.ID)
		}

		booking, err = tx.ApplyCapture(ctx, bookingID, amount, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.InfoLogger.Infof("Cash payment of %d recorded for booking %s (%s)", amount, bookingID, booking.PaymentStatus)
	return booking, nil
}

// findPayment locates the Payment a settlement event refers to: first by
// the gateway payment id (set once resolved), then by the open attempt for
// the gateway order (the usual case for first delivery, since attempts are
// created before the gateway assigns a payment id).
func (r *Reconciler) findPayment(ctx context.Context, gatewayPaymentID, gatewayOrderID string) (*payment_models.Payment, error) {
	if gatewayPaymentID != "" {
		payment, err := r.ledger.GetPaymentByGatewayPaymentID(ctx, gatewayPaymentID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	if gatewayOrderID != "" {
		payment, err := r.ledger.GetPendingPaymentByGatewayOrderID(ctx, gatewayOrderID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	// Out-of-order settlement: order.paid resolved the attempt before any
	// event carried the gateway payment id. Backfill the id so refunds and
	// later replays keyed on it match; the caller sees SUCCESS and treats
	// this delivery as a replay.
	if gatewayPaymentID != "" && gatewayOrderID != "" {
		payment, err := r.ledger.GetSettledUnlinkedPaymentByGatewayOrderID(ctx, gatewayOrderID)
		if err == nil {
			if err := r.ledger.LinkGatewayPaymentID(ctx, payment.ID, gatewayPaymentID); err != nil {
				return nil, err
			}
			payment.GatewayPaymentID = gatewayPaymentID
			logger.InfoLogger.Infof("Linked late payment id %s to settled payment %s (order %s)",
				gatewayPaymentID, payment.ID, gatewayOrderID)
			return payment, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	logger.ErrorLogger.Errorf("Settlement event for unknown payment (payment %q, order %q)", gatewayPaymentID, gatewayOrderID)
	return nil, ErrPaymentUnknown
}
