package payment_models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/planora/booking-service/logger"
	"github.com/planora/booking-service/models/booking_models"
	"github.com/planora/booking-service/models/shared_models"
)

// Payment is one gateway attempt. A booking accumulates many of these
// (deposit, balance, retries). The gateway payment id is the idempotency
// key: a unique index on gateway_payment_id keeps replays to one row.
type Payment struct {
	ID               uuid.UUID  `json:"id"`
	BookingID        uuid.UUID  `json:"booking_id"`
	Method           string     `json:"method"`
	GatewayOrderID   string     `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string     `json:"gateway_payment_id,omitempty"`
	Amount           int64      `json:"amount"`
	Status           string     `json:"status"`
	FailureReason    *string    `json:"failure_reason,omitempty"`
	RefundID         *string    `json:"refund_id,omitempty"`
	RefundAmount     *int64     `json:"refund_amount,omitempty"`
	CapturedAt       *time.Time `json:"captured_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

const paymentColumns = `id, booking_id, method, gateway_order_id, gateway_payment_id,
	amount, status, failure_reason, refund_id, refund_amount, captured_at, created_at, updated_at`

// NewPayment creates a PENDING payment attempt for a booking.
func NewPayment(bookingID uuid.UUID, method, gatewayOrderID string, amount int64) (*Payment, error) {
	id, err := shared_models.GenerateUUIDv7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for payment: %w", err)
	}
	now := time.Now()
	return &Payment{
		ID:             id,
		BookingID:      bookingID,
		Method:         method,
		GatewayOrderID: gatewayOrderID,
		Amount:         amount,
		Status:         shared_models.TxStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CreatePayment inserts a new payment attempt.
func CreatePayment(ctx context.Context, db booking_models.DBTX, p *Payment) (*Payment, error) {
	query := `
		INSERT INTO payments (
			id, booking_id, method, gateway_order_id, gateway_payment_id,
			amount, status, created_at, updated_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9)
		RETURNING id`

	var insertedID uuid.UUID
	err := db.QueryRow(ctx, query,
		p.ID, p.BookingID, p.Method, p.GatewayOrderID, p.GatewayPaymentID,
		p.Amount, p.Status, p.CreatedAt, p.UpdatedAt,
	).Scan(&insertedID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to insert payment for booking %s: %v", p.BookingID, err)
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	p.ID = insertedID
	logger.InfoLogger.Infof("Payment %s created for booking %s (order %s, amount %d)",
		p.ID, p.BookingID, p.GatewayOrderID, p.Amount)
	return p, nil
}

// GetPaymentByGatewayPaymentID looks up the payment a capture/refund event
// refers to.
func GetPaymentByGatewayPaymentID(ctx context.Context, db booking_models.DBTX, gatewayPaymentID string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_payment_id = $1`
	return scanPayment(db.QueryRow(ctx, query, gatewayPaymentID))
}

// GetPendingPaymentByGatewayOrderID finds the open attempt for a gateway
// order. Used to attach an incoming capture to the attempt created at order
// time, and as the order.paid fallback.
func GetPendingPaymentByGatewayOrderID(ctx context.Context, db booking_models.DBTX, gatewayOrderID string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments WHERE gateway_order_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT 1`
	return scanPayment(db.QueryRow(ctx, query, gatewayOrderID, shared_models.TxStatusPending))
}

// GetSettledUnlinkedPaymentByGatewayOrderID finds the newest SUCCESS
// payment for a gateway order that carries no gateway payment id yet. This
// is the out-of-order settlement case: order.paid resolved the attempt
// before any event named the gateway's payment id.
func GetSettledUnlinkedPaymentByGatewayOrderID(ctx context.Context, db booking_models.DBTX, gatewayOrderID string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE gateway_order_id = $1 AND status = $2 AND gateway_payment_id IS NULL
		ORDER BY created_at DESC LIMIT 1`
	return scanPayment(db.QueryRow(ctx, query, gatewayOrderID, shared_models.TxStatusSuccess))
}

// LinkGatewayPaymentID backfills the gateway payment id on a payment that
// settled before the id was known, so later refunds and replays keyed on
// the payment id find the row.
func LinkGatewayPaymentID(ctx context.Context, db booking_models.DBTX, paymentID uuid.UUID, gatewayPaymentID string) error {
	_, err := db.Exec(ctx, `
		UPDATE payments
		SET gateway_payment_id = $2, updated_at = NOW()
		WHERE id = $1 AND gateway_payment_id IS NULL`,
		paymentID, gatewayPaymentID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to link gateway payment id %s to payment %s: %v", gatewayPaymentID, paymentID, err)
		return fmt.Errorf("failed to link gateway payment id: %w", err)
	}
	return nil
}

// GetPaymentsByBookingID lists all attempts for a booking, oldest first.
func GetPaymentsByBookingID(ctx context.Context, db booking_models.DBTX, bookingID uuid.UUID) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 ORDER BY created_at ASC`

	rows, err := db.Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading payments: %w", err)
	}
	return payments, nil
}

// ResolveToSuccess transitions a PENDING payment to SUCCESS exactly once,
// recording the gateway payment id. The status guard is the idempotency
// check: a second resolution of the same attempt affects zero rows and the
// caller treats it as a replay.
func ResolveToSuccess(ctx context.Context, db booking_models.DBTX, paymentID uuid.UUID, gatewayPaymentID string, capturedAt time.Time) (bool, error) {
	cmdTag, err := db.Exec(ctx, `
		UPDATE payments
		SET status = $2, gateway_payment_id = COALESCE(gateway_payment_id, NULLIF($3, '')),
		    captured_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5`,
		paymentID, shared_models.TxStatusSuccess, gatewayPaymentID, capturedAt, shared_models.TxStatusPending)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to resolve payment %s to SUCCESS: %v", paymentID, err)
		return false, fmt.Errorf("failed to resolve payment: %w", err)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// ResolveToFailed transitions a PENDING payment to FAILED exactly once with
// the gateway's failure reason.
func ResolveToFailed(ctx context.Context, db booking_models.DBTX, paymentID uuid.UUID, reason string) (bool, error) {
	cmdTag, err := db.Exec(ctx, `
		UPDATE payments
		SET status = $2, failure_reason = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1 AND status = $4`,
		paymentID, shared_models.TxStatusFailed, reason, shared_models.TxStatusPending)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to resolve payment %s to FAILED: %v", paymentID, err)
		return false, fmt.Errorf("failed to resolve payment: %w", err)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// MarkRefunded records a gateway refund against a SUCCESS payment.
// REFUNDED is terminal and only reachable from SUCCESS; the refund id guard
// keeps refund.created replays idempotent.
func MarkRefunded(ctx context.Context, db booking_models.DBTX, gatewayPaymentID, refundID string, amount int64) (bool, error) {
	cmdTag, err := db.Exec(ctx, `
		UPDATE payments
		SET status = $3, refund_id = $2, refund_amount = $4, updated_at = NOW()
		WHERE gateway_payment_id = $1 AND status = $5
		  AND (refund_id IS NULL OR refund_id = $2)`,
		gatewayPaymentID, refundID, shared_models.TxStatusRefunded, amount, shared_models.TxStatusSuccess)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to mark payment %s refunded (refund %s): %v", gatewayPaymentID, refundID, err)
		return false, fmt.Errorf("failed to record refund: %w", err)
	}
	return cmdTag.RowsAffected() > 0, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var gatewayOrderID, gatewayPaymentID *string
	err := row.Scan(
		&p.ID, &p.BookingID, &p.Method, &gatewayOrderID, &gatewayPaymentID,
		&p.Amount, &p.Status, &p.FailureReason, &p.RefundID, &p.RefundAmount,
		&p.CapturedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	if gatewayOrderID != nil {
		p.GatewayOrderID = *gatewayOrderID
	}
	if gatewayPaymentID != nil {
		p.GatewayPaymentID = *gatewayPaymentID
	}
	return &p, nil
}
