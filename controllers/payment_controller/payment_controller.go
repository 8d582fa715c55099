package payment_controller

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/planora/booking-service/clients"
	"github.com/planora/booking-service/logger"
	"github.com/planora/booking-service/middlewares/auth"
	"github.com/planora/booking-service/models/booking_models"
	"github.com/planora/booking-service/models/payment_models"
	"github.com/planora/booking-service/models/shared_models"
	"github.com/planora/booking-service/reconciler"
	"github.com/planora/booking-service/utils"
)

// SignatureHeader carries the webhook HMAC over the raw request body.
const SignatureHeader = "X-Signature"

// engine is the slice of the reconciler the HTTP layer needs. Kept as an
// interface so webhook handler tests can stub it.
type engine interface {
	ConfirmPayment(ctx context.Context, orderID, paymentID, signature string) (*booking_models.Booking, error)
	HandleEvent(ctx context.Context, evt *reconciler.Event, raw []byte) error
	RecordCashPayment(ctx context.Context, bookingID uuid.UUID, amount int64) (*booking_models.Booking, error)
}

// PaymentController handles order creation, payment confirmation, gateway
// webhooks, refunds and cash settlement.
type PaymentController struct {
	DB      *pgxpool.Pool
	Gateway clients.GatewayClient
	Engine  engine
}

// NewPaymentController creates a payment controller wired to the gateway
// and the reconciliation engine.
func NewPaymentController(db *pgxpool.Pool, gateway clients.GatewayClient, eng *reconciler.Reconciler) *PaymentController {
	return &PaymentController{
		DB:      db,
		Gateway: gateway,
		Engine:  eng,
	}
}

// CreateOrder opens a gateway order for a partial or full payment against
// the caller's booking and records the pending attempt.
func (pc *PaymentController) CreateOrder(c *gin.Context) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req struct {
		BookingID string `json:"booking_id" binding:"required,uuid"`
		Amount    int64  `json:"amount" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := booking_models.GetBookingByID(c.Request.Context(), pc.DB, bookingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		logger.ErrorLogger.Errorf("Failed to load booking %s for order creation: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create order"})
		return
	}

	if booking.UserID != userID && auth.RoleFromContext(c) != auth.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your booking"})
		return
	}
	if booking.VendorStatus == shared_models.VendorStatusCancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "booking is cancelled"})
		return
	}
	if booking.PaymentStatus == shared_models.PaymentStatusFullyPaid {
		c.JSON(http.StatusConflict, gin.H{"error": "booking is already fully paid"})
		return
	}
	if req.Amount > booking.RemainingAmount {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount exceeds remaining balance"})
		return
	}

	order, err := pc.Gateway.CreateOrder(req.Amount, "INR", booking.ID.String())
	if err != nil {
		logger.ErrorLogger.Errorf("Gateway order creation failed for booking %s: %v", bookingID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
		return
	}

	payment, err := payment_models.NewPayment(booking.ID, shared_models.PaymentMethodOnline, order.ID, req.Amount)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to build payment for booking %s: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create order"})
		return
	}
	if _, err := payment_models.CreatePayment(c.Request.Context(), pc.DB, payment); err != nil {
		logger.ErrorLogger.Errorf("Failed to persist payment for booking %s: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create order"})
		return
	}

	logger.InfoLogger.Infof("Order %s created for booking %s (amount %d)", order.ID, booking.ID, req.Amount)

	c.JSON(http.StatusCreated, gin.H{
		"order_id":   order.ID,
		"amount":     order.Amount,
		"currency":   order.Currency,
		"payment_id": payment.ID,
	})
}

// ConfirmPayment is the client-side callback after checkout. The signature
// covers "orderId|paymentId"; a valid one settles the payment through the
// reconciler.
func (pc *PaymentController) ConfirmPayment(c *gin.Context) {
	var req struct {
		OrderID   string `json:"razorpay_order_id" binding:"required"`
		PaymentID string `json:"razorpay_payment_id" binding:"required"`
		Signature string `json:"razorpay_signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := pc.Engine.ConfirmPayment(c.Request.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		pc.writeReconcileError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "payment confirmed",
		"booking": booking,
	})
}

// PaymentWebhook is the single entry point for gateway webhooks. The
// signature over the raw body is checked before anything else; an invalid
// one means no event is recorded and nothing is processed.
func (pc *PaymentController) PaymentWebhook(c *gin.Context) {
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to read webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if !pc.Gateway.VerifyWebhookSignature(bodyBytes, signature) {
		logger.WarnLogger.Warn("Webhook rejected: invalid signature")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	evt, err := reconciler.ParseEvent(bodyBytes)
	if err != nil {
		logger.ErrorLogger.Errorf("Invalid webhook payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := pc.Engine.HandleEvent(c.Request.Context(), evt, bodyBytes); err != nil {
		logger.ErrorLogger.Errorf("Webhook %s processing failed: %v", evt.Kind, err)
		// Non-200 so the gateway redelivers; processing is idempotent.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RefundPayment issues a gateway refund for a settled payment and records
// it. Admin only. The booking's paid amounts are left as they are; refunds
// are tracked on the payment row.
func (pc *PaymentController) RefundPayment(c *gin.Context) {
	gatewayPaymentID := c.Param("paymentId")
	if gatewayPaymentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment id required"})
		return
	}

	var req struct {
		Amount int64  `json:"amount" binding:"omitempty,gt=0"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := payment_models.GetPaymentByGatewayPaymentID(c.Request.Context(), pc.DB, gatewayPaymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		logger.ErrorLogger.Errorf("Failed to load payment %s for refund: %v", gatewayPaymentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refund failed"})
		return
	}

	if payment.Status != shared_models.TxStatusSuccess {
		c.JSON(http.StatusConflict, gin.H{"error": "only successful payments can be refunded"})
		return
	}

	amount := req.Amount
	if amount == 0 {
		amount = payment.Amount
	}
	if amount > payment.Amount {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refund exceeds captured amount"})
		return
	}

	notes := map[string]interface{}{"booking_id": payment.BookingID.String()}
	if req.Reason != "" {
		notes["reason"] = req.Reason
	}

	refund, err := pc.Gateway.Refund(gatewayPaymentID, amount, notes)
	if err != nil {
		logger.ErrorLogger.Errorf("Gateway refund failed for payment %s: %v", gatewayPaymentID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
		return
	}

	// Record it now; the refund.created webhook replays into a no-op.
	applied, err := payment_models.MarkRefunded(c.Request.Context(), pc.DB, gatewayPaymentID, refund.ID, amount)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to record refund %s for payment %s: %v", refund.ID, gatewayPaymentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refund issued but not recorded"})
		return
	}
	if !applied {
		logger.WarnLogger.Warnf("Refund %s for payment %s already recorded", refund.ID, gatewayPaymentID)
	}

	logger.InfoLogger.Infof("Refund %s issued for payment %s (amount %d)", refund.ID, gatewayPaymentID, amount)

	c.JSON(http.StatusOK, gin.H{
		"refund_id": refund.ID,
		"amount":    amount,
		"status":    refund.Status,
	})
}

// RecordCashPayment settles an offline payment against a booking. Admin
// only; cash goes through the same reconciliation path online captures do.
func (pc *PaymentController) RecordCashPayment(c *gin.Context) {
	var req struct {
		BookingID string `json:"booking_id" binding:"required,uuid"`
		Amount    int64  `json:"amount" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := pc.Engine.RecordCashPayment(c.Request.Context(), bookingID, req.Amount)
	if err != nil {
		pc.writeReconcileError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "cash payment recorded",
		"booking": booking,
	})
}

// ListBookingPayments returns the payment attempts for a booking, newest
// first. Owner and admin only.
func (pc *PaymentController) ListBookingPayments(c *gin.Context) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := booking_models.GetBookingByID(c.Request.Context(), pc.DB, bookingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		logger.ErrorLogger.Errorf("Failed to load booking %s for payment listing: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list payments"})
		return
	}

	if booking.UserID != userID && auth.RoleFromContext(c) != auth.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your booking"})
		return
	}

	payments, err := payment_models.GetPaymentsByBookingID(c.Request.Context(), pc.DB, bookingID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to list payments for booking %s: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list payments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// writeReconcileError maps reconciler errors onto HTTP statuses. Gateway
// trouble is reported to the caller as a generic pending message so we
// never claim a payment failed while the gateway may still settle it.
func (pc *PaymentController) writeReconcileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
	case errors.Is(err, utils.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, utils.ErrInvariantViolation):
		logger.ErrorLogger.Errorf("Reconciliation invariant violated: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": "payment could not be reconciled"})
	case errors.Is(err, utils.ErrGatewayUnavailable), errors.Is(err, utils.ErrGateway):
		c.JSON(http.StatusAccepted, gin.H{"message": "payment verification pending"})
	default:
		logger.ErrorLogger.Errorf("Payment operation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
