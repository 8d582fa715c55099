package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/planora/booking-service/logger"
	"github.com/planora/booking-service/models/booking_models"
	"github.com/planora/booking-service/models/payment_models"
)

// Ledger is the persistence surface the reconciliation engine writes
// through. Production uses PGLedger; tests use an in-memory fake so the
// engine's idempotency and invariant behavior can be exercised directly.
type Ledger interface {
	// WithTx runs fn atomically. Resolving a payment and applying its
	// amount to the booking must commit or fail together.
	WithTx(ctx context.Context, fn func(Ledger) error) error

	GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*booking_models.Booking, error)
	ApplyCapture(ctx context.Context, bookingID uuid.UUID, amount int64, online bool) (*booking_models.Booking, error)

	CreatePayment(ctx context.Context, p *payment_models.Payment) (*payment_models.Payment, error)
	GetPaymentByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*payment_models.Payment, error)
	GetPendingPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment_models.Payment, error)
	GetSettledUnlinkedPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment_models.Payment, error)
	LinkGatewayPaymentID(ctx context.Context, paymentID uuid.UUID, gatewayPaymentID string) error
	ResolveToSuccess(ctx context.Context, paymentID uuid.UUID, gatewayPaymentID string, capturedAt time.Time) (bool, error)
	ResolveToFailed(ctx context.Context, paymentID uuid.UUID, reason string) (bool, error)
	MarkRefunded(ctx context.Context, gatewayPaymentID, refundID string, amount int64) (bool, error)

	// RecordWebhookEvent keeps the raw event for audit and replay. Best
	// effort: failures are logged, never block processing.
	RecordWebhookEvent(ctx context.Context, eventType string, raw []byte)
}

// PGLedger implements Ledger over the model packages.
type PGLedger struct {
	pool *pgxpool.Pool
	q    booking_models.DBTX
}

// NewPGLedger creates a Ledger backed by the given pool.
func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool, q: pool}
}

func (l *PGLedger) WithTx(ctx context.Context, fn func(Ledger) error) error {
	if l.pool == nil {
		// Already inside a transaction.
		return fn(l)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PGLedger{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *PGLedger) GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*booking_models.Booking, error) {
	return booking_models.GetBookingByID(ctx, l.q, bookingID)
}

func (l *PGLedger) ApplyCapture(ctx context.Context, bookingID uuid.UUID, amount int64, online bool) (*booking_models.Booking, error) {
	return booking_models.ApplyCapture(ctx, l.q, bookingID, amount, online)
}

func (l *PGLedger) CreatePayment(ctx context.Context, p *payment_models.Payment) (*payment_models.Payment, error) {
	return payment_models.CreatePayment(ctx, l.q, p)
}

func (l *PGLedger) GetPaymentByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*payment_models.Payment, error) {
	return payment_models.GetPaymentByGatewayPaymentID(ctx, l.q, gatewayPaymentID)
}

func (l *PGLedger) GetPendingPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment_models.Payment, error) {
	return payment_models.GetPendingPaymentByGatewayOrderID(ctx, l.q, gatewayOrderID)
}

func (l *PGLedger) GetSettledUnlinkedPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment_models.Payment, error) {
	return payment_models.GetSettledUnlinkedPaymentByGatewayOrderID(ctx, l.q, gatewayOrderID)
}

func (l *PGLedger) LinkGatewayPaymentID(ctx context.Context, paymentID uuid.UUID, gatewayPaymentID string) error {
	return payment_models.LinkGatewayPaymentID(ctx, l.q, paymentID, gatewayPaymentID)
}

func (l *PGLedger) ResolveToSuccess(ctx context.Context, paymentID uuid.UUID, gatewayPaymentID string, capturedAt time.Time) (bool, error) {
	return payment_models.ResolveToSuccess(ctx, l.q, paymentID, gatewayPaymentID, capturedAt)
}

func (l *PGLedger) ResolveToFailed(ctx context.Context, paymentID uuid.UUID, reason string) (bool, error) {
	return payment_models.ResolveToFailed(ctx, l.q, paymentID, reason)
}

func (l *PGLedger) MarkRefunded(ctx context.Context, gatewayPaymentID, refundID string, amount int64) (bool, error) {
	return payment_models.MarkRefunded(ctx, l.q, gatewayPaymentID, refundID, amount)
}

func (l *PGLedger) RecordWebhookEvent(ctx context.Context, eventType string, raw []byte) {
	_, err := l.q.Exec(ctx,
		`INSERT INTO webhook_events (event_type, raw_payload, received_at) VALUES ($1, $2, NOW())`,
		eventType, string(raw))
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to record webhook event %s: %v", eventType, err)
	}
}
