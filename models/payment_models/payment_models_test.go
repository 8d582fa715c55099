package payment_models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/planora/booking-service/models/shared_models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment(t *testing.T) {
	bookingID := uuid.New()

	p, err := NewPayment(bookingID, shared_models.PaymentMethodOnline, "order_XYZ789", 2000)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, bookingID, p.BookingID)
	assert.Equal(t, shared_models.PaymentMethodOnline, p.Method)
	assert.Equal(t, "order_XYZ789", p.GatewayOrderID)
	assert.Empty(t, p.GatewayPaymentID, "payment id is assigned by the gateway at settlement")
	assert.Equal(t, int64(2000), p.Amount)
	assert.Equal(t, shared_models.TxStatusPending, p.Status)
	assert.Nil(t, p.FailureReason)
	assert.Nil(t, p.RefundID)
	assert.Nil(t, p.CapturedAt)
	assert.WithinDuration(t, time.Now(), p.CreatedAt, time.Second)
}

func TestNewPaymentCash(t *testing.T) {
	p, err := NewPayment(uuid.New(), shared_models.PaymentMethodCash, "", 4000)
	require.NoError(t, err)

	assert.Equal(t, shared_models.PaymentMethodCash, p.Method)
	assert.Empty(t, p.GatewayOrderID)
	assert.Equal(t, shared_models.TxStatusPending, p.Status)
}

func TestNewPaymentIDsAreUnique(t *testing.T) {
	a, err := NewPayment(uuid.New(), shared_models.PaymentMethodOnline, "order_1", 100)
	require.NoError(t, err)
	b, err := NewPayment(uuid.New(), shared_models.PaymentMethodOnline, "order_1", 100)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}
