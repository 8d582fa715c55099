package reconciler

import (
	"testing"
	"time"

	"github.com/planora/booking-service/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	t.Run("PaymentCaptured", func(t *testing.T) {
		raw := []byte(`{
			"event": "payment.captured",
			"payload": {"payment": {"entity": {
				"id": "pay_ABC123",
				"order_id": "order_XYZ789",
				"amount": 200000,
				"method": "card",
				"created_at": 1756400000
			}}}
		}`)

		evt, err := ParseEvent(raw)
		require.NoError(t, err)
		assert.Equal(t, EventPaymentCaptured, evt.Kind)
		require.NotNil(t, evt.Capture)
		assert.Equal(t, "pay_ABC123", evt.Capture.PaymentID)
		assert.Equal(t, "order_XYZ789", evt.Capture.OrderID)
		assert.Equal(t, int64(200000), evt.Capture.Amount)
		assert.Equal(t, "card", evt.Capture.Method)
		assert.Equal(t, time.Unix(1756400000, 0), evt.Capture.CapturedAt)
		assert.Nil(t, evt.Failure)
		assert.Nil(t, evt.Refund)
	})

	t.Run("PaymentFailed", func(t *testing.T) {
		raw := []byte(`{
			"event": "payment.failed",
			"payload": {"payment": {"entity": {
				"id": "pay_ABC123",
				"order_id": "order_XYZ789",
				"error_description": "card declined"
			}}}
		}`)

		evt, err := ParseEvent(raw)
		require.NoError(t, err)
		require.NotNil(t, evt.Failure)
		assert.Equal(t, "card declined", evt.Failure.Reason)
	})

	t.Run("OrderPaid", func(t *testing.T) {
		raw := []byte(`{
			"event": "order.paid",
			"payload": {
				"order": {"entity": {"id": "order_XYZ789", "amount_paid": 200000}},
				"payment": {"entity": {"id": "pay_ABC123"}}
			}
		}`)

		evt, err := ParseEvent(raw)
		require.NoError(t, err)
		require.NotNil(t, evt.OrderPaid)
		assert.Equal(t, "order_XYZ789", evt.OrderPaid.OrderID)
		assert.Equal(t, "pay_ABC123", evt.OrderPaid.PaymentID)
		assert.Equal(t, int64(200000), evt.OrderPaid.Amount)
	})

	t.Run("RefundCreated", func(t *testing.T) {
		raw := []byte(`{
			"event": "refund.created",
			"payload": {"refund": {"entity": {
				"id": "rfnd_DEF456",
				"payment_id": "pay_ABC123",
				"amount": 200000,
				"status": "processed"
			}}}
		}`)

		evt, err := ParseEvent(raw)
		require.NoError(t, err)
		require.NotNil(t, evt.Refund)
		assert.Equal(t, "rfnd_DEF456", evt.Refund.RefundID)
		assert.Equal(t, "pay_ABC123", evt.Refund.PaymentID)
	})

	t.Run("UnknownEventIsNotAnError", func(t *testing.T) {
		raw := []byte(`{"event": "invoice.generated", "payload": {}}`)

		evt, err := ParseEvent(raw)
		require.NoError(t, err)
		assert.Equal(t, "invoice.generated", evt.Kind)
		assert.Nil(t, evt.Capture)
		assert.Nil(t, evt.Failure)
		assert.Nil(t, evt.OrderPaid)
		assert.Nil(t, evt.Refund)
	})

	t.Run("Invalid", func(t *testing.T) {
		cases := []struct {
			name string
			raw  string
		}{
			{"MalformedJSON", `{"event": "payment.captured"`},
			{"MissingEvent", `{"payload": {}}`},
			{"CaptureWithoutEntity", `{"event": "payment.captured", "payload": {}}`},
			{"CaptureWithoutID", `{"event": "payment.captured", "payload": {"payment": {"entity": {"amount": 100}}}}`},
			{"CaptureZeroAmount", `{"event": "payment.captured", "payload": {"payment": {"entity": {"id": "pay_1", "amount": 0}}}}`},
			{"CaptureNegativeAmount", `{"event": "payment.captured", "payload": {"payment": {"entity": {"id": "pay_1", "amount": -5}}}}`},
			{"FailureWithoutEntity", `{"event": "payment.failed", "payload": {}}`},
			{"OrderPaidWithoutEntity", `{"event": "order.paid", "payload": {}}`},
			{"RefundWithoutPaymentID", `{"event": "refund.created", "payload": {"refund": {"entity": {"id": "rfnd_1"}}}}`},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := ParseEvent([]byte(tc.raw))
				require.Error(t, err)
				assert.ErrorIs(t, err, utils.ErrValidation)
			})
		}
	})
}
