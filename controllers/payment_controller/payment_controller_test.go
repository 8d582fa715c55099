package payment_controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/planora/booking-service/clients"
	"github.com/planora/booking-service/models/booking_models"
	"github.com/planora/booking-service/models/shared_models"
	"github.com/planora/booking-service/reconciler"
	"github.com/planora/booking-service/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	validSig string
}

func (g *stubGateway) CreateOrder(amount int64, currency, receipt string) (*clients.GatewayOrder, error) {
	return &clients.GatewayOrder{ID: "order_stub", Amount: amount * 100, Currency: currency}, nil
}

func (g *stubGateway) Refund(paymentID string, amount int64, notes map[string]interface{}) (*clients.GatewayRefund, error) {
	return &clients.GatewayRefund{ID: "rfnd_stub", PaymentID: paymentID, Amount: amount * 100, Status: "processed"}, nil
}

func (g *stubGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return signature == g.validSig
}

func (g *stubGateway) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return signature == g.validSig
}

type stubEngine struct {
	confirmBooking *booking_models.Booking
	confirmErr     error
	handledKinds   []string
	handleErr      error
	cashBooking    *booking_models.Booking
	cashErr        error
}

func (e *stubEngine) ConfirmPayment(ctx context.Context, orderID, paymentID, signature string) (*booking_models.Booking, error) {
	return e.confirmBooking, e.confirmErr
}

func (e *stubEngine) HandleEvent(ctx context.Context, evt *reconciler.Event, raw []byte) error {
	e.handledKinds = append(e.handledKinds, evt.Kind)
	return e.handleErr
}

func (e *stubEngine) RecordCashPayment(ctx context.Context, bookingID uuid.UUID, amount int64) (*booking_models.Booking, error) {
	return e.cashBooking, e.cashErr
}

func newTestController(eng *stubEngine) *PaymentController {
	return &PaymentController{
		Gateway: &stubGateway{validSig: "valid-sig"},
		Engine:  eng,
	}
}

func postWebhook(pc *PaymentController, body []byte, signature string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/payments/webhook", pc.PaymentWebhook)

	req, _ := http.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPaymentWebhook(t *testing.T) {
	captureBody := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {"id": "pay_1", "order_id": "order_1", "amount": 200000}}}
	}`)

	t.Run("InvalidSignatureRejectedBeforeProcessing", func(t *testing.T) {
		eng := &stubEngine{}
		w := postWebhook(newTestController(eng), captureBody, "forged")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, eng.handledKinds, "engine must not see unverified events")
	})

	t.Run("MissingSignatureRejected", func(t *testing.T) {
		eng := &stubEngine{}
		w := postWebhook(newTestController(eng), captureBody, "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, eng.handledKinds)
	})

	t.Run("ValidCaptureDispatched", func(t *testing.T) {
		eng := &stubEngine{}
		w := postWebhook(newTestController(eng), captureBody, "valid-sig")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"payment.captured"}, eng.handledKinds)
	})

	t.Run("UnknownEventAckedWith200", func(t *testing.T) {
		eng := &stubEngine{}
		body := []byte(`{"event": "invoice.generated", "payload": {}}`)
		w := postWebhook(newTestController(eng), body, "valid-sig")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"invoice.generated"}, eng.handledKinds)
	})

	t.Run("MalformedPayloadRejected", func(t *testing.T) {
		eng := &stubEngine{}
		body := []byte(`{"event": "payment.captured", "payload": {}}`)
		w := postWebhook(newTestController(eng), body, "valid-sig")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, eng.handledKinds)
	})

	t.Run("ProcessingErrorReturnsNon200ForRetry", func(t *testing.T) {
		eng := &stubEngine{handleErr: assert.AnError}
		w := postWebhook(newTestController(eng), captureBody, "valid-sig")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func postJSON(handler gin.HandlerFunc, path string, payload interface{}) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST(path, handler)

	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sampleBooking() *booking_models.Booking {
	now := time.Now()
	return &booking_models.Booking{
		ID:                    uuid.New(),
		UserID:                uuid.New(),
		PackageID:             uuid.New(),
		TotalAmount:           10000,
		AmountPaid:            2000,
		RemainingAmount:       8000,
		PaymentPercentagePaid: 20,
		RemainingPercentage:   80,
		PaymentStatus:         shared_models.PaymentStatusPartiallyPaid,
		PaymentMethod:         shared_models.PaymentMethodOnline,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func TestConfirmPaymentEndpoint(t *testing.T) {
	confirmReq := map[string]string{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "valid-sig",
	}

	t.Run("Success", func(t *testing.T) {
		booking := sampleBooking()
		pc := newTestController(&stubEngine{confirmBooking: booking})
		w := postJSON(pc.ConfirmPayment, "/payments/confirm", confirmReq)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Booking booking_models.Booking `json:"booking"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, booking.ID, resp.Booking.ID)
		assert.Equal(t, int64(2000), resp.Booking.AmountPaid)
	})

	t.Run("MissingFields", func(t *testing.T) {
		pc := newTestController(&stubEngine{})
		w := postJSON(pc.ConfirmPayment, "/payments/confirm", map[string]string{"razorpay_order_id": "order_1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("InvalidSignature", func(t *testing.T) {
		pc := newTestController(&stubEngine{confirmErr: utils.ErrInvalidSignature})
		w := postJSON(pc.ConfirmPayment, "/payments/confirm", confirmReq)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnknownPayment", func(t *testing.T) {
		pc := newTestController(&stubEngine{confirmErr: reconciler.ErrPaymentUnknown})
		w := postJSON(pc.ConfirmPayment, "/payments/confirm", confirmReq)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("GatewayTroubleReportsPending", func(t *testing.T) {
		pc := newTestController(&stubEngine{confirmErr: utils.ErrGatewayUnavailable})
		w := postJSON(pc.ConfirmPayment, "/payments/confirm", confirmReq)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Contains(t, w.Body.String(), "payment verification pending")
		assert.NotContains(t, w.Body.String(), "gateway")
	})

	t.Run("InvariantViolationConflicts", func(t *testing.T) {
		pc := newTestController(&stubEngine{confirmErr: utils.ErrInvariantViolation})
		w := postJSON(pc.ConfirmPayment, "/payments/confirm", confirmReq)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestRecordCashPaymentEndpoint(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		booking := sampleBooking()
		pc := newTestController(&stubEngine{cashBooking: booking})
		w := postJSON(pc.RecordCashPayment, "/payments/cash", map[string]interface{}{
			"booking_id": booking.ID.String(),
			"amount":     2000,
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("RejectsZeroAmount", func(t *testing.T) {
		pc := newTestController(&stubEngine{})
		w := postJSON(pc.RecordCashPayment, "/payments/cash", map[string]interface{}{
			"booking_id": uuid.New().String(),
			"amount":     0,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("RejectsBadBookingID", func(t *testing.T) {
		pc := newTestController(&stubEngine{})
		w := postJSON(pc.RecordCashPayment, "/payments/cash", map[string]interface{}{
			"booking_id": "not-a-uuid",
			"amount":     2000,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnknownBooking", func(t *testing.T) {
		pc := newTestController(&stubEngine{cashErr: utils.ErrNotFound})
		w := postJSON(pc.RecordCashPayment, "/payments/cash", map[string]interface{}{
			"booking_id": uuid.New().String(),
			"amount":     2000,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
