package clients

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/planora/booking-service/logger"
	"github.com/planora/booking-service/utils"
	"github.com/razorpay/razorpay-go"
)

// GatewayClient is the payment gateway surface the rest of the service
// depends on. The interface exists so reconciliation and handler tests can
// swap in a fake gateway.
type GatewayClient interface {
	CreateOrder(amount int64, currency, receipt string) (*GatewayOrder, error)
	Refund(paymentID string, amount int64, notes map[string]interface{}) (*GatewayRefund, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(rawBody []byte, signature string) bool
}

// GatewayOrder is the subset of the gateway's order entity we keep. Amount
// is in minor currency units, as the gateway reports it.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
}

// GatewayRefund is the subset of the gateway's refund entity we keep.
type GatewayRefund struct {
	ID        string
	PaymentID string
	Amount    int64
	Status    string
}

// RazorpayConfig holds the gateway credentials. Loaded once at startup so a
// missing secret fails the boot, not the first payment.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

// LoadRazorpayConfigFromEnv reads gateway credentials from the environment.
func LoadRazorpayConfigFromEnv() RazorpayConfig {
	return RazorpayConfig{
		KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		WebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
	}
}

// RazorpayGateway implements GatewayClient using the Razorpay SDK.
type RazorpayGateway struct {
	client *razorpay.Client
	cfg    RazorpayConfig
}

// NewRazorpayGateway validates credentials and constructs the gateway
// client. Returns ErrGatewayUnavailable when any credential is missing.
func NewRazorpayGateway(cfg RazorpayConfig) (*RazorpayGateway, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" || cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: razorpay credentials not configured", utils.ErrGatewayUnavailable)
	}
	return &RazorpayGateway{
		client: razorpay.NewClient(cfg.KeyID, cfg.KeySecret),
		cfg:    cfg,
	}, nil
}

// CreateOrder creates a gateway order. The caller passes the amount in
// whole currency units; conversion to minor units happens here, at the
// gateway boundary.
func (r *RazorpayGateway) CreateOrder(amount int64, currency, receipt string) (*GatewayOrder, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: order amount must be positive", utils.ErrValidation)
	}

	data := map[string]interface{}{
		"amount":   amount * 100,
		"currency": currency,
		"receipt":  receipt,
	}

	body, err := r.client.Order.Create(data, nil)
	if err != nil {
		logger.ErrorLogger.Errorf("Razorpay order creation failed (receipt %s): %v", receipt, err)
		return nil, fmt.Errorf("%w: order creation failed: %v", utils.ErrGateway, err)
	}

	orderID, _ := body["id"].(string)
	if orderID == "" {
		logger.ErrorLogger.Errorf("Razorpay order response missing id (receipt %s)", receipt)
		return nil, fmt.Errorf("%w: malformed order response", utils.ErrGateway)
	}

	order := &GatewayOrder{ID: orderID, Amount: amount * 100, Currency: currency}
	if amt, ok := body["amount"].(float64); ok {
		order.Amount = int64(amt)
	}
	if cur, ok := body["currency"].(string); ok {
		order.Currency = cur
	}

	logger.InfoLogger.Infof("Razorpay order %s created for receipt %s", order.ID, receipt)
	return order, nil
}

// Refund issues a refund against a captured payment. On ambiguous failure
// (network error, timeout) the remote refund may still have happened; the
// caller must log the correlation ids for manual reconciliation and must
// not blindly retry.
func (r *RazorpayGateway) Refund(paymentID string, amount int64, notes map[string]interface{}) (*GatewayRefund, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", utils.ErrValidation)
	}

	data := map[string]interface{}{}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	body, err := r.client.Payment.Refund(paymentID, int(amount*100), data, nil)
	if err != nil {
		logger.ErrorLogger.Errorf("Razorpay refund failed for payment %s (amount %d): %v", paymentID, amount, err)
		return nil, fmt.Errorf("%w: refund failed for payment %s: %v", utils.ErrGateway, paymentID, err)
	}

	refundID, _ := body["id"].(string)
	if refundID == "" {
		return nil, fmt.Errorf("%w: malformed refund response for payment %s", utils.ErrGateway, paymentID)
	}

	refund := &GatewayRefund{ID: refundID, PaymentID: paymentID, Amount: amount * 100}
	if amt, ok := body["amount"].(float64); ok {
		refund.Amount = int64(amt)
	}
	if st, ok := body["status"].(string); ok {
		refund.Status = st
	}

	logger.InfoLogger.Infof("Razorpay refund %s created for payment %s", refund.ID, paymentID)
	return refund, nil
}

// VerifyPaymentSignature checks the client-confirmation signature: an
// HMAC-SHA256 hex digest over "orderID|paymentID" keyed with the API
// secret.
func (r *RazorpayGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verifyHMAC([]byte(orderID+"|"+paymentID), signature, r.cfg.KeySecret)
}

// VerifyWebhookSignature checks the X-Signature header against the raw,
// unparsed request body. The body must be the exact bytes received;
// re-serialized JSON will not match.
func (r *RazorpayGateway) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return verifyHMAC(rawBody, signature, r.cfg.WebhookSecret)
}

func verifyHMAC(payload []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	// hmac.Equal is constant time.
	return hmac.Equal([]byte(expected), []byte(signature))
}
