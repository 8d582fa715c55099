package clients

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/planora/booking-service/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signHex(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func testGateway(t *testing.T) *RazorpayGateway {
	t.Helper()
	gw, err := NewRazorpayGateway(RazorpayConfig{
		KeyID:         "rzp_test_key",
		KeySecret:     "test_key_secret",
		WebhookSecret: "test_webhook_secret",
	})
	require.NoError(t, err)
	return gw
}

func TestNewRazorpayGatewayRequiresCredentials(t *testing.T) {
	cases := []struct {
		name string
		cfg  RazorpayConfig
	}{
		{"Empty", RazorpayConfig{}},
		{"MissingKeyID", RazorpayConfig{KeySecret: "s", WebhookSecret: "w"}},
		{"MissingKeySecret", RazorpayConfig{KeyID: "k", WebhookSecret: "w"}},
		{"MissingWebhookSecret", RazorpayConfig{KeyID: "k", KeySecret: "s"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRazorpayGateway(tc.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrGatewayUnavailable)
		})
	}
}

func TestVerifyPaymentSignature(t *testing.T) {
	gw := testGateway(t)

	orderID := "order_XYZ789"
	paymentID := "pay_ABC123"
	valid := signHex(t, []byte(orderID+"|"+paymentID), "test_key_secret")

	assert.True(t, gw.VerifyPaymentSignature(orderID, paymentID, valid))
	assert.False(t, gw.VerifyPaymentSignature(orderID, paymentID, "deadbeef"))
	assert.False(t, gw.VerifyPaymentSignature(orderID, paymentID, ""))
	assert.False(t, gw.VerifyPaymentSignature("order_other", paymentID, valid))
	assert.False(t, gw.VerifyPaymentSignature(orderID, "pay_other", valid))

	// Signed with the webhook secret instead of the key secret.
	wrongSecret := signHex(t, []byte(orderID+"|"+paymentID), "test_webhook_secret")
	assert.False(t, gw.VerifyPaymentSignature(orderID, paymentID, wrongSecret))
}

func TestVerifyWebhookSignature(t *testing.T) {
	gw := testGateway(t)

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_ABC123","amount":200000}}}}`)
	valid := signHex(t, body, "test_webhook_secret")

	assert.True(t, gw.VerifyWebhookSignature(body, valid))
	assert.False(t, gw.VerifyWebhookSignature(body, ""))
	assert.False(t, gw.VerifyWebhookSignature(body, "deadbeef"))

	// One flipped byte in the body invalidates the signature.
	tampered := append([]byte(nil), body...)
	tampered[10]++
	assert.False(t, gw.VerifyWebhookSignature(tampered, valid))

	// Signed with the key secret instead of the webhook secret.
	wrongSecret := signHex(t, body, "test_key_secret")
	assert.False(t, gw.VerifyWebhookSignature(body, wrongSecret))
}
