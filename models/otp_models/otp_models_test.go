package otp_models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOTPExpired(t *testing.T) {
	now := time.Now()
	otp := &OTP{ExpiresAt: now.Add(OTPTTL)}

	assert.False(t, otp.Expired(now))
	assert.False(t, otp.Expired(now.Add(9*time.Minute)))
	assert.True(t, otp.Expired(now.Add(11*time.Minute)))
	assert.True(t, otp.Expired(now.Add(24*time.Hour)))
}

func TestOTPTTLIsTenMinutes(t *testing.T) {
	assert.Equal(t, 10*time.Minute, OTPTTL)
}
