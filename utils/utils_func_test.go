package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureOTP(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		otp := GenerateSecureOTP()
		require.Len(t, otp, 6)
		for _, ch := range otp {
			assert.True(t, ch >= '0' && ch <= '9', "OTP must be numeric, got %q", otp)
		}
		seen[otp] = true
	}
	// 50 draws from a million-value space colliding down to a handful
	// would mean the generator is broken.
	assert.Greater(t, len(seen), 40)
}

func TestHashOTP(t *testing.T) {
	h1 := HashOTP("123456")
	h2 := HashOTP("123456")
	h3 := HashOTP("654321")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.NotContains(t, h1, "123456")
	assert.Len(t, h1, 64) // 32 bytes hex encoded
}

func TestVerifyOTPHash(t *testing.T) {
	stored := HashOTP("482910")

	assert.True(t, VerifyOTPHash("482910", stored))
	assert.False(t, VerifyOTPHash("482911", stored))
	assert.False(t, VerifyOTPHash("", stored))
	assert.False(t, VerifyOTPHash("482910", ""))
}
