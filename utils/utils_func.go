package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log"
	"os"

	"github.com/planora/booking-service/config"
	"golang.org/x/crypto/argon2"
)

func init() {
	config.LoadEnv()
}

func GetJWTSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Println("WARNING: JWT_SECRET environment variable not set.")
		return []byte("default-insecure-secret-only-for-development")
	}
	return []byte(secret)
}

// GenerateSecureOTP returns a 6-digit numeric code using crypto/rand.
func GenerateSecureOTP() string {
	const otpChars = "0123456789"
	bytes := make([]byte, 6)
	_, err := rand.Read(bytes)
	if err != nil {
		log.Println("Error generating secure OTP:", err)
		return "000000"
	}
	for i := range bytes {
		bytes[i] = otpChars[bytes[i]%byte(len(otpChars))]
	}
	return string(bytes)
}

// HashOTP derives a fixed salt argon2id digest of the code. Codes are
// short-lived and single-use, so a per-code salt buys nothing here.
func HashOTP(otp string) string {
	salt := []byte("planora_otp_salt")
	hashed := argon2.IDKey([]byte(otp), salt, 1, 64*1024, 4, 32)
	return fmt.Sprintf("%x", hashed)
}

// VerifyOTPHash compares a plaintext code against a stored digest in
// constant time.
func VerifyOTPHash(otp, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashOTP(otp)), []byte(storedHash)) == 1
}
