package otp_models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/planora/booking-service/logger"
	"github.com/planora/booking-service/models/booking_models"
	"github.com/planora/booking-service/models/shared_models"
	"github.com/planora/booking-service/utils"
)

const OTPTTL = 10 * time.Minute

// ErrInvalidOrExpired covers every verification failure: wrong code, used
// code, expired code, unknown booking. Callers get no finer detail, so a
// probing client learns nothing.
var ErrInvalidOrExpired = errors.New("otp invalid or expired")

// OTP is a one-time completion code bound to a booking. The code itself is
// stored argon2-hashed; the plaintext exists only in the issue response path
// (mailed to the customer).
type OTP struct {
	ID          uuid.UUID  `json:"id"`
	BookingID   uuid.UUID  `json:"booking_id"`
	CodeHash    string     `json:"-"`
	Type        string     `json:"type"`
	ExpiresAt   time.Time  `json:"expires_at"`
	IsUsed      bool       `json:"is_used"`
	GeneratedBy uuid.UUID  `json:"generated_by"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	VerifiedBy  *uuid.UUID `json:"verified_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IssueOTP creates a fresh completion code for a booking and invalidates any
// prior unused codes so at most one code is live at a time. Returns the
// plaintext code alongside the stored record.
func IssueOTP(ctx context.Context, db booking_models.DBTX, bookingID, generatedBy uuid.UUID, otpType string) (*OTP, string, error) {
	id, err := shared_models.GenerateUUIDv7()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate UUID for otp: %w", err)
	}

	code := utils.GenerateSecureOTP()
	now := time.Now()

	otp := &OTP{
		ID:          id,
		BookingID:   bookingID,
		CodeHash:    utils.HashOTP(code),
		Type:        otpType,
		ExpiresAt:   now.Add(OTPTTL),
		GeneratedBy: generatedBy,
		CreatedAt:   now,
	}

	// Retire earlier live codes before inserting the replacement. Expired
	// rows are already inert and stay untouched.
	_, err = db.Exec(ctx, `
		UPDATE otps SET is_used = true
		WHERE booking_id = $1 AND otp_type = $2 AND NOT is_used AND expires_at > NOW()`,
		bookingID, otpType)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to invalidate prior OTPs for booking %s: %v", bookingID, err)
		return nil, "", fmt.Errorf("failed to invalidate prior otps: %w", err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO otps (id, booking_id, code_hash, otp_type, expires_at, is_used, generated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7)`,
		otp.ID, otp.BookingID, otp.CodeHash, otp.Type, otp.ExpiresAt, otp.GeneratedBy, otp.CreatedAt)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to insert OTP for booking %s: %v", bookingID, err)
		return nil, "", fmt.Errorf("failed to create otp: %w", err)
	}

	logger.InfoLogger.Infof("Issued %s OTP for booking %s, expires %s", otpType, bookingID, otp.ExpiresAt.Format(time.RFC3339))
	return otp, code, nil
}

// ConsumeOTP verifies and burns a code in a single guarded UPDATE: the
// check (unused, unexpired, hash match) and the mark-used happen in one
// statement, so two concurrent verifications of the same code cannot both
// succeed.
func ConsumeOTP(ctx context.Context, db booking_models.DBTX, bookingID uuid.UUID, code string, verifiedBy uuid.UUID) (*OTP, error) {
	var otp OTP
	err := db.QueryRow(ctx, `
		UPDATE otps
		SET is_used = true, verified_at = NOW(), verified_by = $4
		WHERE booking_id = $1 AND code_hash = $2 AND otp_type = $3
		  AND NOT is_used AND expires_at > NOW()
		RETURNING id, booking_id, code_hash, otp_type, expires_at, is_used, generated_by, verified_at, verified_by, created_at`,
		bookingID, utils.HashOTP(code), shared_models.OTPTypeServiceCompletion, verifiedBy,
	).Scan(&otp.ID, &otp.BookingID, &otp.CodeHash, &otp.Type, &otp.ExpiresAt,
		&otp.IsUsed, &otp.GeneratedBy, &otp.VerifiedAt, &otp.VerifiedBy, &otp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidOrExpired
		}
		logger.ErrorLogger.Errorf("Failed to consume OTP for booking %s: %v", bookingID, err)
		return nil, fmt.Errorf("failed to verify otp: %w", err)
	}

	logger.InfoLogger.Infof("OTP verified for booking %s by %s", bookingID, verifiedBy)
	return &otp, nil
}

// DeleteExpiredOTPs removes long-dead rows. Housekeeping only; expiry is
// enforced at verification time.
func DeleteExpiredOTPs(ctx context.Context, db booking_models.DBTX, olderThan time.Duration) (int64, error) {
	cmdTag, err := db.Exec(ctx,
		`DELETE FROM otps WHERE expires_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otps: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// Expired reports whether the code is past its TTL at the given instant.
func (o *OTP) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
