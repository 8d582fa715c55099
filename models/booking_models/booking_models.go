package booking_models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/planora/booking-service/logger"
	"github.com/planora/booking-service/models/shared_models"
	"github.com/planora/booking-service/utils"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the reconciler can
// run booking mutations inside its transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Booking carries both payment state (written only by the reconciler) and
// vendor fulfillment state (written only by the lifecycle controller).
type Booking struct {
	ID                    uuid.UUID  `json:"id"`
	UserID                uuid.UUID  `json:"user_id"`
	PackageID             uuid.UUID  `json:"package_id"`
	AssignedVendorID      *uuid.UUID `json:"assigned_vendor_id,omitempty"`
	EventDate             time.Time  `json:"event_date"`
	Venue                 string     `json:"venue"`
	CustomerEmail         string     `json:"customer_email,omitempty"`
	TotalAmount           int64      `json:"total_amount"`
	AmountPaid            int64      `json:"amount_paid"`
	RemainingAmount       int64      `json:"remaining_amount"`
	PaymentPercentagePaid int        `json:"payment_percentage_paid"`
	RemainingPercentage   int        `json:"remaining_percentage"`
	PaymentStatus         string     `json:"payment_status"`
	VendorStatus          string     `json:"vendor_status,omitempty"`
	PaymentMethod         string     `json:"payment_method"`
	OnlinePaymentDone     bool       `json:"online_payment_done"`
	OTPVerified           bool       `json:"otp_verified"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

const bookingColumns = `id, user_id, package_id, assigned_vendor_id, event_date, venue, customer_email,
	total_amount, amount_paid, remaining_amount, payment_percentage_paid, remaining_percentage,
	payment_status, vendor_status, payment_method, online_payment_done, otp_verified,
	created_at, updated_at`

// NewBooking creates a Booking with the money fields at their creation
// state: nothing paid, full amount remaining.
func NewBooking(userID, packageID uuid.UUID, eventDate time.Time, venue, customerEmail string, totalAmount int64) (*Booking, error) {
	if totalAmount <= 0 {
		return nil, fmt.Errorf("%w: total amount must be positive", utils.ErrValidation)
	}
	id, err := shared_models.GenerateUUIDv7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for booking: %w", err)
	}
	now := time.Now()
	return &Booking{
		ID:                  id,
		UserID:              userID,
		PackageID:           packageID,
		EventDate:           eventDate,
		Venue:               venue,
		CustomerEmail:       customerEmail,
		TotalAmount:         totalAmount,
		RemainingAmount:     totalAmount,
		RemainingPercentage: 100,
		PaymentStatus:       shared_models.PaymentStatusPendingPartial,
		VendorStatus:        shared_models.VendorStatusUnassigned,
		PaymentMethod:       shared_models.PaymentMethodOnline,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// CreateBooking inserts a new booking record into the database.
func CreateBooking(ctx context.Context, db DBTX, booking *Booking) (*Booking, error) {
	logger.InfoLogger.Infof("Creating booking for user %s, package %s", booking.UserID, booking.PackageID)

	query := `
		INSERT INTO bookings (
			id, user_id, package_id, event_date, venue, customer_email,
			total_amount, amount_paid, remaining_amount,
			payment_percentage_paid, remaining_percentage,
			payment_status, vendor_status, payment_method,
			online_payment_done, otp_verified, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, 0, $7, 0, 100, $8, $9, $10, false, false, $11, $12
		) RETURNING id`

	var insertedID uuid.UUID
	err := db.QueryRow(ctx, query,
		booking.ID, booking.UserID, booking.PackageID, booking.EventDate, booking.Venue, booking.CustomerEmail,
		booking.TotalAmount, booking.PaymentStatus, booking.VendorStatus, booking.PaymentMethod,
		booking.CreatedAt, booking.UpdatedAt,
	).Scan(&insertedID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to insert booking for user %s: %v", booking.UserID, err)
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	booking.ID = insertedID
	logger.InfoLogger.Infof("Booking %s created", booking.ID)
	return booking, nil
}

// GetBookingByID fetches a booking by id.
func GetBookingByID(ctx context.Context, db DBTX, bookingID uuid.UUID) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(db.QueryRow(ctx, query, bookingID))
}

// GetBookingsByUserID returns a user's bookings, newest first.
func GetBookingsByUserID(ctx context.Context, db *pgxpool.Pool, userID uuid.UUID, limit, offset int) ([]Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to query bookings for user %s: %v", userID, err)
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading bookings: %w", err)
	}
	return bookings, nil
}

// ApplyCapture applies a settled payment amount to the booking's money
// fields. The whole recomputation happens in one UPDATE so concurrent
// captures cannot double-count: Postgres re-reads amount_paid under the row
// lock when evaluating the expressions.
func ApplyCapture(ctx context.Context, db DBTX, bookingID uuid.UUID, amount int64, online bool) (*Booking, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: capture amount must be positive", utils.ErrValidation)
	}

	query := `
		UPDATE bookings SET
			amount_paid = LEAST(total_amount, amount_paid + $2),
			remaining_amount = GREATEST(0, total_amount - (amount_paid + $2)),
			payment_percentage_paid = CASE
				WHEN amount_paid + $2 >= total_amount THEN 100
				ELSE ROUND((amount_paid + $2)::numeric / total_amount * 100)::int
			END,
			remaining_percentage = CASE
				WHEN amount_paid + $2 >= total_amount THEN 0
				ELSE 100 - ROUND((amount_paid + $2)::numeric / total_amount * 100)::int
			END,
			payment_status = CASE
				WHEN amount_paid + $2 >= total_amount THEN $3
				ELSE $4
			END,
			online_payment_done = online_payment_done OR $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookingColumns

	booking, err := scanBooking(db.QueryRow(ctx, query, bookingID, amount,
		shared_models.PaymentStatusFullyPaid, shared_models.PaymentStatusPartiallyPaid, online))
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to apply capture of %d to booking %s: %v", amount, bookingID, err)
		return nil, err
	}

	logger.InfoLogger.Infof("Applied capture of %d to booking %s: paid %d/%d (%s)",
		amount, bookingID, booking.AmountPaid, booking.TotalAmount, booking.PaymentStatus)
	return booking, nil
}

// AssignVendor sets the assigned vendor and moves vendor status to ASSIGNED.
// Only non-terminal bookings qualify.
func AssignVendor(ctx context.Context, db DBTX, bookingID, vendorID uuid.UUID) (*Booking, error) {
	query := `
		UPDATE bookings
		SET assigned_vendor_id = $2, vendor_status = $3, updated_at = NOW()
		WHERE id = $1 AND vendor_status NOT IN ($4, $5)
		RETURNING ` + bookingColumns

	booking, err := scanBooking(db.QueryRow(ctx, query, bookingID, vendorID,
		shared_models.VendorStatusAssigned, shared_models.VendorStatusCompleted, shared_models.VendorStatusCancelled))
	if err != nil {
		return nil, err
	}
	logger.InfoLogger.Infof("Vendor %s assigned to booking %s", vendorID, bookingID)
	return booking, nil
}

// TransitionVendorStatus moves vendor_status from one exact state to
// another. The WHERE clause re-checks the source state so two concurrent
// transitions cannot both win.
func TransitionVendorStatus(ctx context.Context, db DBTX, bookingID uuid.UUID, from, to string) (*Booking, error) {
	if !shared_models.CanTransitionVendorStatus(from, to) {
		return nil, fmt.Errorf("%w: cannot move vendor status from %q to %q", utils.ErrValidation, from, to)
	}

	query := `
		UPDATE bookings
		SET vendor_status = $3, updated_at = NOW()
		WHERE id = $1 AND vendor_status = $2
		RETURNING ` + bookingColumns

	booking, err := scanBooking(db.QueryRow(ctx, query, bookingID, from, to))
	if err != nil {
		return nil, err
	}
	logger.InfoLogger.Infof("Booking %s vendor status: %s -> %s", bookingID, from, to)
	return booking, nil
}

// CancelBooking terminates a non-terminal booking. Returns pgx.ErrNoRows
// when the booking is already COMPLETED or CANCELLED (or absent); callers
// distinguish the two cases by fetching the row.
func CancelBooking(ctx context.Context, db DBTX, bookingID uuid.UUID) (*Booking, error) {
	query := `
		UPDATE bookings
		SET vendor_status = $2, updated_at = NOW()
		WHERE id = $1 AND vendor_status NOT IN ($2, $3)
		RETURNING ` + bookingColumns

	booking, err := scanBooking(db.QueryRow(ctx, query, bookingID,
		shared_models.VendorStatusCancelled, shared_models.VendorStatusCompleted))
	if err != nil {
		return nil, err
	}
	logger.InfoLogger.Infof("Booking %s cancelled", bookingID)
	return booking, nil
}

// MarkOTPVerified flags a completed booking as customer-confirmed. It does
// not touch vendor_status.
func MarkOTPVerified(ctx context.Context, db DBTX, bookingID uuid.UUID) error {
	cmdTag, err := db.Exec(ctx,
		`UPDATE bookings SET otp_verified = true, updated_at = NOW() WHERE id = $1`,
		bookingID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to mark booking %s otp_verified: %v", bookingID, err)
		return fmt.Errorf("failed to mark booking verified: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID, &b.UserID, &b.PackageID, &b.AssignedVendorID, &b.EventDate, &b.Venue, &b.CustomerEmail,
		&b.TotalAmount, &b.AmountPaid, &b.RemainingAmount, &b.PaymentPercentagePaid, &b.RemainingPercentage,
		&b.PaymentStatus, &b.VendorStatus, &b.PaymentMethod, &b.OnlinePaymentDone, &b.OTPVerified,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}
	return &b, nil
}
