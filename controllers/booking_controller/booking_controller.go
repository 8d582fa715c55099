package booking_controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/planora/booking-service/logger"
	"github.com/planora/booking-service/middlewares/auth"
	"github.com/planora/booking-service/models/booking_models"
	"github.com/planora/booking-service/models/otp_models"
	"github.com/planora/booking-service/models/shared_models"
	"github.com/planora/booking-service/utils"
	"github.com/planora/booking-service/utils/mail"
	"github.com/redis/go-redis/v9"
)

// Completion code issue throttle, per booking.
const (
	otpIssueLimit  = 3
	otpIssueWindow = 10 * time.Minute
	otpIssuePrefix = "completion_otp_issue:"
)

// store is the persistence surface the lifecycle handlers write through.
// Production wraps the model packages; tests substitute an in-memory fake
// mirroring the guarded-UPDATE semantics.
type store interface {
	CreateBooking(ctx context.Context, b *booking_models.Booking) (*booking_models.Booking, error)
	GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*booking_models.Booking, error)
	GetBookingsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]booking_models.Booking, error)
	AssignVendor(ctx context.Context, bookingID, vendorID uuid.UUID) (*booking_models.Booking, error)
	TransitionVendorStatus(ctx context.Context, bookingID uuid.UUID, from, to string) (*booking_models.Booking, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID) (*booking_models.Booking, error)
	MarkOTPVerified(ctx context.Context, bookingID uuid.UUID) error
	IssueOTP(ctx context.Context, bookingID, generatedBy uuid.UUID, otpType string) (*otp_models.OTP, string, error)
	ConsumeOTP(ctx context.Context, bookingID uuid.UUID, code string, verifiedBy uuid.UUID) (*otp_models.OTP, error)
}

// pgStore implements store over the model packages.
type pgStore struct {
	db *pgxpool.Pool
}

func (s *pgStore) CreateBooking(ctx context.Context, b *booking_models.Booking) (*booking_models.Booking, error) {
	return booking_models.CreateBooking(ctx, s.db, b)
}

func (s *pgStore) GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*booking_models.Booking, error) {
	return booking_models.GetBookingByID(ctx, s.db, bookingID)
}

func (s *pgStore) GetBookingsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]booking_models.Booking, error) {
	return booking_models.GetBookingsByUserID(ctx, s.db, userID, limit, offset)
}

func (s *pgStore) AssignVendor(ctx context.Context, bookingID, vendorID uuid.UUID) (*booking_models.Booking, error) {
	return booking_models.AssignVendor(ctx, s.db, bookingID, vendorID)
}

func (s *pgStore) TransitionVendorStatus(ctx context.Context, bookingID uuid.UUID, from, to string) (*booking_models.Booking, error) {
	return booking_models.TransitionVendorStatus(ctx, s.db, bookingID, from, to)
}

func (s *pgStore) CancelBooking(ctx context.Context, bookingID uuid.UUID) (*booking_models.Booking, error) {
	return booking_models.CancelBooking(ctx, s.db, bookingID)
}

func (s *pgStore) MarkOTPVerified(ctx context.Context, bookingID uuid.UUID) error {
	return booking_models.MarkOTPVerified(ctx, s.db, bookingID)
}

func (s *pgStore) IssueOTP(ctx context.Context, bookingID, generatedBy uuid.UUID, otpType string) (*otp_models.OTP, string, error) {
	return otp_models.IssueOTP(ctx, s.db, bookingID, generatedBy, otpType)
}

func (s *pgStore) ConsumeOTP(ctx context.Context, bookingID uuid.UUID, code string, verifiedBy uuid.UUID) (*otp_models.OTP, error) {
	return otp_models.ConsumeOTP(ctx, s.db, bookingID, code, verifiedBy)
}

// BookingController exposes the lifecycle operations that are not
// payment-driven. Money fields are never written here; those belong to the
// reconciler.
type BookingController struct {
	Store store
	Redis *redis.Client
}

// NewBookingController creates a booking controller. redisClient may be nil
// in tests; the OTP throttle then degrades to allow.
func NewBookingController(db *pgxpool.Pool, redisClient *redis.Client) *BookingController {
	return &BookingController{
		Store: &pgStore{db: db},
		Redis: redisClient,
	}
}

type createBookingRequest struct {
	PackageID     string `json:"package_id" binding:"required,uuid"`
	EventDate     string `json:"event_date" binding:"required"`
	Venue         string `json:"venue" binding:"required"`
	CustomerEmail string `json:"customer_email" binding:"required,email"`
	TotalAmount   int64  `json:"total_amount" binding:"required,gt=0"`
}

// CreateBooking opens a booking with nothing paid and the full amount
// outstanding.
func (bc *BookingController) CreateBooking(c *gin.Context) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	packageID, err := uuid.Parse(req.PackageID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid package id"})
		return
	}
	eventDate, err := time.Parse(time.RFC3339, req.EventDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_date must be RFC3339"})
		return
	}

	booking, err := booking_models.NewBooking(userID, packageID, eventDate, req.Venue, req.CustomerEmail, req.TotalAmount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := bc.Store.CreateBooking(c.Request.Context(), booking); err != nil {
		logger.ErrorLogger.Errorf("Failed to create booking for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create booking"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"booking": booking})
}

// GetBooking returns a single booking to its owner, its assigned vendor or
// an admin.
func (bc *BookingController) GetBooking(c *gin.Context) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := bc.Store.GetBookingByID(c.Request.Context(), bookingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		logger.ErrorLogger.Errorf("Failed to fetch booking %s: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch booking"})
		return
	}

	if !bc.canView(c, booking, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// ListBookings returns the caller's bookings, newest first.
func (bc *BookingController) ListBookings(c *gin.Context) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := bc.Store.GetBookingsByUserID(c.Request.Context(), userID, limit, offset)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to list bookings for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bookings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"limit":    limit,
		"offset":   offset,
	})
}

// AssignVendor puts a vendor on a non-terminal booking. Admin only. No
// payment precondition: a booking may be staffed before the deposit lands.
func (bc *BookingController) AssignVendor(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var req struct {
		VendorID string `json:"vendor_id" binding:"required,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vendorID, err := uuid.Parse(req.VendorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vendor id"})
		return
	}

	booking, err := bc.Store.AssignVendor(c.Request.Context(), bookingID, vendorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			bc.writeGuardedUpdateMiss(c, bookingID)
			return
		}
		logger.ErrorLogger.Errorf("Failed to assign vendor %s to booking %s: %v", vendorID, bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assign vendor"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// StartService moves an ASSIGNED booking to IN_PROGRESS. Only the assigned
// vendor may start.
func (bc *BookingController) StartService(c *gin.Context) {
	booking, ok := bc.loadForVendor(c)
	if !ok {
		return
	}

	updated, err := bc.Store.TransitionVendorStatus(c.Request.Context(), booking.ID,
		shared_models.VendorStatusAssigned, shared_models.VendorStatusInProgress)
	if err != nil {
		bc.writeTransitionError(c, booking, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": updated})
}

// MarkComplete moves an IN_PROGRESS booking to COMPLETED and issues a
// completion code the customer hands the vendor on-site. The code is
// mailed to the booking's contact address; delivery is best effort and
// never blocks the transition.
func (bc *BookingController) MarkComplete(c *gin.Context) {
	booking, ok := bc.loadForVendor(c)
	if !ok {
		return
	}
	vendorID, _ := auth.UserIDFromContext(c)

	if err := bc.checkOTPThrottle(c, booking.ID); err != nil {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": ErrOTPThrottled.Error()})
		return
	}

	updated, err := bc.Store.TransitionVendorStatus(c.Request.Context(), booking.ID,
		shared_models.VendorStatusInProgress, shared_models.VendorStatusCompleted)
	if err != nil {
		// No code was issued; give the slot back so failed attempts cannot
		// lock the vendor out of the real completion.
		bc.releaseOTPThrottle(c, booking.ID)
		bc.writeTransitionError(c, booking, err)
		return
	}

	otp, code, err := bc.Store.IssueOTP(c.Request.Context(), booking.ID, vendorID, shared_models.OTPTypeServiceCompletion)
	if err != nil {
		bc.releaseOTPThrottle(c, booking.ID)
		logger.ErrorLogger.Errorf("Booking %s completed but OTP issue failed: %v", booking.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "completed but verification code could not be issued"})
		return
	}

	go func(email, bookingID, code string) {
		if err := mail.SendCompletionOTP(email, bookingID, code); err != nil {
			logger.WarnLogger.Warnf("Completion code email failed for booking %s: %v", bookingID, err)
		}
	}(updated.CustomerEmail, updated.ID.String(), code)

	c.JSON(http.StatusOK, gin.H{
		"booking":        updated,
		"otp_expires_at": otp.ExpiresAt,
	})
}

// ReissueCompletionOTP issues a fresh completion code for an already
// COMPLETED, not yet verified booking. Prior live codes are retired.
func (bc *BookingController) ReissueCompletionOTP(c *gin.Context) {
	booking, ok := bc.loadForVendor(c)
	if !ok {
		return
	}
	vendorID, _ := auth.UserIDFromContext(c)

	if booking.VendorStatus != shared_models.VendorStatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "booking is not completed"})
		return
	}
	if booking.OTPVerified {
		c.JSON(http.StatusConflict, gin.H{"error": "completion already verified"})
		return
	}

	if err := bc.checkOTPThrottle(c, booking.ID); err != nil {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": ErrOTPThrottled.Error()})
		return
	}

	otp, code, err := bc.Store.IssueOTP(c.Request.Context(), booking.ID, vendorID, shared_models.OTPTypeServiceCompletion)
	if err != nil {
		bc.releaseOTPThrottle(c, booking.ID)
		logger.ErrorLogger.Errorf("Failed to reissue OTP for booking %s: %v", booking.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue verification code"})
		return
	}

	go func(email, bookingID, code string) {
		if err := mail.SendCompletionOTP(email, bookingID, code); err != nil {
			logger.WarnLogger.Warnf("Completion code email failed for booking %s: %v", bookingID, err)
		}
	}(booking.CustomerEmail, booking.ID.String(), code)

	c.JSON(http.StatusOK, gin.H{"otp_expires_at": otp.ExpiresAt})
}

// VerifyCompletionOTP burns the customer's code and flags the booking as
// customer-confirmed. The code is never echoed back.
func (bc *BookingController) VerifyCompletionOTP(c *gin.Context) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var req struct {
		Code string `json:"code" binding:"required,len=6,numeric"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a 6-digit code is required"})
		return
	}

	if _, err := bc.Store.ConsumeOTP(c.Request.Context(), bookingID, req.Code, userID); err != nil {
		if errors.Is(err, otp_models.ErrInvalidOrExpired) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired code"})
			return
		}
		logger.ErrorLogger.Errorf("OTP verification failed for booking %s: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	if err := bc.Store.MarkOTPVerified(c.Request.Context(), bookingID); err != nil {
		logger.ErrorLogger.Errorf("OTP consumed but booking %s not flagged verified: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": true})
}

// CancelBooking terminates a non-terminal booking. Owner and admin only.
// Cancelling does not touch money fields; refunds are a separate admin
// path.
func (bc *BookingController) CancelBooking(c *gin.Context) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := bc.Store.GetBookingByID(c.Request.Context(), bookingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		logger.ErrorLogger.Errorf("Failed to fetch booking %s for cancel: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel booking"})
		return
	}

	if booking.UserID != userID && auth.RoleFromContext(c) != auth.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	cancelled, err := bc.Store.CancelBooking(c.Request.Context(), bookingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row exists (fetched above), so the guard lost to a terminal state.
			c.JSON(http.StatusConflict, gin.H{"error": ErrAlreadyTerminal.Error()})
			return
		}
		logger.ErrorLogger.Errorf("Failed to cancel booking %s: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel booking"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": cancelled})
}

// loadForVendor parses the booking id, loads the booking and checks the
// caller is its assigned vendor (admins pass too). Writes the response on
// failure.
func (bc *BookingController) loadForVendor(c *gin.Context) (*booking_models.Booking, bool) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return nil, false
	}

	booking, err := bc.Store.GetBookingByID(c.Request.Context(), bookingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return nil, false
		}
		logger.ErrorLogger.Errorf("Failed to fetch booking %s: %v", bookingID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch booking"})
		return nil, false
	}

	isAssignedVendor := booking.AssignedVendorID != nil && *booking.AssignedVendorID == userID
	if !isAssignedVendor && auth.RoleFromContext(c) != auth.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the assigned vendor"})
		return nil, false
	}

	return booking, true
}

func (bc *BookingController) canView(c *gin.Context, booking *booking_models.Booking, userID uuid.UUID) bool {
	if booking.UserID == userID {
		return true
	}
	if booking.AssignedVendorID != nil && *booking.AssignedVendorID == userID {
		return true
	}
	return auth.RoleFromContext(c) == auth.RoleAdmin
}

// checkOTPThrottle enforces the per-booking issue limit in Redis. Redis
// trouble degrades to allow; the limit is abuse protection, not a
// correctness guard.
func (bc *BookingController) checkOTPThrottle(c *gin.Context, bookingID uuid.UUID) error {
	rdb := bc.Redis
	if rdb == nil {
		return nil
	}

	key := otpIssuePrefix + bookingID.String()
	count, err := rdb.Incr(c.Request.Context(), key).Result()
	if err != nil {
		logger.WarnLogger.Warnf("OTP throttle check failed for booking %s: %v", bookingID, err)
		return nil
	}
	if count == 1 {
		rdb.Expire(c.Request.Context(), key, otpIssueWindow)
	}
	if count > otpIssueLimit {
		return ErrOTPThrottled
	}
	return nil
}

// releaseOTPThrottle gives back a throttle slot consumed by an attempt that
// never issued a code.
func (bc *BookingController) releaseOTPThrottle(c *gin.Context, bookingID uuid.UUID) {
	if bc.Redis == nil {
		return
	}
	key := otpIssuePrefix + bookingID.String()
	if err := bc.Redis.Decr(c.Request.Context(), key).Err(); err != nil {
		logger.WarnLogger.Warnf("OTP throttle release failed for booking %s: %v", bookingID, err)
	}
}

// writeGuardedUpdateMiss distinguishes "absent" from "terminal" after a
// guarded UPDATE matched no row.
func (bc *BookingController) writeGuardedUpdateMiss(c *gin.Context, bookingID uuid.UUID) {
	booking, err := bc.Store.GetBookingByID(c.Request.Context(), bookingID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		return
	}
	if shared_models.IsTerminalVendorStatus(booking.VendorStatus) {
		c.JSON(http.StatusConflict, gin.H{"error": ErrAlreadyTerminal.Error()})
		return
	}
	c.JSON(http.StatusConflict, gin.H{"error": "booking changed concurrently, retry"})
}

// writeTransitionError maps TransitionVendorStatus failures. The model
// rejects impossible transitions up front; a no-row result means the
// source-state guard missed.
func (bc *BookingController) writeTransitionError(c *gin.Context, booking *booking_models.Booking, err error) {
	switch {
	case errors.Is(err, utils.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %s", ErrInvalidTransition.Error(), err.Error())})
	case errors.Is(err, pgx.ErrNoRows):
		if shared_models.IsTerminalVendorStatus(booking.VendorStatus) {
			c.JSON(http.StatusConflict, gin.H{"error": ErrAlreadyTerminal.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidTransition.Error()})
	default:
		logger.ErrorLogger.Errorf("Vendor status transition failed for booking %s: %v", booking.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transition failed"})
	}
}
