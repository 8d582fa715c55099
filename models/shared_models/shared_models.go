package shared_models

import (
	"math"

	"github.com/google/uuid"
)

// Booking payment status. Transitions are forward-only; refunds are
// bookkeeping on the Payment row and never move this backward.
const (
	PaymentStatusPendingPartial = "PENDING_PARTIAL_PAYMENT"
	PaymentStatusPartiallyPaid  = "PARTIALLY_PAID"
	PaymentStatusFullyPaid      = "FULLY_PAID"
)

// Vendor fulfillment status. Empty string means no vendor assigned yet.
const (
	VendorStatusUnassigned = ""
	VendorStatusAssigned   = "ASSIGNED"
	VendorStatusInProgress = "IN_PROGRESS"
	VendorStatusCompleted  = "COMPLETED"
	VendorStatusCancelled  = "CANCELLED"
)

// Payment attempt status.
const (
	TxStatusPending  = "PENDING"
	TxStatusSuccess  = "SUCCESS"
	TxStatusFailed   = "FAILED"
	TxStatusRefunded = "REFUNDED"
)

const (
	PaymentMethodOnline = "online"
	PaymentMethodCash   = "cash"
)

const OTPTypeServiceCompletion = "service_completion"

// GenerateUUIDv7 generates a new UUIDv7.
func GenerateUUIDv7() (uuid.UUID, error) {
	return uuid.NewV7()
}

// IsTerminalVendorStatus reports whether no further vendor transitions are
// allowed from the given status.
func IsTerminalVendorStatus(status string) bool {
	return status == VendorStatusCompleted || status == VendorStatusCancelled
}

// CanTransitionVendorStatus checks the vendor state machine:
// unassigned/ASSIGNED -> IN_PROGRESS -> COMPLETED, CANCELLED from any
// non-terminal state.
func CanTransitionVendorStatus(from, to string) bool {
	switch to {
	case VendorStatusAssigned:
		return from == VendorStatusUnassigned || from == VendorStatusAssigned
	case VendorStatusInProgress:
		return from == VendorStatusAssigned
	case VendorStatusCompleted:
		return from == VendorStatusInProgress
	case VendorStatusCancelled:
		return !IsTerminalVendorStatus(from)
	default:
		return false
	}
}

// PaymentBreakdown is the derived money view of a booking. The same
// arithmetic runs inside the capture UPDATE statement; this form exists for
// responses and tests.
type PaymentBreakdown struct {
	AmountPaid          int64
	RemainingAmount     int64
	PercentagePaid      int
	RemainingPercentage int
	PaymentStatus       string
}

// ComputePaymentBreakdown clamps paid into [0, total] and derives the
// percentage and status fields.
func ComputePaymentBreakdown(totalAmount, amountPaid int64) PaymentBreakdown {
	if amountPaid < 0 {
		amountPaid = 0
	}
	if amountPaid > totalAmount {
		amountPaid = totalAmount
	}

	b := PaymentBreakdown{
		AmountPaid:      amountPaid,
		RemainingAmount: totalAmount - amountPaid,
	}

	switch {
	case totalAmount > 0 && amountPaid >= totalAmount:
		b.PercentagePaid = 100
		b.PaymentStatus = PaymentStatusFullyPaid
	case amountPaid > 0:
		b.PercentagePaid = int(math.Round(float64(amountPaid) / float64(totalAmount) * 100))
		b.PaymentStatus = PaymentStatusPartiallyPaid
	default:
		b.PaymentStatus = PaymentStatusPendingPartial
	}
	b.RemainingPercentage = 100 - b.PercentagePaid

	return b
}
