package booking_controller

import "errors"

var (
	// ErrAlreadyTerminal is returned when a cancel or transition targets a
	// booking already in CANCELLED or COMPLETED.
	ErrAlreadyTerminal = errors.New("booking is already in a terminal state")

	// ErrInvalidTransition is returned when the requested vendor status
	// change is not allowed from the booking's current state.
	ErrInvalidTransition = errors.New("invalid vendor status transition")

	// ErrOTPThrottled is returned when a booking has hit the completion
	// code issue limit for the current window.
	ErrOTPThrottled = errors.New("too many completion codes issued, try again later")
)
