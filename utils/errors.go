// utils/errors.go
package utils

import "errors"

var (
	ErrUserIDNotFound = errors.New("authentication required: user ID not found")
	ErrUnauthorized   = errors.New("unauthorized access")

	// Shared failure taxonomy for payment reconciliation and booking
	// lifecycle operations. Controllers map these onto HTTP codes.
	ErrValidation         = errors.New("invalid input")
	ErrNotFound           = errors.New("record not found")
	ErrConflict           = errors.New("already applied")
	ErrGateway            = errors.New("payment gateway error")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvariantViolation = errors.New("payment invariant violation")
)
