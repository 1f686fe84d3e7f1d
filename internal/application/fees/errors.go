package fees

import "errors"

var (
	ErrFeeEventNotFound = errors.New("Fee event not found")
	ErrWindowExpired    = errors.New("Refund window of 60 days has expired")
	ErrNotEligible      = errors.New("Only success fees are refundable")
	ErrAlreadyRefunded  = errors.New("Fee event was already refunded")
	ErrNotOwner         = errors.New("Fee event belongs to another seller")
)
