package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidJobRequest   = errors.New("invalid job request")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrRetriesExhausted    = errors.New("retries exhausted")
	ErrAlreadyTerminal     = errors.New("job already terminal")
	ErrUnsupportedPlan     = errors.New("unsupported plan")
)
