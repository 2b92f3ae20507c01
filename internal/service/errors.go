package service

import "errors"

// Sentinel errors returned by the service layer. Handlers map these to
// HTTP status codes with errors.Is.
var (
	ErrNotFound          = errors.New("record not found")
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("access denied")
	ErrOtpExpired        = errors.New("otp expired")
	ErrCodeMismatch      = errors.New("invalid otp code")
	ErrDeliveryFailed    = errors.New("otp delivery failed")
	ErrTooManyRequests   = errors.New("too many requests")
	ErrNotFullyVerified  = errors.New("agreement not fully verified")
	ErrNumberUnavailable = errors.New("agreement number allocation failed")
)
