package alert

import "errors"

var (
	ErrDeliveryFailed       = errors.New("alert delivery failed")
	ErrPermanentFailure     = errors.New("permanent alert delivery failure")
	ErrCircuitOpen          = errors.New("alert circuit breaker is open")
	ErrInvalidConfiguration = errors.New("invalid alert configuration")
	ErrSignatureMismatch    = errors.New("alert signature mismatch")
)
