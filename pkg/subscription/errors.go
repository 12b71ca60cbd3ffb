package subscription

import "errors"

var (
	ErrUnauthenticated      = errors.New("caller is not authenticated")
	ErrInvalidPlan          = errors.New("invalid plan or price")
	ErrNoSubscription       = errors.New("account has no billing customer; complete a checkout first")
	ErrProcessorUnavailable = errors.New("billing processor unavailable")
	ErrProcessorRejected    = errors.New("billing processor rejected the request")
	ErrUnattributable       = errors.New("webhook event carries no account attribution")
	ErrSignatureInvalid     = errors.New("webhook signature verification failed")
	ErrStoreWriteFailed     = errors.New("subscription store write failed")
	ErrStoreReadFailed      = errors.New("subscription store read failed")

	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrRevisionConflict     = errors.New("subscription revision conflict")
	ErrRecordNotReady       = errors.New("no subscription record for event yet")
	ErrEventInFlight        = errors.New("webhook event is being processed by another delivery")
	ErrMalformedEvent       = errors.New("malformed webhook event")
	ErrInvariantViolation   = errors.New("event would violate subscription invariants")

	ErrInvalidCatalog       = errors.New("invalid plan catalog")
	ErrFailedToLoadPlans    = errors.New("failed to load plan catalog")
	ErrMissingAPIKey        = errors.New("billing processor API key is required")
	ErrMissingWebhookSecret = errors.New("billing processor webhook secret is required")
	ErrInvalidEnvironment   = errors.New("invalid billing processor environment")
	ErrNoCheckoutURL        = errors.New("no checkout URL returned from processor")
	ErrNoPortalURL          = errors.New("no portal URL returned from processor")
	ErrMissingCustomerID    = errors.New("processor customer ID is required")
	ErrMissingPriceID       = errors.New("price ID is required")
	ErrUnknownProcessor     = errors.New("unknown billing processor")
)

// IsRetryable reports whether the caller, or the processor redelivering a
// webhook, should try again later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProcessorUnavailable) ||
		errors.Is(err, ErrStoreWriteFailed) ||
		errors.Is(err, ErrStoreReadFailed) ||
		errors.Is(err, ErrEventInFlight) ||
		errors.Is(err, ErrRecordNotReady)
}
