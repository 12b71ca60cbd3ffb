package billing

import (
	"errors"
	"net/http"

	"github.com/freightdesk/billingsync/handler"
	"github.com/freightdesk/billingsync/pkg/subscription"
)

type errorClass struct {
	sentinel error
	status   int
	code     string
}

// errorClasses maps engine errors onto HTTP statuses and stable codes. The
// first match wins.
var errorClasses = []errorClass{
	{subscription.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{subscription.ErrSignatureInvalid, http.StatusBadRequest, "signature_invalid"},
	{subscription.ErrMalformedEvent, http.StatusBadRequest, "malformed_event"},
	{subscription.ErrNoSubscription, http.StatusNotFound, "no_subscription"},
	{subscription.ErrEventInFlight, http.StatusConflict, "event_in_flight"},
	{subscription.ErrRecordNotReady, http.StatusConflict, "record_not_ready"},
	{subscription.ErrUnattributable, http.StatusUnprocessableEntity, "unattributable"},
	{subscription.ErrInvariantViolation, http.StatusUnprocessableEntity, "invariant_violation"},
	{subscription.ErrInvalidPlan, http.StatusUnprocessableEntity, "invalid_plan"},
	{subscription.ErrProcessorUnavailable, http.StatusServiceUnavailable, "processor_unavailable"},
	{subscription.ErrStoreWriteFailed, http.StatusServiceUnavailable, "store_unavailable"},
	{subscription.ErrStoreReadFailed, http.StatusServiceUnavailable, "store_read_failed"},
	{subscription.ErrProcessorRejected, http.StatusBadGateway, "processor_rejected"},
}

// classify reports the class of err. Client errors carry the full message;
// server errors carry only the sentinel's, keeping driver and processor
// detail out of responses.
func classify(err error) (handler.ErrorInfo, bool) {
	for _, c := range errorClasses {
		if !errors.Is(err, c.sentinel) {
			continue
		}
		msg := err.Error()
		if c.status >= http.StatusInternalServerError {
			msg = c.sentinel.Error()
		}
		return handler.ErrorInfo{
			StatusCode: c.status,
			Code:       c.code,
			Message:    msg,
			Retryable:  subscription.IsRetryable(err),
		}, true
	}
	return handler.ErrorInfo{}, false
}
