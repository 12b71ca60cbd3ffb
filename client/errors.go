package client

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/freightdesk/billingsync/pkg/subscription"
)

var (
	ErrInvalidBaseURL = errors.New("client: invalid base URL")
	ErrNoCredential   = errors.New("client: no valid credential; sign in again")
	ErrUnreachable    = errors.New("client: billing api unreachable")
)

// APIError is a non-2xx answer of the billing API. It unwraps to the
// matching subscription sentinel, so errors.Is(err, subscription.ErrInvalidPlan)
// works across the wire.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "billing api: " + http.StatusText(e.Status)
	}
	return "billing api: " + e.Message
}

var codeSentinels = map[string]error{
	"unauthenticated":       subscription.ErrUnauthenticated,
	"invalid_plan":          subscription.ErrInvalidPlan,
	"no_subscription":       subscription.ErrNoSubscription,
	"processor_unavailable": subscription.ErrProcessorUnavailable,
	"processor_rejected":    subscription.ErrProcessorRejected,
	"store_unavailable":     subscription.ErrStoreWriteFailed,
	"store_read_failed":     subscription.ErrStoreReadFailed,
}

func (e *APIError) Unwrap() error {
	return codeSentinels[e.Code]
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Code, apiErr.Message = body.Error.Code, body.Error.Message
	}
	return apiErr
}
