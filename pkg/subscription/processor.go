package subscription

import (
	"context"
	"net/http"
	"time"
)

// Metadata keys written onto processor objects at checkout. They attribute
// later webhook events to an account.
const (
	MetaAccountID    = "account_id"
	MetaPlanID       = "plan_id"
	MetaBillingCycle = "billing_cycle"
)

// Processor is the port to an external payment processor.
//
// Implementations wrap transient failures in ErrProcessorUnavailable and
// permanent ones in ErrInvalidPlan or ErrProcessorRejected.
type Processor interface {
	Name() string

	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	CreatePortal(ctx context.Context, req PortalRequest) (PortalSession, error)

	// DecodeEvent verifies the signature carried in header and decodes the
	// payload. Verification failures wrap ErrSignatureInvalid; undecodable
	// payloads wrap ErrMalformedEvent.
	DecodeEvent(ctx context.Context, payload []byte, header http.Header) (Event, error)
}

type CustomerRequest struct {
	AccountID      string
	Email          string
	IdempotencyKey string
}

type CheckoutRequest struct {
	AccountID  string
	CustomerID string
	PriceID    string
	PlanID     string
	Cycle      BillingCycle
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is a processor-hosted, time-boxed checkout.
type CheckoutSession struct {
	URL       string    `json:"checkout_url"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

type PortalRequest struct {
	CustomerID     string
	SubscriptionID string
	ReturnURL      string
}

// PortalSession is a pre-authenticated self-service management link.
type PortalSession struct {
	URL       string    `json:"portal_url"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}
