package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds configuration for the Stripe processor.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	// APIBaseURL points the client at another backend, e.g. stripe-mock.
	APIBaseURL string `env:"STRIPE_API_BASE_URL"`
}

// StripeProcessor implements Processor on Stripe Checkout, the Billing
// Portal and Stripe webhooks.
type StripeProcessor struct {
	api     *client.API
	secret  string
	catalog *Catalog
}

// NewStripeProcessor uses a dedicated API client rather than the package
// global key.
func NewStripeProcessor(cfg StripeConfig, catalog *Catalog) (*StripeProcessor, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var backends *stripe.Backends
	if cfg.APIBaseURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.APIBaseURL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	return &StripeProcessor{api: api, secret: cfg.WebhookSecret, catalog: catalog}, nil
}

func (p *StripeProcessor) Name() string { return "stripe" }

func (p *StripeProcessor) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{MetaAccountID: req.AccountID},
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", classifyStripeError("create customer", err, ErrProcessorRejected)
	}
	return c.ID, nil
}

func (p *StripeProcessor) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if req.PriceID == "" {
		return CheckoutSession{}, ErrMissingPriceID
	}
	if req.CustomerID == "" {
		return CheckoutSession{}, ErrMissingCustomerID
	}

	metadata := map[string]string{
		MetaAccountID:    req.AccountID,
		MetaPlanID:       req.PlanID,
		MetaBillingCycle: string(req.Cycle),
	}
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(req.CustomerID),
		ClientReferenceID: stripe.String(req.AccountID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata:   metadata,
		// Copied onto the subscription so later subscription and invoice
		// events stay attributable.
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, classifyStripeError("create checkout session", err, ErrInvalidPlan)
	}
	if sess.URL == "" {
		return CheckoutSession{}, ErrNoCheckoutURL
	}

	out := CheckoutSession{URL: sess.URL, SessionID: sess.ID}
	if sess.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(sess.ExpiresAt, 0).UTC()
	}
	return out, nil
}

func (p *StripeProcessor) CreatePortal(ctx context.Context, req PortalRequest) (PortalSession, error) {
	if req.CustomerID == "" {
		return PortalSession{}, ErrMissingCustomerID
	}
	params := &stripe.BillingPortalSessionParams{
		Customer: stripe.String(req.CustomerID),
	}
	if req.ReturnURL != "" {
		params.ReturnURL = stripe.String(req.ReturnURL)
	}
	params.Context = ctx

	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return PortalSession{}, classifyStripeError("create portal session", err, ErrProcessorRejected)
	}
	if sess.URL == "" {
		return PortalSession{}, ErrNoPortalURL
	}
	return PortalSession{URL: sess.URL}, nil
}

// stripeInvoice holds the invoice fields needed for attribution.
type stripeInvoice struct {
	ID                  string `json:"id"`
	Customer            string `json:"customer"`
	Subscription        string `json:"subscription"`
	SubscriptionDetails *struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

func (p *StripeProcessor) DecodeEvent(ctx context.Context, payload []byte, header http.Header) (Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrSignatureInvalid, err)
	}
	if event.ID == "" || event.Data == nil {
		return nil, fmt.Errorf("%w: event without id or data", ErrMalformedEvent)
	}

	meta := Meta{
		ID:         event.ID,
		Type:       string(event.Type),
		Processor:  p.Name(),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	switch meta.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		if sess.Mode != stripe.CheckoutSessionModeSubscription || sess.Subscription == nil || sess.Subscription.ID == "" {
			return Unrecognized{Meta: meta}, nil
		}
		meta.AccountID = firstNonEmpty(sess.Metadata[MetaAccountID], sess.ClientReferenceID)

		// The session only references the subscription; its periods and
		// status come from the subscription itself.
		params := &stripe.SubscriptionParams{}
		params.Context = ctx
		sub, err := p.api.Subscriptions.Get(sess.Subscription.ID, params)
		if err != nil {
			return nil, classifyStripeError("retrieve subscription", err, ErrMalformedEvent)
		}
		state, err := p.state(sub, sess.Metadata[MetaPlanID])
		if err != nil {
			return nil, err
		}
		if meta.AccountID == "" {
			meta.AccountID = sub.Metadata[MetaAccountID]
		}
		return CheckoutConfirmed{Meta: meta, State: state}, nil

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		meta.AccountID = sub.Metadata[MetaAccountID]
		state, err := p.state(&sub, sub.Metadata[MetaPlanID])
		if err != nil {
			return nil, err
		}
		if meta.Type == "customer.subscription.deleted" {
			return SubscriptionEnded{Meta: meta, State: state}, nil
		}
		return SubscriptionUpdated{Meta: meta, State: state}, nil

	case "invoice.paid", "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripeInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		if inv.SubscriptionDetails != nil {
			meta.AccountID = inv.SubscriptionDetails.Metadata[MetaAccountID]
		}
		if meta.Type == "invoice.payment_failed" {
			return InvoicePaymentFailed{Meta: meta, SubscriptionID: inv.Subscription, InvoiceID: inv.ID}, nil
		}
		return InvoicePaid{Meta: meta, SubscriptionID: inv.Subscription, InvoiceID: inv.ID}, nil
	}

	return Unrecognized{Meta: meta}, nil
}

func (p *StripeProcessor) state(sub *stripe.Subscription, taggedPlan string) (State, error) {
	var price string
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price = sub.Items.Data[0].Price.ID
	}
	plan, err := p.catalog.PlanFor(price, taggedPlan)
	if err != nil {
		return State{}, err
	}

	st := State{
		SubscriptionID:    sub.ID,
		PlanID:            plan,
		Status:            stripeStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		st.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodStart > 0 {
		st.PeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
	}
	if sub.CurrentPeriodEnd > 0 {
		st.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	return st, nil
}

func stripeStatus(s stripe.SubscriptionStatus) Status {
	switch s {
	case stripe.SubscriptionStatusTrialing:
		return StatusTrialing
	case stripe.SubscriptionStatusActive:
		return StatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return StatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return StatusCanceled
	default:
		// incomplete, paused
		return StatusInactive
	}
}

// classifyStripeError maps API errors: rate limits, server errors and
// transport failures are transient; other API errors wrap permanent.
func classifyStripeError(op string, err error, permanent error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		if serr.HTTPStatusCode == http.StatusTooManyRequests || serr.HTTPStatusCode >= 500 || serr.HTTPStatusCode == 0 {
			return fmt.Errorf("stripe %s: %w: %w", op, ErrProcessorUnavailable, err)
		}
		return fmt.Errorf("stripe %s: %w: %w", op, permanent, err)
	}
	return fmt.Errorf("stripe %s: %w: %w", op, ErrProcessorUnavailable, err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
