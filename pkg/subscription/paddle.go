package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"
)

// PaddleConfig holds configuration for the Paddle processor.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	// APIBaseURL overrides the endpoint implied by Environment.
	APIBaseURL string `env:"PADDLE_API_BASE_URL"`
}

// PaddleProcessor implements Processor on Paddle Billing.
type PaddleProcessor struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	catalog  *Catalog
}

func NewPaddleProcessor(cfg PaddleConfig, catalog *Catalog) (*PaddleProcessor, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	opts := []paddle.Option{paddle.WithClient(paddleDoer{client: &http.Client{Timeout: 30 * time.Second}})}
	if cfg.APIBaseURL != "" {
		opts = append(opts, paddle.WithBaseURL(cfg.APIBaseURL))
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey, opts...)
	case "production", "":
		client, err = paddle.New(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProcessor{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		catalog:  catalog,
	}, nil
}

func (p *PaddleProcessor) Name() string { return "paddle" }

func (p *PaddleProcessor) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	// Paddle requires an email; accounts without one get a stable
	// placeholder on a reserved domain.
	email := req.Email
	if email == "" {
		email = req.AccountID + "@accounts.invalid"
	}
	c, err := p.client.CustomersClient.CreateCustomer(ctx, &paddle.CreateCustomerRequest{
		Email:      email,
		CustomData: paddle.CustomData{MetaAccountID: req.AccountID},
	})
	if errors.Is(err, paddle.ErrCustomerAlreadyExists) {
		return p.existingCustomer(ctx, email, err)
	}
	if err != nil {
		return "", classifyPaddleError("create customer", err, ErrProcessorRejected)
	}
	return c.ID, nil
}

var paddleCustomerID = regexp.MustCompile(`\bctm_[0-9a-z]+\b`)

// existingCustomer resolves the customer that made CreateCustomer conflict.
// Paddle names it in the error detail; the email lookup covers details that
// do not.
func (p *PaddleProcessor) existingCustomer(ctx context.Context, email string, conflict error) (string, error) {
	var perr *paddleerr.Error
	if errors.As(conflict, &perr) {
		if id := paddleCustomerID.FindString(perr.Detail); id != "" {
			return id, nil
		}
	}

	list, err := p.client.CustomersClient.ListCustomers(ctx, &paddle.ListCustomersRequest{Email: []string{email}})
	if err != nil {
		return "", classifyPaddleError("list customers", err, ErrProcessorRejected)
	}
	var id string
	err = list.Iter(ctx, func(c *paddle.Customer) (bool, error) {
		id = c.ID
		return id == "", nil
	})
	if err != nil {
		return "", classifyPaddleError("list customers", err, ErrProcessorRejected)
	}
	if id == "" {
		return "", fmt.Errorf("paddle create customer: %w: %w", ErrProcessorRejected, conflict)
	}
	return id, nil
}

func (p *PaddleProcessor) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if req.PriceID == "" {
		return CheckoutSession{}, ErrMissingPriceID
	}
	if req.CustomerID == "" {
		return CheckoutSession{}, ErrMissingCustomerID
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	// Paddle copies transaction custom data onto the subscription it
	// creates, which attributes every later event.
	txReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(req.CustomerID),
		CustomData: paddle.CustomData{
			MetaAccountID:    req.AccountID,
			MetaPlanID:       req.PlanID,
			MetaBillingCycle: string(req.Cycle),
		},
	}
	if req.SuccessURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(req.SuccessURL)}
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		return CheckoutSession{}, classifyPaddleError("create transaction", err, ErrInvalidPlan)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
		return CheckoutSession{}, ErrNoCheckoutURL
	}

	return CheckoutSession{
		URL:       *tx.Checkout.URL,
		SessionID: tx.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour).UTC(),
	}, nil
}

func (p *PaddleProcessor) CreatePortal(ctx context.Context, req PortalRequest) (PortalSession, error) {
	if req.CustomerID == "" {
		return PortalSession{}, ErrMissingCustomerID
	}
	portalReq := &paddle.CreateCustomerPortalSessionRequest{CustomerID: req.CustomerID}
	if req.SubscriptionID != "" {
		portalReq.SubscriptionIDs = []string{req.SubscriptionID}
	}

	sess, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, portalReq)
	if err != nil {
		return PortalSession{}, classifyPaddleError("create portal session", err, ErrProcessorRejected)
	}
	if sess.URLs.General.Overview == "" {
		return PortalSession{}, ErrNoPortalURL
	}
	return PortalSession{
		URL:       sess.URLs.General.Overview,
		ExpiresAt: time.Now().Add(24 * time.Hour).UTC(),
	}, nil
}

type paddleEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddlePeriod struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type paddleSubscription struct {
	ID                   string         `json:"id"`
	Status               string         `json:"status"`
	CustomerID           string         `json:"customer_id"`
	CustomData           map[string]any `json:"custom_data"`
	CurrentBillingPeriod *paddlePeriod  `json:"current_billing_period"`
	ScheduledChange      *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
	Items []struct {
		Price struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
}

type paddleTransaction struct {
	ID             string         `json:"id"`
	SubscriptionID string         `json:"subscription_id"`
	CustomData     map[string]any `json:"custom_data"`
}

func (p *PaddleProcessor) DecodeEvent(ctx context.Context, payload []byte, header http.Header) (Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", header.Get("Paddle-Signature"))

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrSignatureInvalid, err)
	}
	if !valid {
		return nil, ErrSignatureInvalid
	}

	var env paddleEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if env.EventID == "" {
		return nil, fmt.Errorf("%w: event without id", ErrMalformedEvent)
	}

	meta := Meta{
		ID:         env.EventID,
		Type:       env.EventType,
		Processor:  p.Name(),
		OccurredAt: env.OccurredAt.UTC(),
	}

	switch env.EventType {
	case "subscription.created", "subscription.updated", "subscription.activated",
		"subscription.past_due", "subscription.paused", "subscription.resumed",
		"subscription.trialing", "subscription.canceled":
		var sub paddleSubscription
		if err := json.Unmarshal(env.Data, &sub); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		meta.AccountID = customString(sub.CustomData, MetaAccountID)
		state, err := p.state(sub)
		if err != nil {
			return nil, err
		}
		switch env.EventType {
		case "subscription.created":
			return CheckoutConfirmed{Meta: meta, State: state}, nil
		case "subscription.canceled":
			return SubscriptionEnded{Meta: meta, State: state}, nil
		default:
			return SubscriptionUpdated{Meta: meta, State: state}, nil
		}

	case "transaction.completed", "transaction.payment_failed":
		var tx paddleTransaction
		if err := json.Unmarshal(env.Data, &tx); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		meta.AccountID = customString(tx.CustomData, MetaAccountID)
		if env.EventType == "transaction.payment_failed" {
			return InvoicePaymentFailed{Meta: meta, SubscriptionID: tx.SubscriptionID, InvoiceID: tx.ID}, nil
		}
		return InvoicePaid{Meta: meta, SubscriptionID: tx.SubscriptionID, InvoiceID: tx.ID}, nil
	}

	return Unrecognized{Meta: meta}, nil
}

func (p *PaddleProcessor) state(sub paddleSubscription) (State, error) {
	var price string
	if len(sub.Items) > 0 {
		price = sub.Items[0].Price.ID
	}
	plan, err := p.catalog.PlanFor(price, customString(sub.CustomData, MetaPlanID))
	if err != nil {
		return State{}, err
	}

	st := State{
		SubscriptionID:    sub.ID,
		CustomerID:        sub.CustomerID,
		PlanID:            plan,
		Status:            paddleStatus(sub.Status),
		CancelAtPeriodEnd: sub.ScheduledChange != nil && sub.ScheduledChange.Action == "cancel",
	}
	if sub.CurrentBillingPeriod != nil {
		st.PeriodStart = sub.CurrentBillingPeriod.StartsAt.UTC()
		st.PeriodEnd = sub.CurrentBillingPeriod.EndsAt.UTC()
	}
	return st, nil
}

func paddleStatus(s string) Status {
	switch strings.ToLower(s) {
	case "trialing":
		return StatusTrialing
	case "active":
		return StatusActive
	case "past_due":
		return StatusPastDue
	case "canceled", "cancelled":
		return StatusCanceled
	default:
		// paused
		return StatusInactive
	}
}

func customString(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

// paddleDoer sends SDK requests and decodes error responses itself so the
// returned *paddleerr.Error carries the HTTP status, which the SDK leaves
// unset.
type paddleDoer struct {
	client *http.Client
}

func (d paddleDoer) Do(req *http.Request) (*http.Response, error) {
	res, err := d.client.Do(req)
	if err != nil || res.StatusCode < http.StatusBadRequest {
		return res, err
	}
	defer res.Body.Close()

	var body struct {
		Error *paddleerr.Error `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	perr := &paddleerr.Error{Type: paddleerr.ErrorTypeRequestError, Code: "http_" + strconv.Itoa(res.StatusCode)}
	if res.StatusCode >= http.StatusInternalServerError {
		perr.Type = paddleerr.ErrorTypeAPIError
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != nil {
		perr = body.Error
	}
	perr.Status = res.StatusCode
	return nil, perr
}

// classifyPaddleError maps API errors: rate limits, server errors and
// transport failures are transient; other API errors wrap permanent.
func classifyPaddleError(op string, err error, permanent error) error {
	var perr *paddleerr.Error
	if errors.As(err, &perr) {
		if perr.Status == http.StatusTooManyRequests || perr.Status >= http.StatusInternalServerError || perr.Type == paddleerr.ErrorTypeAPIError {
			return fmt.Errorf("paddle %s: %w: %w", op, ErrProcessorUnavailable, err)
		}
		return fmt.Errorf("paddle %s: %w: %w", op, permanent, err)
	}

	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &urlErr) {
		return fmt.Errorf("paddle %s: %w: %w", op, ErrProcessorUnavailable, err)
	}
	return fmt.Errorf("paddle %s: %w: %w", op, permanent, err)
}
