package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/freightdesk/billingsync/pkg/backoff"
	"github.com/freightdesk/billingsync/pkg/logger"
	"github.com/freightdesk/billingsync/pkg/subscription"
)

// Client calls the billing HTTP API. Every call takes the caller's
// credential explicitly; the client holds no token state.
type Client struct {
	base     *url.URL
	http     *http.Client
	retry    backoff.Strategy
	retries  int
	waitOpts []subscription.WaiterOption
	log      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithRetry sets the backoff used when the API answers 503.
func WithRetry(strategy backoff.Strategy, retries int) Option {
	return func(cl *Client) {
		if strategy != nil {
			cl.retry = strategy
		}
		if retries >= 0 {
			cl.retries = retries
		}
	}
}

// WithWaitSchedule overrides the AwaitActive re-read schedule.
func WithWaitSchedule(rereads int, strategy backoff.Strategy) Option {
	return func(cl *Client) {
		cl.waitOpts = append(cl.waitOpts, subscription.WithWaitSchedule(rereads, strategy))
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// New returns a client for the billing routes mounted at baseURL, e.g.
// https://api.example.com/billing.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   backoff.Exponential{InitialInterval: 250 * time.Millisecond, MaxInterval: 4 * time.Second, Multiplier: 2, JitterFactor: 0.1},
		retries: 3,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Checkout opens a hosted checkout for the credential's account.
func (c *Client) Checkout(ctx context.Context, cred Credential, in subscription.CheckoutInput) (subscription.CheckoutSession, error) {
	var out subscription.CheckoutSession
	err := c.call(ctx, cred, http.MethodPost, "/checkout", in, &out)
	return out, err
}

// Portal opens a self-service management session.
func (c *Client) Portal(ctx context.Context, cred Credential) (subscription.PortalSession, error) {
	var out subscription.PortalSession
	err := c.call(ctx, cred, http.MethodPost, "/portal", struct{}{}, &out)
	return out, err
}

type subscriptionResponse struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Pending      bool                       `json:"pending"`
}

// Subscription returns the account's record. It returns
// subscription.ErrSubscriptionNotFound when the account has none.
func (c *Client) Subscription(ctx context.Context, cred Credential) (subscription.Subscription, error) {
	var out subscriptionResponse
	if err := c.call(ctx, cred, http.MethodGet, "/subscription", nil, &out); err != nil {
		return subscription.Subscription{}, err
	}
	if out.Subscription == nil {
		return subscription.Subscription{}, subscription.ErrSubscriptionNotFound
	}
	return *out.Subscription, nil
}

// AwaitActive re-reads the record after a checkout redirect until it is
// active-like or the wait bound is spent.
func (c *Client) AwaitActive(ctx context.Context, cred Credential) (subscription.Reconciliation, error) {
	read := func(ctx context.Context, _ string) (subscription.Subscription, error) {
		return c.Subscription(ctx, cred)
	}
	opts := append([]subscription.WaiterOption{subscription.WithWaitLogger(c.log)}, c.waitOpts...)
	return subscription.NewWaiter(read, opts...).Await(ctx, cred.AccountID)
}

func (c *Client) call(ctx context.Context, cred Credential, method, path string, in, out any) error {
	if !cred.Valid() {
		return ErrNoCredential
	}

	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
	}

	return backoff.Retry(ctx, c.retry, c.retries, isUnavailable, func(ctx context.Context) error {
		return c.once(ctx, cred, method, path, body, out)
	})
}

func (c *Client) once(ctx context.Context, cred Credential, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Join(ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := decodeAPIError(resp)
		c.log.DebugContext(ctx, "billing api error",
			slog.String("path", path),
			slog.Int("status", apiErr.Status),
			slog.String("code", apiErr.Code),
		)
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func isUnavailable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusServiceUnavailable
	}
	return errors.Is(err, ErrUnreachable)
}
