package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/freightdesk/billingsync/pkg/backoff"
)

// Config for the operator webhook.
type Config struct {
	URL              string        `env:"ALERT_WEBHOOK_URL"`
	Secret           string        `env:"ALERT_WEBHOOK_SECRET"`
	Timeout          time.Duration `env:"ALERT_WEBHOOK_TIMEOUT" envDefault:"5s"`
	MaxRetries       int           `env:"ALERT_WEBHOOK_MAX_RETRIES" envDefault:"3"`
	FailureThreshold int           `env:"ALERT_WEBHOOK_FAILURE_THRESHOLD" envDefault:"5"`
	Cooldown         time.Duration `env:"ALERT_WEBHOOK_COOLDOWN" envDefault:"30s"`
}

// WebhookNotifier posts signed JSON alerts to an operator endpoint.
type WebhookNotifier struct {
	url        string
	secret     string
	client     *http.Client
	maxRetries int
	strategy   backoff.Strategy
	breaker    *circuitBreaker
}

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(n *WebhookNotifier) {
		if c != nil {
			n.client = c
		}
	}
}

// WithBackoff replaces the retry strategy.
func WithBackoff(s backoff.Strategy) WebhookOption {
	return func(n *WebhookNotifier) {
		if s != nil {
			n.strategy = s
		}
	}
}

// NewWebhookNotifier validates cfg and returns a notifier.
func NewWebhookNotifier(cfg Config, opts ...WebhookOption) (*WebhookNotifier, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidConfiguration)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	n := &WebhookNotifier{
		url:        cfg.URL,
		secret:     cfg.Secret,
		client:     &http.Client{Timeout: timeout},
		maxRetries: max(cfg.MaxRetries, 0),
		strategy:   backoff.Default(),
		breaker:    newCircuitBreaker(cfg.FailureThreshold, cfg.Cooldown),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify delivers a, retrying network errors, 5xx, 408 and 429 responses.
func (n *WebhookNotifier) Notify(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if !n.breaker.allow() {
		return ErrCircuitOpen
	}

	err = backoff.Retry(ctx, n.strategy, n.maxRetries, isTemporary, func(ctx context.Context) error {
		err := n.deliver(ctx, a.ID, payload)
		n.breaker.record(err == nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

func (n *WebhookNotifier) deliver(ctx context.Context, id string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPermanentFailure, err)
	}

	now := time.Now()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "billingsync-alert/1.0")
	req.Header.Set(HeaderAlertID, id)
	req.Header.Set(HeaderTimestamp, fmt.Sprint(now.Unix()))
	req.Header.Set(HeaderSignature, Sign(n.secret, now, payload))

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.ReplaceAll(strings.TrimSpace(string(body)), "\n", " ")
	statusErr := fmt.Errorf("operator endpoint returned %d: %s", resp.StatusCode, msg)

	switch {
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return statusErr
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: %w", ErrPermanentFailure, statusErr)
	default:
		return statusErr
	}
}

func isTemporary(err error) bool {
	return !errors.Is(err, ErrPermanentFailure)
}
