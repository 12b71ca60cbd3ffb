package alert_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/billingsync/pkg/alert"
	"github.com/freightdesk/billingsync/pkg/backoff"
)

const secret = "whsec_operator"

func newNotifier(t *testing.T, url string, threshold int) *alert.WebhookNotifier {
	t.Helper()
	n, err := alert.NewWebhookNotifier(alert.Config{
		URL:              url,
		Secret:           secret,
		Timeout:          time.Second,
		MaxRetries:       2,
		FailureThreshold: threshold,
		Cooldown:         time.Hour,
	}, alert.WithBackoff(backoff.Fixed{Interval: time.Millisecond}))
	require.NoError(t, err)
	return n
}

func TestWebhookNotifier_DeliversSignedAlert(t *testing.T) {
	t.Parallel()

	received := make(chan alert.Alert, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := alert.Verify(secret, r.Header, body, time.Minute); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var a alert.Alert
		_ = json.Unmarshal(body, &a)
		received <- a
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := alert.New("unattributable_event", alert.SeverityCritical, "event has no account tag", map[string]string{"event_id": "evt_1"})
	require.NoError(t, newNotifier(t, srv.URL, 5).Notify(context.Background(), a))

	got := <-received
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "evt_1", got.Details["event_id"])
}

func TestWebhookNotifier_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newNotifier(t, srv.URL, 10).Notify(context.Background(), alert.New("k", alert.SeverityWarning, "m", nil))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifier_PermanentFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := newNotifier(t, srv.URL, 10).Notify(context.Background(), alert.New("k", alert.SeverityWarning, "m", nil))
	assert.ErrorIs(t, err, alert.ErrDeliveryFailed)
	assert.ErrorIs(t, err, alert.ErrPermanentFailure)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookNotifier_CircuitOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := newNotifier(t, srv.URL, 2)
	err := n.Notify(context.Background(), alert.New("k", alert.SeverityWarning, "m", nil))
	assert.ErrorIs(t, err, alert.ErrDeliveryFailed)

	err = n.Notify(context.Background(), alert.New("k", alert.SeverityWarning, "m", nil))
	assert.ErrorIs(t, err, alert.ErrCircuitOpen)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewWebhookNotifier_Validation(t *testing.T) {
	t.Parallel()

	_, err := alert.NewWebhookNotifier(alert.Config{URL: "ftp://ops", Secret: "s"})
	assert.ErrorIs(t, err, alert.ErrInvalidConfiguration)

	_, err = alert.NewWebhookNotifier(alert.Config{URL: "https://ops.example.com/hook"})
	assert.ErrorIs(t, err, alert.ErrInvalidConfiguration)
}

func TestMulti(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	count := alert.NotifierFunc(func(context.Context, alert.Alert) error {
		hits.Add(1)
		return nil
	})

	n := alert.Multi(count, nil, alert.LogNotifier{}, count)
	require.NoError(t, n.Notify(context.Background(), alert.New("k", alert.SeverityWarning, "m", nil)))
	assert.Equal(t, int32(2), hits.Load())
}
