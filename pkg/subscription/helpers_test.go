package subscription_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/billingsync/pkg/credential"
	"github.com/freightdesk/billingsync/pkg/subscription"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T) *subscription.Catalog {
	t.Helper()
	c, err := subscription.NewCatalog(subscription.DefaultPlans()...)
	require.NoError(t, err)
	return c
}

func caller(accountID string) credential.Credential {
	return credential.Credential{AccountID: accountID, Email: accountID + "@carrier.test"}
}

func meta(id, accountID string, at time.Time) subscription.Meta {
	return subscription.Meta{ID: id, Type: "test.event", Processor: "fake", OccurredAt: at, AccountID: accountID}
}

func state(subID string, status subscription.Status, plan string, periodStart time.Time) subscription.State {
	return subscription.State{
		SubscriptionID: subID,
		CustomerID:     "cus_1",
		PlanID:         plan,
		Status:         status,
		PeriodStart:    periodStart,
		PeriodEnd:      periodStart.AddDate(0, 1, 0),
	}
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Name() string { return "fake" }

func (m *mockProcessor) CreateCustomer(ctx context.Context, req subscription.CustomerRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) CreateCheckout(ctx context.Context, req subscription.CheckoutRequest) (subscription.CheckoutSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(subscription.CheckoutSession), args.Error(1)
}

func (m *mockProcessor) CreatePortal(ctx context.Context, req subscription.PortalRequest) (subscription.PortalSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(subscription.PortalSession), args.Error(1)
}

func (m *mockProcessor) DecodeEvent(ctx context.Context, payload []byte, header http.Header) (subscription.Event, error) {
	args := m.Called(ctx, payload, header)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(subscription.Event), args.Error(1)
}

// feedProcessor decodes a payload by looking up the event registered under
// the payload text.
type feedProcessor struct {
	mockProcessor
	mu     sync.Mutex
	events map[string]subscription.Event
}

func newFeedProcessor() *feedProcessor {
	return &feedProcessor{events: make(map[string]subscription.Event)}
}

func (f *feedProcessor) DecodeEvent(_ context.Context, payload []byte, _ http.Header) (subscription.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[string(payload)]
	if !ok {
		return nil, subscription.ErrSignatureInvalid
	}
	return ev, nil
}

// deliver registers ev and pushes it through the webhook pipeline.
func (f *feedProcessor) deliver(ctx context.Context, svc *subscription.Service, ev subscription.Event) (subscription.WebhookResult, error) {
	key := ev.EventMeta().ID
	f.mu.Lock()
	f.events[key] = ev
	f.mu.Unlock()
	return svc.HandleWebhook(ctx, []byte(key), http.Header{})
}

// failingStore reads from memory and fails every webhook write.
type failingStore struct {
	*subscription.MemoryStore
	err error
}

func (s failingStore) Insert(context.Context, subscription.Subscription) (subscription.Subscription, error) {
	return subscription.Subscription{}, s.err
}

func (s failingStore) CompareAndSwap(context.Context, subscription.Subscription, int64) (subscription.Subscription, error) {
	return subscription.Subscription{}, s.err
}

// unreadableStore fails every read.
type unreadableStore struct {
	*subscription.MemoryStore
	err error
}

func (s unreadableStore) Get(context.Context, string) (subscription.Subscription, error) {
	return subscription.Subscription{}, s.err
}
