package subscription

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Subscription
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Subscription),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Get(_ context.Context, accountID string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.records[accountID]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return sub, nil
}

func (m *MemoryStore) EnsureCustomer(_ context.Context, accountID, customerID string) (string, error) {
	if customerID == "" {
		return "", ErrMissingCustomerID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.records[accountID]
	if !ok {
		now := m.now()
		m.records[accountID] = Subscription{
			AccountID:  accountID,
			CustomerID: customerID,
			Status:     StatusInactive,
			Revision:   1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return customerID, nil
	}
	if sub.CustomerID == "" {
		sub.CustomerID = customerID
		sub.UpdatedAt = m.now()
		m.records[accountID] = sub
	}
	return sub.CustomerID, nil
}

func (m *MemoryStore) Insert(_ context.Context, sub Subscription) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[sub.AccountID]; ok {
		return Subscription{}, ErrRevisionConflict
	}
	now := m.now()
	sub.Revision = 1
	sub.CreatedAt, sub.UpdatedAt = now, now
	m.records[sub.AccountID] = sub
	return sub, nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, sub Subscription, expected int64) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.records[sub.AccountID]
	if !ok || cur.Revision != expected {
		return Subscription{}, ErrRevisionConflict
	}

	next := cur
	if next.CustomerID == "" {
		next.CustomerID = sub.CustomerID
	}
	next.SubscriptionID = sub.SubscriptionID
	next.PlanID = sub.PlanID
	next.Status = sub.Status
	next.CurrentPeriodStart = sub.CurrentPeriodStart
	next.CurrentPeriodEnd = sub.CurrentPeriodEnd
	next.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	next.LastEventAt = sub.LastEventAt
	next.Revision = expected + 1
	next.UpdatedAt = m.now()
	m.records[sub.AccountID] = next
	return next, nil
}
