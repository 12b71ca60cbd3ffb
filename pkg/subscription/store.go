package subscription

import "context"

// Store persists one Subscription per account.
type Store interface {
	// Get returns ErrSubscriptionNotFound when the account has no record.
	Get(ctx context.Context, accountID string) (Subscription, error)

	// EnsureCustomer records customerID for the account unless one is already
	// stored, creating an inactive record when none exists. It returns the
	// customer id that is persisted after the call, which differs from
	// customerID when a concurrent request won.
	EnsureCustomer(ctx context.Context, accountID, customerID string) (string, error)

	// Insert creates the record. It returns ErrRevisionConflict when a record
	// for the account already exists.
	Insert(ctx context.Context, sub Subscription) (Subscription, error)

	// CompareAndSwap replaces the webhook-owned fields of the record if its
	// revision still equals expected. A stored customer id is never replaced.
	// It returns ErrRevisionConflict when the revision moved.
	CompareAndSwap(ctx context.Context, sub Subscription, expected int64) (Subscription, error)
}
