package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/freightdesk/billingsync/pkg/pg"
)

// DBTX is the subset of pgxpool.Pool, pgx.Conn and pgx.Tx used by PGStore.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps subscription records in the subscriptions table.
type PGStore struct {
	db DBTX
}

func NewPGStore(db DBTX) *PGStore {
	return &PGStore{db: db}
}

const selectColumns = `account_id,
	COALESCE(processor_customer_id, ''),
	COALESCE(processor_subscription_id, ''),
	COALESCE(plan_id, ''),
	status,
	current_period_start,
	current_period_end,
	cancel_at_period_end,
	last_event_at,
	revision,
	created_at,
	updated_at`

const getQuery = `SELECT ` + selectColumns + ` FROM subscriptions WHERE account_id = $1`

func (s *PGStore) Get(ctx context.Context, accountID string) (Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx, getQuery, accountID))
	if pg.IsNotFoundError(err) {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return sub, err
}

const ensureCustomerQuery = `
INSERT INTO subscriptions (account_id, processor_customer_id, status, revision)
VALUES ($1, $2, 'inactive', 1)
ON CONFLICT (account_id) DO UPDATE
SET processor_customer_id = COALESCE(subscriptions.processor_customer_id, EXCLUDED.processor_customer_id),
    updated_at = CASE
        WHEN subscriptions.processor_customer_id IS NULL THEN now()
        ELSE subscriptions.updated_at
    END
RETURNING processor_customer_id`

func (s *PGStore) EnsureCustomer(ctx context.Context, accountID, customerID string) (string, error) {
	if customerID == "" {
		return "", ErrMissingCustomerID
	}
	var persisted string
	if err := s.db.QueryRow(ctx, ensureCustomerQuery, accountID, customerID).Scan(&persisted); err != nil {
		return "", err
	}
	return persisted, nil
}

const insertQuery = `
INSERT INTO subscriptions (
    account_id, processor_customer_id, processor_subscription_id, plan_id, status,
    current_period_start, current_period_end, cancel_at_period_end, last_event_at, revision
)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, 1)
ON CONFLICT (account_id) DO NOTHING
RETURNING ` + selectColumns

func (s *PGStore) Insert(ctx context.Context, sub Subscription) (Subscription, error) {
	stored, err := scanSubscription(s.db.QueryRow(ctx, insertQuery,
		sub.AccountID,
		sub.CustomerID,
		sub.SubscriptionID,
		sub.PlanID,
		string(sub.Status),
		timePtr(sub.CurrentPeriodStart),
		timePtr(sub.CurrentPeriodEnd),
		sub.CancelAtPeriodEnd,
		timePtr(sub.LastEventAt),
	))
	return stored, translateWriteError(err)
}

const compareAndSwapQuery = `
UPDATE subscriptions
SET processor_customer_id = COALESCE(processor_customer_id, NULLIF($2, '')),
    processor_subscription_id = NULLIF($3, ''),
    plan_id = NULLIF($4, ''),
    status = $5,
    current_period_start = $6,
    current_period_end = $7,
    cancel_at_period_end = $8,
    last_event_at = $9,
    revision = revision + 1,
    updated_at = now()
WHERE account_id = $1 AND revision = $10
RETURNING ` + selectColumns

func (s *PGStore) CompareAndSwap(ctx context.Context, sub Subscription, expected int64) (Subscription, error) {
	stored, err := scanSubscription(s.db.QueryRow(ctx, compareAndSwapQuery,
		sub.AccountID,
		sub.CustomerID,
		sub.SubscriptionID,
		sub.PlanID,
		string(sub.Status),
		timePtr(sub.CurrentPeriodStart),
		timePtr(sub.CurrentPeriodEnd),
		sub.CancelAtPeriodEnd,
		timePtr(sub.LastEventAt),
		expected,
	))
	return stored, translateWriteError(err)
}

func scanSubscription(row pgx.Row) (Subscription, error) {
	var (
		sub                   Subscription
		status                string
		start, end, lastEvent *time.Time
	)
	err := row.Scan(
		&sub.AccountID,
		&sub.CustomerID,
		&sub.SubscriptionID,
		&sub.PlanID,
		&status,
		&start,
		&end,
		&sub.CancelAtPeriodEnd,
		&lastEvent,
		&sub.Revision,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return Subscription{}, err
	}
	if sub.Status, err = ParseStatus(status); err != nil {
		return Subscription{}, err
	}
	sub.CurrentPeriodStart = timeVal(start)
	sub.CurrentPeriodEnd = timeVal(end)
	sub.LastEventAt = timeVal(lastEvent)
	return sub, nil
}

func translateWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case pg.IsNotFoundError(err), pg.IsDuplicateKeyError(err):
		return ErrRevisionConflict
	case pg.IsCheckViolationError(err):
		return errors.Join(ErrInvariantViolation, err)
	default:
		return err
	}
}
