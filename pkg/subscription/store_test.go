package subscription_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/billingsync/migrations"
	"github.com/freightdesk/billingsync/pkg/logger"
	"github.com/freightdesk/billingsync/pkg/pg"
	"github.com/freightdesk/billingsync/pkg/subscription"
)

// exerciseStore runs the Store contract against s.
func exerciseStore(t *testing.T, s subscription.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing record", func(t *testing.T) {
		_, err := s.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("customer is write-once", func(t *testing.T) {
		acct := uuid.NewString()
		got, err := s.EnsureCustomer(ctx, acct, "cus_"+acct)
		require.NoError(t, err)
		assert.Equal(t, "cus_"+acct, got)

		got, err = s.EnsureCustomer(ctx, acct, "cus_other_"+acct)
		require.NoError(t, err)
		assert.Equal(t, "cus_"+acct, got)

		sub, err := s.Get(ctx, acct)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusInactive, sub.Status)
		assert.Equal(t, int64(1), sub.Revision)
		assert.Empty(t, sub.PlanID)
		assert.True(t, sub.CurrentPeriodEnd.IsZero())
	})

	t.Run("concurrent customers converge", func(t *testing.T) {
		acct := uuid.NewString()
		const n = 6
		got := make([]string, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := s.EnsureCustomer(ctx, acct, uuid.NewString())
				assert.NoError(t, err)
				got[i] = id
			}()
		}
		wg.Wait()
		for _, id := range got {
			assert.Equal(t, got[0], id)
		}
	})

	t.Run("insert then compare and swap", func(t *testing.T) {
		acct := uuid.NewString()
		at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		sub := subscription.Subscription{
			AccountID:          acct,
			CustomerID:         "cus_" + acct,
			SubscriptionID:     "sub_" + acct,
			PlanID:             "starter",
			Status:             subscription.StatusActive,
			CurrentPeriodStart: at,
			CurrentPeriodEnd:   at.AddDate(0, 1, 0),
			LastEventAt:        at,
		}
		stored, err := s.Insert(ctx, sub)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.Revision)

		_, err = s.Insert(ctx, sub)
		assert.ErrorIs(t, err, subscription.ErrRevisionConflict)

		next := stored
		next.Status = subscription.StatusPastDue
		next.CustomerID = "cus_replacement"
		next.LastEventAt = at.Add(time.Hour)
		swapped, err := s.CompareAndSwap(ctx, next, stored.Revision)
		require.NoError(t, err)
		assert.Equal(t, int64(2), swapped.Revision)
		assert.Equal(t, subscription.StatusPastDue, swapped.Status)
		assert.Equal(t, "cus_"+acct, swapped.CustomerID)
		assert.True(t, at.Add(time.Hour).Equal(swapped.LastEventAt))

		_, err = s.CompareAndSwap(ctx, next, stored.Revision)
		assert.ErrorIs(t, err, subscription.ErrRevisionConflict)

		got, err := s.Get(ctx, acct)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Revision)
		assert.True(t, got.CurrentPeriodEnd.Equal(at.AddDate(0, 1, 0)))
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, subscription.NewMemoryStore())
}

func TestPGStore(t *testing.T) {
	url := os.Getenv("PG_TEST_URL")
	if url == "" {
		t.Skip("PG_TEST_URL not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: url,
		MaxOpenConns:     4,
		RetryAttempts:    1,
		MigrationsPath:   ".",
		MigrationsTable:  "schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pg.Migrate(ctx, pool, cfg, migrations.FS, logger.Discard()))

	store := subscription.NewPGStore(pool)
	exerciseStore(t, store)

	t.Run("schema rejects active records without a period", func(t *testing.T) {
		_, err := store.Insert(ctx, subscription.Subscription{
			AccountID: uuid.NewString(),
			Status:    subscription.StatusActive,
		})
		assert.ErrorIs(t, err, subscription.ErrInvariantViolation)
	})
}
