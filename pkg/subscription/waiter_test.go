package subscription_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/billingsync/pkg/backoff"
	"github.com/freightdesk/billingsync/pkg/broadcast"
	"github.com/freightdesk/billingsync/pkg/subscription"
)

// scriptedReads returns the given statuses in order, repeating the last one.
func scriptedReads(statuses ...subscription.Status) (subscription.ReadFunc, *atomic.Int32) {
	var n atomic.Int32
	return func(_ context.Context, accountID string) (subscription.Subscription, error) {
		i := int(n.Add(1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		if statuses[i] == "" {
			return subscription.Subscription{}, subscription.ErrSubscriptionNotFound
		}
		return subscription.Subscription{AccountID: accountID, Status: statuses[i]}, nil
	}, &n
}

func TestWaiter_Await(t *testing.T) {
	t.Parallel()

	quick := subscription.WithWaitSchedule(3, backoff.Fixed{Interval: time.Millisecond})

	t.Run("already active", func(t *testing.T) {
		t.Parallel()
		read, n := scriptedReads(subscription.StatusActive)
		res, err := subscription.NewWaiter(read, quick).Await(context.Background(), "acct-1")
		require.NoError(t, err)
		assert.False(t, res.Pending)
		assert.Equal(t, 1, res.Reads)
		assert.Equal(t, int32(1), n.Load())
	})

	t.Run("becomes active on a re-read", func(t *testing.T) {
		t.Parallel()
		read, _ := scriptedReads("", subscription.StatusInactive, subscription.StatusTrialing)
		res, err := subscription.NewWaiter(read, quick).Await(context.Background(), "acct-1")
		require.NoError(t, err)
		assert.False(t, res.Pending)
		assert.Equal(t, 3, res.Reads)
		require.NotNil(t, res.Subscription)
		assert.Equal(t, subscription.StatusTrialing, res.Subscription.Status)
	})

	t.Run("pending after the bound", func(t *testing.T) {
		t.Parallel()
		read, _ := scriptedReads(subscription.StatusInactive)
		res, err := subscription.NewWaiter(read, quick).Await(context.Background(), "acct-1")
		require.NoError(t, err)
		assert.True(t, res.Pending)
		assert.Equal(t, 4, res.Reads)
		require.NotNil(t, res.Subscription)
		assert.Equal(t, subscription.StatusInactive, res.Subscription.Status)
	})

	t.Run("no record stays pending", func(t *testing.T) {
		t.Parallel()
		read, _ := scriptedReads("")
		res, err := subscription.NewWaiter(read, quick).Await(context.Background(), "acct-1")
		require.NoError(t, err)
		assert.True(t, res.Pending)
		assert.Nil(t, res.Subscription)
	})

	t.Run("read errors end the wait", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		read := func(context.Context, string) (subscription.Subscription, error) {
			return subscription.Subscription{}, boom
		}
		res, err := subscription.NewWaiter(read, quick).Await(context.Background(), "acct-1")
		require.ErrorIs(t, err, boom)
		assert.True(t, res.Pending)
	})

	t.Run("context cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		read, _ := scriptedReads(subscription.StatusInactive)
		w := subscription.NewWaiter(read, subscription.WithWaitSchedule(3, backoff.Fixed{Interval: time.Hour}))
		res, err := w.Await(ctx, "acct-1")
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, res.Pending)
		assert.Equal(t, 1, res.Reads)
	})

	t.Run("woken by a notice for the account", func(t *testing.T) {
		t.Parallel()
		notices := broadcast.NewMemoryBroadcaster[subscription.TransitionNotice](4)
		t.Cleanup(func() { _ = notices.Close() })

		var (
			active    atomic.Bool
			firstRead = make(chan struct{})
			once      sync.Once
		)
		read := func(_ context.Context, accountID string) (subscription.Subscription, error) {
			status := subscription.StatusInactive
			if active.Load() {
				status = subscription.StatusActive
			}
			once.Do(func() { close(firstRead) })
			return subscription.Subscription{AccountID: accountID, Status: status}, nil
		}
		w := subscription.NewWaiter(read,
			subscription.WithWaitSchedule(1, backoff.Fixed{Interval: time.Hour}),
			subscription.WithWaitNotices(notices),
		)

		done := make(chan subscription.Reconciliation, 1)
		go func() {
			res, err := w.Await(context.Background(), "acct-1")
			assert.NoError(t, err)
			done <- res
		}()
		<-firstRead

		// Notices for other accounts do not wake the waiter.
		require.NoError(t, notices.Broadcast(context.Background(), broadcast.Message[subscription.TransitionNotice]{
			Data: subscription.TransitionNotice{AccountID: "acct-2", Status: subscription.StatusActive},
		}))
		select {
		case <-done:
			t.Fatal("woken by another account")
		case <-time.After(50 * time.Millisecond):
		}

		active.Store(true)
		require.NoError(t, notices.Broadcast(context.Background(), broadcast.Message[subscription.TransitionNotice]{
			Data: subscription.TransitionNotice{AccountID: "acct-1", Status: subscription.StatusActive},
		}))

		select {
		case res := <-done:
			assert.False(t, res.Pending)
			assert.Equal(t, 2, res.Reads)
		case <-time.After(5 * time.Second):
			t.Fatal("waiter was not woken")
		}
	})
}
