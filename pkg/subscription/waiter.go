package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/freightdesk/billingsync/pkg/backoff"
	"github.com/freightdesk/billingsync/pkg/broadcast"
	"github.com/freightdesk/billingsync/pkg/logger"
)

// TransitionNotice is published after every webhook write.
type TransitionNotice struct {
	AccountID string `json:"account_id"`
	Status    Status `json:"status"`
	Revision  int64  `json:"revision"`
}

// ReadFunc reads the current record of an account. It returns
// ErrSubscriptionNotFound when there is none.
type ReadFunc func(ctx context.Context, accountID string) (Subscription, error)

// Reconciliation is the outcome of waiting for a checkout to land.
type Reconciliation struct {
	// Subscription is the last record read, nil when the account has none.
	Subscription *Subscription `json:"subscription"`
	// Pending is set when the record did not become active-like within the
	// wait bound.
	Pending bool `json:"pending"`
	Reads   int  `json:"-"`
}

// Waiter tolerates the lag between a checkout redirect and the webhook that
// confirms it. It only ever reports what the store holds.
type Waiter struct {
	read     ReadFunc
	notices  broadcast.Broadcaster[TransitionNotice]
	schedule backoff.Strategy
	rereads  int
	log      *slog.Logger
}

// WaiterOption configures a Waiter.
type WaiterOption func(*Waiter)

// WithWaitSchedule sets how many re-reads follow the first read and the delay
// before each of them.
func WithWaitSchedule(rereads int, schedule backoff.Strategy) WaiterOption {
	return func(w *Waiter) {
		if rereads >= 0 {
			w.rereads = rereads
		}
		if schedule != nil {
			w.schedule = schedule
		}
	}
}

// WithWaitNotices wakes the waiter as soon as a transition for the account
// is announced.
func WithWaitNotices(b broadcast.Broadcaster[TransitionNotice]) WaiterOption {
	return func(w *Waiter) { w.notices = b }
}

func WithWaitLogger(l *slog.Logger) WaiterOption {
	return func(w *Waiter) {
		if l != nil {
			w.log = l
		}
	}
}

// DefaultWaitSchedule re-reads after 0.5s, 1s, 2s, 4s, 8s and 8s.
func DefaultWaitSchedule() (int, backoff.Strategy) {
	return 6, backoff.Exponential{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		Multiplier:      2,
	}
}

func NewWaiter(read ReadFunc, opts ...WaiterOption) *Waiter {
	rereads, schedule := DefaultWaitSchedule()
	w := &Waiter{
		read:     read,
		schedule: schedule,
		rereads:  rereads,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Await reads the account's record until it is active-like or the re-read
// bound is spent. A context error is returned together with the last state
// read.
func (w *Waiter) Await(ctx context.Context, accountID string) (Reconciliation, error) {
	var wake <-chan broadcast.Message[TransitionNotice]
	if w.notices != nil {
		// Subscribe before the first read so no transition slips between.
		sub := w.notices.Subscribe(ctx)
		defer sub.Close()
		wake = sub.Receive(ctx)
	}

	var res Reconciliation
	for attempt := 0; ; attempt++ {
		sub, err := w.read(ctx, accountID)
		res.Reads++
		switch {
		case errors.Is(err, ErrSubscriptionNotFound):
			res.Subscription = nil
		case err != nil:
			res.Pending = true
			return res, err
		default:
			res.Subscription = &sub
			if sub.Status.ActiveLike() {
				return res, nil
			}
		}

		if attempt >= w.rereads {
			break
		}

		woke, err := w.sleep(ctx, accountID, w.schedule.NextInterval(attempt+1), &wake)
		if err != nil {
			res.Pending = true
			return res, err
		}
		if woke {
			w.log.DebugContext(ctx, "woken by transition notice", logger.AccountID(accountID))
		}
	}

	res.Pending = true
	w.log.InfoContext(ctx, "subscription still pending after bounded wait",
		logger.AccountID(accountID),
		slog.Int("reads", res.Reads),
	)
	return res, nil
}

// sleep waits for d, a notice for accountID, or ctx. A closed notice channel
// is disabled for the rest of the wait.
func (w *Waiter) sleep(ctx context.Context, accountID string, d time.Duration, wake *<-chan broadcast.Message[TransitionNotice]) (bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
			return false, nil
		case msg, ok := <-*wake:
			if !ok {
				*wake = nil
				continue
			}
			if msg.Data.AccountID == accountID {
				return true, nil
			}
		}
	}
}
