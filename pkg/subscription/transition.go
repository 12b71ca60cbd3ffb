package subscription

import (
	"fmt"
	"time"
)

// Decision reasons.
const (
	ReasonCreated     = "created"
	ReasonApplied     = "applied"
	ReasonUnchanged   = "unchanged"
	ReasonStale       = "stale"
	ReasonFilled      = "filled"
	ReasonForeign     = "foreign_subscription"
	ReasonTerminal    = "terminal"
	ReasonNotEligible = "not_eligible"
	ReasonLogged      = "logged"
	ReasonIgnored     = "unrecognized"
)

// Decision describes what a transition did.
type Decision struct {
	Changed bool
	Reason  string
}

// Transition computes the record that results from applying ev to current.
// current is nil when the account has no record yet. Transition is pure:
// the caller persists the result when Decision.Changed is set.
func Transition(current *Subscription, ev Event) (Subscription, Decision, error) {
	switch e := ev.(type) {
	case CheckoutConfirmed:
		return applyConfirmed(current, e)
	case SubscriptionUpdated:
		return applyUpdated(current, e)
	case SubscriptionEnded:
		return applyEnded(current, e)
	case InvoicePaymentFailed:
		return applyPaymentFailed(current, e)
	case InvoicePaid:
		return orZero(current), Decision{Reason: ReasonLogged}, nil
	default:
		return orZero(current), Decision{Reason: ReasonIgnored}, nil
	}
}

func applyConfirmed(cur *Subscription, e CheckoutConfirmed) (Subscription, Decision, error) {
	if err := validateState(e.State); err != nil {
		return orZero(cur), Decision{}, err
	}

	if cur == nil {
		next := Subscription{AccountID: e.AccountID, CustomerID: e.State.CustomerID}
		overwrite(&next, e.State, e.OccurredAt)
		next.CancelAtPeriodEnd = false
		return next, Decision{Changed: true, Reason: ReasonCreated}, nil
	}

	next := *cur
	if isNewer(cur, e.OccurredAt) {
		if cur.Status == StatusCanceled && cur.SubscriptionID == e.State.SubscriptionID {
			// A late confirmation of the ended subscription cannot revive it.
			next.LastEventAt = laterOf(next.LastEventAt, e.OccurredAt)
			return decide(*cur, next, ReasonTerminal)
		}
		// A newer confirmation of another subscription re-subscribes even
		// over a canceled or foreign one.
		next.SubscriptionID = e.State.SubscriptionID
		overwrite(&next, e.State, e.OccurredAt)
		next.CancelAtPeriodEnd = false
		fillCustomer(&next, e.State.CustomerID)
		return decide(*cur, next, ReasonApplied)
	}

	// Stale confirmations only fill gaps left by events that overtook them.
	if isForeign(cur, e.State.SubscriptionID) {
		return next, Decision{Reason: ReasonForeign}, nil
	}
	if next.SubscriptionID == "" {
		next.SubscriptionID = e.State.SubscriptionID
	}
	if next.PlanID == "" {
		next.PlanID = e.State.PlanID
	}
	fillCustomer(&next, e.State.CustomerID)
	next, d, err := decide(*cur, next, ReasonFilled)
	if !d.Changed {
		d.Reason = ReasonStale
	}
	return next, d, err
}

func applyUpdated(cur *Subscription, e SubscriptionUpdated) (Subscription, Decision, error) {
	if cur == nil {
		return Subscription{}, Decision{}, ErrRecordNotReady
	}
	next := *cur
	switch {
	case isForeign(cur, e.State.SubscriptionID):
		return next, Decision{Reason: ReasonForeign}, nil
	case !isNewer(cur, e.OccurredAt):
		return next, Decision{Reason: ReasonStale}, nil
	case cur.Status == StatusCanceled:
		// Only event time advances on a terminal record.
		next.LastEventAt = laterOf(next.LastEventAt, e.OccurredAt)
		return decide(*cur, next, ReasonTerminal)
	}
	if err := validateState(e.State); err != nil {
		return next, Decision{}, err
	}

	if next.SubscriptionID == "" {
		next.SubscriptionID = e.State.SubscriptionID
	}
	overwrite(&next, e.State, e.OccurredAt)
	next.CancelAtPeriodEnd = e.State.CancelAtPeriodEnd && next.Status != StatusInactive
	fillCustomer(&next, e.State.CustomerID)
	return decide(*cur, next, ReasonApplied)
}

// applyEnded wins regardless of timestamp.
func applyEnded(cur *Subscription, e SubscriptionEnded) (Subscription, Decision, error) {
	if cur == nil {
		return Subscription{}, Decision{}, ErrRecordNotReady
	}
	next := *cur
	if isForeign(cur, e.State.SubscriptionID) {
		return next, Decision{Reason: ReasonForeign}, nil
	}

	if next.SubscriptionID == "" {
		next.SubscriptionID = e.State.SubscriptionID
	}
	next.Status = StatusCanceled
	next.CancelAtPeriodEnd = false
	if e.State.PlanID != "" {
		next.PlanID = e.State.PlanID
	}
	if !e.State.PeriodStart.IsZero() {
		next.CurrentPeriodStart = e.State.PeriodStart
	}
	if !e.State.PeriodEnd.IsZero() {
		next.CurrentPeriodEnd = e.State.PeriodEnd
	}
	next.LastEventAt = laterOf(next.LastEventAt, e.OccurredAt)
	fillCustomer(&next, e.State.CustomerID)
	return decide(*cur, next, ReasonApplied)
}

func applyPaymentFailed(cur *Subscription, e InvoicePaymentFailed) (Subscription, Decision, error) {
	if cur == nil {
		return Subscription{}, Decision{}, ErrRecordNotReady
	}
	next := *cur
	switch {
	case cur.SubscriptionID == "":
		// The confirmation has not landed yet; a redelivery will find it.
		return next, Decision{}, ErrRecordNotReady
	case isForeign(cur, e.SubscriptionID):
		return next, Decision{Reason: ReasonForeign}, nil
	case !isNewer(cur, e.OccurredAt):
		return next, Decision{Reason: ReasonStale}, nil
	case !cur.Status.ActiveLike():
		return next, Decision{Reason: ReasonNotEligible}, nil
	}

	next.Status = StatusPastDue
	next.LastEventAt = laterOf(next.LastEventAt, e.OccurredAt)
	return decide(*cur, next, ReasonApplied)
}

func overwrite(next *Subscription, st State, at time.Time) {
	next.Status = st.Status
	if st.PlanID != "" {
		next.PlanID = st.PlanID
	}
	if st.Status == StatusInactive {
		next.CurrentPeriodStart, next.CurrentPeriodEnd = time.Time{}, time.Time{}
	} else {
		next.CurrentPeriodStart, next.CurrentPeriodEnd = st.PeriodStart, st.PeriodEnd
	}
	next.CancelAtPeriodEnd = st.CancelAtPeriodEnd
	next.LastEventAt = laterOf(next.LastEventAt, at)
}

func validateState(st State) error {
	if st.SubscriptionID == "" {
		return fmt.Errorf("%w: event has no subscription id", ErrMalformedEvent)
	}
	if !st.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvariantViolation, st.Status)
	}
	if st.Status.RequiresPeriod() && st.PeriodEnd.IsZero() {
		return fmt.Errorf("%w: %s subscription without period end", ErrInvariantViolation, st.Status)
	}
	return nil
}

func isNewer(cur *Subscription, at time.Time) bool {
	return !at.Before(cur.LastEventAt)
}

// isForeign reports whether the event concerns a different subscription
// than the one on record.
func isForeign(cur *Subscription, subscriptionID string) bool {
	return cur.SubscriptionID != "" && subscriptionID != "" && cur.SubscriptionID != subscriptionID
}

func fillCustomer(next *Subscription, customerID string) {
	if next.CustomerID == "" {
		next.CustomerID = customerID
	}
}

func decide(cur, next Subscription, reason string) (Subscription, Decision, error) {
	if equalState(cur, next) {
		return cur, Decision{Reason: ReasonUnchanged}, nil
	}
	return next, Decision{Changed: true, Reason: reason}, nil
}

func equalState(a, b Subscription) bool {
	return a.CustomerID == b.CustomerID &&
		a.SubscriptionID == b.SubscriptionID &&
		a.PlanID == b.PlanID &&
		a.Status == b.Status &&
		a.CurrentPeriodStart.Equal(b.CurrentPeriodStart) &&
		a.CurrentPeriodEnd.Equal(b.CurrentPeriodEnd) &&
		a.CancelAtPeriodEnd == b.CancelAtPeriodEnd &&
		a.LastEventAt.Equal(b.LastEventAt)
}

func orZero(s *Subscription) Subscription {
	if s == nil {
		return Subscription{}
	}
	return *s
}
