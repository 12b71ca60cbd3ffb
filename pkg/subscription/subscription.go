package subscription

import (
	"encoding/json"
	"time"
)

// Subscription is the single billing record of an account.
// Zero times stand for absent values.
type Subscription struct {
	AccountID          string
	CustomerID         string // write-once
	SubscriptionID     string
	PlanID             string
	Status             Status
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool

	// LastEventAt is the occurrence time of the newest processor event applied
	// to the record. Older events may not overwrite status or period fields.
	LastEventAt time.Time
	// Revision increases with every webhook write and guards compare-and-swap.
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entitled reports whether the account currently holds its paid plan.
func (s Subscription) Entitled() bool {
	return s.Status.ActiveLike()
}

type subscriptionJSON struct {
	AccountID          string     `json:"account_id"`
	CustomerID         string     `json:"processor_customer_id,omitempty"`
	SubscriptionID     string     `json:"processor_subscription_id,omitempty"`
	PlanID             string     `json:"plan_id,omitempty"`
	Status             Status     `json:"status"`
	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// MarshalJSON renders absent timestamps as null. Internal bookkeeping
// (revision, last event time) is not exposed.
func (s Subscription) MarshalJSON() ([]byte, error) {
	return json.Marshal(subscriptionJSON{
		AccountID:          s.AccountID,
		CustomerID:         s.CustomerID,
		SubscriptionID:     s.SubscriptionID,
		PlanID:             s.PlanID,
		Status:             s.Status,
		CurrentPeriodStart: timePtr(s.CurrentPeriodStart),
		CurrentPeriodEnd:   timePtr(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		UpdatedAt:          timePtr(s.UpdatedAt),
	})
}

func (s *Subscription) UnmarshalJSON(data []byte) error {
	var v subscriptionJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Subscription{
		AccountID:          v.AccountID,
		CustomerID:         v.CustomerID,
		SubscriptionID:     v.SubscriptionID,
		PlanID:             v.PlanID,
		Status:             v.Status,
		CurrentPeriodStart: timeVal(v.CurrentPeriodStart),
		CurrentPeriodEnd:   timeVal(v.CurrentPeriodEnd),
		CancelAtPeriodEnd:  v.CancelAtPeriodEnd,
		UpdatedAt:          timeVal(v.UpdatedAt),
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
