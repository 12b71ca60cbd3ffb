package subscription

import "fmt"

// Status is the lifecycle state of a subscription record.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Valid reports whether s is one of the five known states.
func (s Status) Valid() bool {
	switch s {
	case StatusInactive, StatusTrialing, StatusActive, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// ActiveLike reports whether the account is entitled to its paid plan.
func (s Status) ActiveLike() bool {
	return s == StatusActive || s == StatusTrialing
}

// RequiresPeriod reports whether a record in this state must carry a
// current period end.
func (s Status) RequiresPeriod() bool {
	return s == StatusTrialing || s == StatusActive || s == StatusPastDue
}

// ParseStatus converts a stored value into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown subscription status %q", v)
	}
	return s, nil
}
