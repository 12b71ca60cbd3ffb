package subscription

import "time"

// Meta is common to every processor event.
type Meta struct {
	ID         string
	Type       string // processor event type, e.g. customer.subscription.updated
	Processor  string
	OccurredAt time.Time
	AccountID  string // attribution tag written at checkout
}

func (m Meta) EventMeta() Meta { return m }

func (Meta) isEvent() {}

// Event is a decoded processor notification. The set of implementations is
// closed: CheckoutConfirmed, SubscriptionUpdated, SubscriptionEnded,
// InvoicePaid, InvoicePaymentFailed and Unrecognized.
type Event interface {
	EventMeta() Meta
	isEvent()
}

// State is the processor's view of a subscription carried by an event.
type State struct {
	SubscriptionID    string
	CustomerID        string
	PlanID            string // empty when the event carries no plan
	Status            Status
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

// CheckoutConfirmed reports that a checkout produced a subscription.
type CheckoutConfirmed struct {
	Meta
	State State
}

// SubscriptionUpdated reports a change of status, period or plan.
type SubscriptionUpdated struct {
	Meta
	State State
}

// SubscriptionEnded reports that the subscription terminated.
type SubscriptionEnded struct {
	Meta
	State State
}

// InvoicePaid reports a successful renewal charge.
type InvoicePaid struct {
	Meta
	SubscriptionID string
	InvoiceID      string
}

// InvoicePaymentFailed reports a failed renewal charge.
type InvoicePaymentFailed struct {
	Meta
	SubscriptionID string
	InvoiceID      string
}

// Unrecognized is any event type the engine does not act on.
type Unrecognized struct {
	Meta
}

// Kind returns a stable label for the event class.
func Kind(ev Event) string {
	switch ev.(type) {
	case CheckoutConfirmed:
		return "checkout_confirmed"
	case SubscriptionUpdated:
		return "subscription_updated"
	case SubscriptionEnded:
		return "subscription_ended"
	case InvoicePaid:
		return "invoice_paid"
	case InvoicePaymentFailed:
		return "invoice_payment_failed"
	default:
		return "unrecognized"
	}
}
