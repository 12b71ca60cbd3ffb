// Package subscription keeps one billing record per account in step with an
// external payment processor.
//
// The package has four entry points on Service:
//
//   - Checkout makes sure the account has a processor customer, persisting
//     it write-once, and opens a hosted checkout tagged with the account and
//     plan.
//   - Portal opens a self-service management session for accounts that
//     already have a customer.
//   - HandleWebhook verifies a processor delivery, decodes it into one of the
//     Event types, drops duplicates by event id and applies the resulting
//     Transition with a compare-and-swap on the record revision.
//   - AwaitActive re-reads the record on a bounded schedule after a checkout
//     redirect until the confirming webhook has landed.
//
// # Transitions
//
// Transition is a pure function from the current record and an event to the
// next record. Status and period fields only move forward in event time:
// an event older than the newest one applied is ignored, except that an
// ended event always cancels its subscription. A canceled record stays
// canceled until a newer checkout confirmation starts a new subscription.
//
// # Processors
//
// StripeProcessor and PaddleProcessor implement Processor. Both attach the
// account id to processor objects at checkout; events that arrive without it
// are rejected with ErrUnattributable and reported to an operator.
//
// # Storage
//
// PGStore keeps records in PostgreSQL; MemoryStore is intended for tests and
// single-process development. RedisDeduper and MemoryDeduper remember
// processed event ids for a bounded retention window.
//
// # Errors
//
// Errors wrap the package sentinels. IsRetryable separates failures the
// caller (or the processor redelivering a webhook) should retry from
// permanent ones.
package subscription
