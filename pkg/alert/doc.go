// Package alert notifies operators about conditions that need a human,
// such as a processor webhook that cannot be attributed to an account.
//
// WebhookNotifier posts the alert as JSON, signed with HMAC-SHA256 over
// "<timestamp>.<body>" in the X-Billing-Signature header, retrying transient
// failures with exponential backoff behind a circuit breaker. LogNotifier
// is the fallback channel and Multi combines both.
package alert
