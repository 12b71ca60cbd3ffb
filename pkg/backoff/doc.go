// Package backoff provides retry delay strategies and a small retry loop.
//
// The billing service retries processor calls that fail with a transient
// error, operator alert deliveries, and the reconciliation re-reads after a
// checkout redirect; all of them share these strategies.
package backoff
