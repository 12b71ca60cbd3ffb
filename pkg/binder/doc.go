// Package binder binds HTTP request data to Go structs.
//
// JSON decodes request bodies strictly: unknown fields, trailing data and
// bodies over DefaultMaxJSONSize are rejected, and every decoded string is
// sanitized. Query binds URL query parameters through `query` struct tags.
//
//	type CheckoutRequest struct {
//	    PlanID string `json:"plan_id"`
//	}
//
//	type SubscriptionRequest struct {
//	    Wait bool `query:"wait"`
//	}
//
// Binders are plain functions and plug into handler.WithBinders:
//
//	r.Post("/checkout", handler.Wrap(h.checkout,
//	    handler.WithBinders[handler.Context, CheckoutRequest](binder.JSON()),
//	))
//
// A binder that does not apply to a request returns ErrBinderNotApplicable,
// which handler.Wrap skips.
package binder
