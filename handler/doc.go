// Package handler provides type-safe HTTP handlers.
//
// A HandlerFunc receives a Context and a request value bound from the
// incoming request, and returns a Response. Wrap converts it into an
// http.HandlerFunc:
//
//	type CheckoutRequest struct {
//	    PlanID string `json:"plan_id"`
//	}
//
//	func (h *Handler) checkout(ctx handler.Context, req CheckoutRequest) handler.Response {
//	    session, err := h.svc.Checkout(ctx, req.PlanID)
//	    if err != nil {
//	        return handler.JSONError(err)
//	    }
//	    return handler.JSON(session)
//	}
//
//	r.Post("/checkout", handler.Wrap(h.checkout,
//	    handler.WithBinders[handler.Context, CheckoutRequest](binder.JSON()),
//	    handler.WithErrorHandler[handler.Context, CheckoutRequest](errorHandler),
//	))
//
// Binding and rendering failures go to the ErrorHandler. NewErrorHandler
// builds one that logs the failure and renders a JSON error body, using a
// caller-supplied classifier for domain errors.
package handler
