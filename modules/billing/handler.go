package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/freightdesk/billingsync/handler"
	"github.com/freightdesk/billingsync/pkg/credential"
	"github.com/freightdesk/billingsync/pkg/logger"
	"github.com/freightdesk/billingsync/pkg/subscription"
)

type api struct {
	svc             Service
	log             *slog.Logger
	errors          handler.ErrorHandler[handler.Context]
	maxWebhookBytes int64
}

// SubscriptionRequest is the query of GET /subscription.
type SubscriptionRequest struct {
	Wait bool `query:"wait"`
}

// SubscriptionResponse is the body of GET /subscription.
type SubscriptionResponse struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Pending      bool                       `json:"pending"`
}

// requestContext carries the authenticated caller.
type requestContext struct {
	handler.Context
	caller credential.Credential
}

func newRequestContext(w http.ResponseWriter, r *http.Request) requestContext {
	c, _ := credential.FromContext(r.Context())
	return requestContext{Context: handler.NewContext(w, r), caller: c}
}

// failure hands err to the error handler when Wrap renders it.
type failure struct{ err error }

func (f failure) Render(http.ResponseWriter, *http.Request) error { return f.err }

func (a *api) checkout(ctx requestContext, in subscription.CheckoutInput) handler.Response {
	session, err := a.svc.Checkout(ctx, ctx.caller, in)
	if err != nil {
		return failure{err}
	}
	return handler.JSON(session)
}

func (a *api) portal(ctx requestContext, _ struct{}) handler.Response {
	session, err := a.svc.Portal(ctx, ctx.caller)
	if err != nil {
		return failure{err}
	}
	return handler.JSON(session)
}

func (a *api) subscription(ctx requestContext, req SubscriptionRequest) handler.Response {
	if req.Wait {
		res, err := a.svc.AwaitActive(ctx, ctx.caller)
		if err != nil {
			return failure{err}
		}
		return handler.JSON(SubscriptionResponse{Subscription: res.Subscription, Pending: res.Pending})
	}

	sub, err := a.svc.Subscription(ctx, ctx.caller)
	switch {
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		return handler.JSON(SubscriptionResponse{})
	case err != nil:
		return failure{err}
	}
	return handler.JSON(SubscriptionResponse{Subscription: &sub})
}

// webhook answers only with a status; the processor redelivers on 409 and
// 5xx.
func (a *api) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	res, err := a.svc.HandleWebhook(r.Context(), payload, r.Header)
	if err != nil {
		status := http.StatusInternalServerError
		if info, ok := classify(err); ok {
			status = info.StatusCode
		}
		if status >= http.StatusInternalServerError {
			a.log.ErrorContext(r.Context(), "webhook delivery failed", logger.EventID(res.EventID), logger.Error(err))
		}
		w.WriteHeader(status)
		return
	}
	_ = handler.JSON(map[string]string{
		"event_id": res.EventID,
		"outcome":  res.Outcome,
	}).Render(w, r)
}
