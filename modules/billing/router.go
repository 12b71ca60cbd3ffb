package billing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/freightdesk/billingsync/handler"
	"github.com/freightdesk/billingsync/pkg/binder"
	"github.com/freightdesk/billingsync/pkg/credential"
	"github.com/freightdesk/billingsync/pkg/logger"
	"github.com/freightdesk/billingsync/pkg/subscription"
)

// DefaultMaxWebhookBytes bounds a webhook body.
const DefaultMaxWebhookBytes int64 = 1 << 20

// Service is the billing engine behind the routes. *subscription.Service
// implements it.
type Service interface {
	Checkout(ctx context.Context, caller credential.Credential, in subscription.CheckoutInput) (subscription.CheckoutSession, error)
	Portal(ctx context.Context, caller credential.Credential) (subscription.PortalSession, error)
	Subscription(ctx context.Context, caller credential.Credential) (subscription.Subscription, error)
	AwaitActive(ctx context.Context, caller credential.Credential) (subscription.Reconciliation, error)
	HandleWebhook(ctx context.Context, payload []byte, header http.Header) (subscription.WebhookResult, error)
}

// Option configures the router.
type Option func(*api)

func WithLogger(l *slog.Logger) Option {
	return func(a *api) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMaxWebhookBytes overrides DefaultMaxWebhookBytes.
func WithMaxWebhookBytes(n int64) Option {
	return func(a *api) {
		if n > 0 {
			a.maxWebhookBytes = n
		}
	}
}

// Router exposes the billing endpoints. Mount it under /billing:
//
//	r.Mount("/billing", billing.Router(svc, creds, billing.WithLogger(log)))
//
// The webhook route is authenticated by the processor signature only; every
// other route requires a bearer credential.
func Router(svc Service, creds *credential.Service, opts ...Option) chi.Router {
	a := &api{
		svc:             svc,
		log:             logger.Discard(),
		maxWebhookBytes: DefaultMaxWebhookBytes,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.errors = handler.NewErrorHandler(a.log, handler.ErrorHandlerConfig{Classify: classify})
	onError := func(ctx requestContext, err error) { a.errors(ctx, err) }

	r := chi.NewRouter()
	r.Post("/webhook", a.webhook)

	r.Group(func(r chi.Router) {
		r.Use(credential.Middleware(credential.MiddlewareConfig{
			Service: creds,
			OnError: func(w http.ResponseWriter, r *http.Request, err error) {
				a.log.DebugContext(r.Context(), "rejected credential", logger.Error(err))
				a.errors(handler.NewContext(w, r), subscription.ErrUnauthenticated)
			},
		}))
		r.Post("/checkout", handler.Wrap(a.checkout,
			handler.WithBinders[requestContext, subscription.CheckoutInput](binder.JSON()),
			handler.WithContextFactory[requestContext, subscription.CheckoutInput](newRequestContext),
			handler.WithErrorHandler[requestContext, subscription.CheckoutInput](onError),
		))
		r.Post("/portal", handler.Wrap(a.portal,
			handler.WithContextFactory[requestContext, struct{}](newRequestContext),
			handler.WithErrorHandler[requestContext, struct{}](onError),
		))
		r.Get("/subscription", handler.Wrap(a.subscription,
			handler.WithBinders[requestContext, SubscriptionRequest](binder.Query()),
			handler.WithContextFactory[requestContext, SubscriptionRequest](newRequestContext),
			handler.WithErrorHandler[requestContext, SubscriptionRequest](onError),
		))
	})

	return r
}
