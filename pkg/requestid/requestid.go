// Package requestid correlates log records of one HTTP request, including
// webhook deliveries whose processor-supplied id is reused when present.
package requestid

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// Header carries the request id in both directions.
const Header = "X-Request-ID"

// ProcessorHeaders are inbound headers whose value is adopted as the request
// id when Header is absent.
var ProcessorHeaders = []string{"Paddle-Request-Id", "Stripe-Request-Id"}

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

type contextKey struct{}

func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request id or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Middleware stores a request id in the context and echoes it back.
// Client-supplied ids that are not short tokens are replaced.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := incoming(r)
		if !validID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

func incoming(r *http.Request) string {
	if id := r.Header.Get(Header); id != "" {
		return id
	}
	for _, h := range ProcessorHeaders {
		if id := r.Header.Get(h); id != "" {
			return id
		}
	}
	return ""
}

// LoggerExtractor adds request_id to log records written with a request
// context.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := FromContext(ctx); id != "" {
			return slog.String("request_id", id), true
		}
		return slog.Attr{}, false
	}
}
