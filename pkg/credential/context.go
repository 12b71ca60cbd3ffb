package credential

import (
	"context"
	"log/slog"
)

type contextKey struct{ name string }

func (c contextKey) String() string { return c.name }

var (
	credentialContextKey = &contextKey{name: "credential"}
	tokenContextKey      = &contextKey{name: "credential_token"}
)

// WithCredential stores c in ctx.
func WithCredential(ctx context.Context, c Credential) context.Context {
	return context.WithValue(ctx, credentialContextKey, c)
}

// FromContext returns the credential stored by the middleware.
func FromContext(ctx context.Context) (Credential, bool) {
	c, ok := ctx.Value(credentialContextKey).(Credential)
	return c, ok
}

// WithToken stores the raw bearer token in ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// TokenFromContext returns the raw bearer token.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenContextKey).(string)
	return t, ok
}

// LoggerExtractor adds account_id to records logged under an authenticated
// request.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if c, ok := FromContext(ctx); ok && c.AccountID != "" {
			return slog.String("account_id", c.AccountID), true
		}
		return slog.Attr{}, false
	}
}
