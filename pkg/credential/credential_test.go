package credential_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/billingsync/pkg/credential"
)

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	svc, err := credential.New("test-secret", credential.WithTTL(time.Minute))
	require.NoError(t, err)

	token, issued, err := svc.Issue(credential.Credential{AccountID: "acct-1", UserID: "user-9", Email: "ops@carrier.test"})
	require.NoError(t, err)
	assert.False(t, issued.ExpiresAt.IsZero())

	got, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", got.AccountID)
	assert.Equal(t, "user-9", got.UserID)
	assert.Equal(t, "ops@carrier.test", got.Email)
	assert.True(t, got.Valid())
}

func TestVerifyRejects(t *testing.T) {
	t.Parallel()

	svc, err := credential.New("test-secret")
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, err := svc.Verify("")
		assert.ErrorIs(t, err, credential.ErrMissingToken)
	})

	t.Run("other key", func(t *testing.T) {
		t.Parallel()
		other, err := credential.New("other-secret")
		require.NoError(t, err)
		token, _, err := other.Issue(credential.Credential{AccountID: "acct-1"})
		require.NoError(t, err)

		_, err = svc.Verify(token)
		assert.ErrorIs(t, err, credential.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"account_id": "acct-1",
			"iss":        "billingsync",
			"exp":        time.Now().Add(-time.Minute).Unix(),
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = svc.Verify(token)
		assert.ErrorIs(t, err, credential.ErrExpiredToken)
	})

	t.Run("no account", func(t *testing.T) {
		t.Parallel()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss": "billingsync",
			"exp": time.Now().Add(time.Minute).Unix(),
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = svc.Verify(token)
		assert.ErrorIs(t, err, credential.ErrMissingAccount)
	})

	t.Run("issue without account", func(t *testing.T) {
		t.Parallel()
		_, _, err := svc.Issue(credential.Credential{})
		assert.ErrorIs(t, err, credential.ErrMissingAccount)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	svc, err := credential.New("test-secret")
	require.NoError(t, err)
	token, _, err := svc.Issue(credential.Credential{AccountID: "acct-7"})
	require.NoError(t, err)

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := credential.FromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(c.AccountID))
	})

	tests := []struct {
		name     string
		header   string
		optional bool
		code     int
		body     string
	}{
		{name: "valid bearer", header: "Bearer " + token, code: http.StatusOK, body: "acct-7"},
		{name: "missing header", code: http.StatusUnauthorized},
		{name: "missing header optional", optional: true, code: http.StatusNoContent},
		{name: "wrong scheme", header: "Basic abc", optional: true, code: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer abc", code: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := credential.Middleware(credential.MiddlewareConfig{Service: svc, Optional: tt.optional})(echo)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := credential.LoggerExtractor()

	_, ok := extract(context.Background())
	assert.False(t, ok)

	ctx := credential.WithCredential(context.Background(), credential.Credential{AccountID: "acct-1"})
	attr, ok := extract(ctx)
	require.True(t, ok)
	assert.Equal(t, "account_id", attr.Key)
	assert.Equal(t, "acct-1", attr.Value.String())
}
