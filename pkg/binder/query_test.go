package binder_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/billingsync/pkg/binder"
)

func TestQuery(t *testing.T) {
	t.Parallel()

	type subscriptionRequest struct {
		Wait     bool     `query:"wait"`
		Limit    int      `query:"limit"`
		Statuses []string `query:"status"`
		Plan     *string  `json:"plan"`
		Internal string   `query:"-"`
	}

	t.Run("binds tagged fields", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/subscription?wait=true&limit=5&status=active,past_due&status=trialing&plan=starter&internal=x", nil)

		var result subscriptionRequest
		require.NoError(t, binder.Query()(req, &result))
		assert.True(t, result.Wait)
		assert.Equal(t, 5, result.Limit)
		assert.Equal(t, []string{"active", "past_due", "trialing"}, result.Statuses)
		require.NotNil(t, result.Plan)
		assert.Equal(t, "starter", *result.Plan)
		assert.Empty(t, result.Internal)
	})

	t.Run("lenient booleans", func(t *testing.T) {
		t.Parallel()
		for value, want := range map[string]bool{"1": true, "yes": true, "on": true, "0": false, "off": false} {
			var result subscriptionRequest
			req := httptest.NewRequest(http.MethodGet, "/subscription?wait="+value, nil)
			require.NoError(t, binder.Query()(req, &result))
			assert.Equal(t, want, result.Wait, value)
		}
	})

	t.Run("absent parameters keep zero values", func(t *testing.T) {
		t.Parallel()
		var result subscriptionRequest
		require.NoError(t, binder.Query()(httptest.NewRequest(http.MethodGet, "/subscription", nil), &result))
		assert.False(t, result.Wait)
		assert.Nil(t, result.Plan)
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Parallel()
		for _, q := range []string{"wait=maybe", "limit=many"} {
			var result subscriptionRequest
			err := binder.Query()(httptest.NewRequest(http.MethodGet, "/subscription?"+q, nil), &result)
			assert.ErrorIs(t, err, binder.ErrFailedToParseQuery, q)
		}
	})

	t.Run("target must be a struct pointer", func(t *testing.T) {
		t.Parallel()
		var n int
		assert.ErrorIs(t, binder.Query()(httptest.NewRequest(http.MethodGet, "/", nil), &n), binder.ErrFailedToParseQuery)
	})
}
