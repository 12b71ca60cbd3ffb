package binder_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/billingsync/pkg/binder"
)

type checkoutRequest struct {
	PlanID string   `json:"plan_id"`
	Cycle  string   `json:"billing_cycle"`
	Seats  int      `json:"seats"`
	Tags   []string `json:"tags"`
	Note   *string  `json:"note"`
}

func jsonRequest(method, body, contentType string) *http.Request {
	req := httptest.NewRequest(method, "/checkout", bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func TestJSON(t *testing.T) {
	t.Parallel()

	t.Run("valid JSON binding", func(t *testing.T) {
		t.Parallel()
		req := jsonRequest(http.MethodPost, `{"plan_id":"starter","billing_cycle":"monthly","seats":3}`, "application/json")

		var result checkoutRequest
		require.NoError(t, binder.JSON()(req, &result))
		assert.Equal(t, "starter", result.PlanID)
		assert.Equal(t, "monthly", result.Cycle)
		assert.Equal(t, 3, result.Seats)
	})

	t.Run("content type with charset", func(t *testing.T) {
		t.Parallel()
		req := jsonRequest(http.MethodPost, `{"plan_id":"starter"}`, "application/json; charset=utf-8")

		var result checkoutRequest
		require.NoError(t, binder.JSON()(req, &result))
		assert.Equal(t, "starter", result.PlanID)
	})

	t.Run("sanitizes strings", func(t *testing.T) {
		t.Parallel()
		req := jsonRequest(http.MethodPost, `{"plan_id":"  starter\u0000 ","tags":[" a\u0007"],"note":"\tline\n"}`, "application/json")

		var result checkoutRequest
		require.NoError(t, binder.JSON()(req, &result))
		assert.Equal(t, "starter", result.PlanID)
		assert.Equal(t, []string{"a"}, result.Tags)
		require.NotNil(t, result.Note)
		assert.Equal(t, "line", *result.Note)
	})

	t.Run("missing content type", func(t *testing.T) {
		t.Parallel()
		req := jsonRequest(http.MethodPost, `{"plan_id":"starter"}`, "")

		var result checkoutRequest
		err := binder.JSON()(req, &result)
		require.ErrorIs(t, err, binder.ErrMissingContentType)
		assert.Contains(t, err.Error(), "expected application/json")
	})

	t.Run("wrong content type", func(t *testing.T) {
		t.Parallel()
		req := jsonRequest(http.MethodPost, `{"plan_id":"starter"}`, "text/plain")

		var result checkoutRequest
		assert.ErrorIs(t, binder.JSON()(req, &result), binder.ErrUnsupportedMediaType)
	})

	t.Run("rejected bodies", func(t *testing.T) {
		t.Parallel()
		bodies := map[string]string{
			"empty":         ``,
			"truncated":     `{"plan_id":`,
			"unknown field": `{"plan":"starter"}`,
			"wrong type":    `{"seats":"three"}`,
			"trailing data": `{"plan_id":"starter"}{"plan_id":"pro"}`,
			"too large":     `{"plan_id":"` + strings.Repeat("x", binder.DefaultMaxJSONSize) + `"}`,
		}
		for name, body := range bodies {
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				var result checkoutRequest
				err := binder.JSON()(jsonRequest(http.MethodPost, body, "application/json"), &result)
				assert.ErrorIs(t, err, binder.ErrFailedToParseJSON)
			})
		}
	})

	t.Run("not applicable to bodiless GET", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/subscription", nil)

		var result checkoutRequest
		assert.ErrorIs(t, binder.JSON()(req, &result), binder.ErrBinderNotApplicable)
	})
}
