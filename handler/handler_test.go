package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/billingsync/handler"
	"github.com/freightdesk/billingsync/pkg/binder"
)

type mockResponse struct {
	statusCode int
	body       string
	renderErr  error
}

func (m mockResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if m.renderErr != nil {
		return m.renderErr
	}
	w.WriteHeader(m.statusCode)
	_, _ = w.Write([]byte(m.body))
	return nil
}

type planRequest struct {
	PlanID string `json:"plan_id"`
	Wait   bool   `query:"wait" json:"-"`
}

func decodeErrorDetail(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorDetail {
	t.Helper()
	var body struct {
		Error handler.ErrorDetail `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("basic handler without options", func(t *testing.T) {
		t.Parallel()
		h := handler.HandlerFunc[handler.Context, planRequest](func(ctx handler.Context, req planRequest) handler.Response {
			assert.NotNil(t, ctx.Request())
			assert.Equal(t, planRequest{}, req)
			return mockResponse{statusCode: http.StatusOK, body: "success"}
		})

		rec := httptest.NewRecorder()
		handler.Wrap(h)(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "success", rec.Body.String())
	})

	t.Run("binders apply in order", func(t *testing.T) {
		t.Parallel()
		var got planRequest
		h := handler.HandlerFunc[handler.Context, planRequest](func(ctx handler.Context, req planRequest) handler.Response {
			got = req
			return handler.JSON(map[string]string{"ok": "yes"})
		})
		wrapped := handler.Wrap(h,
			handler.WithBinders[handler.Context, planRequest](binder.Query(), binder.JSON()),
		)

		req := httptest.NewRequest(http.MethodPost, "/test?wait=true", bytes.NewBufferString(`{"plan_id":"starter"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		wrapped(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, planRequest{PlanID: "starter", Wait: true}, got)
	})

	t.Run("binders that do not apply are skipped", func(t *testing.T) {
		t.Parallel()
		var got planRequest
		h := handler.HandlerFunc[handler.Context, planRequest](func(ctx handler.Context, req planRequest) handler.Response {
			got = req
			return handler.JSON(nil)
		})
		wrapped := handler.Wrap(h,
			handler.WithBinders[handler.Context, planRequest](binder.JSON(), binder.Query()),
		)

		rec := httptest.NewRecorder()
		wrapped(rec, httptest.NewRequest(http.MethodGet, "/test?wait=1", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, got.Wait)
	})

	t.Run("binding error goes to the error handler", func(t *testing.T) {
		t.Parallel()
		called := false
		h := handler.HandlerFunc[handler.Context, planRequest](func(ctx handler.Context, req planRequest) handler.Response {
			called = true
			return handler.JSON(nil)
		})
		var handled error
		wrapped := handler.Wrap(h,
			handler.WithBinders[handler.Context, planRequest](binder.JSON()),
			handler.WithErrorHandler[handler.Context, planRequest](func(ctx handler.Context, err error) {
				handled = err
				ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
			}),
		)

		req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`{"plan_id":`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		wrapped(rec, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.ErrorIs(t, handled, binder.ErrFailedToParseJSON)
	})

	t.Run("default error handler renders a JSON error", func(t *testing.T) {
		t.Parallel()
		h := handler.HandlerFunc[handler.Context, planRequest](func(ctx handler.Context, req planRequest) handler.Response {
			return mockResponse{renderErr: errors.New("connection string leaked")}
		})

		rec := httptest.NewRecorder()
		handler.Wrap(h)(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		detail := decodeErrorDetail(t, rec)
		assert.Equal(t, "internal_error", detail.Code)
		assert.NotContains(t, detail.Message, "leaked")
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		h := handler.HandlerFunc[handler.Context, planRequest](func(ctx handler.Context, req planRequest) handler.Response {
			return nil
		})
		var handled error
		wrapped := handler.Wrap(h,
			handler.WithErrorHandler[handler.Context, planRequest](func(ctx handler.Context, err error) {
				handled = err
				ctx.ResponseWriter().WriteHeader(http.StatusInternalServerError)
			}),
		)

		rec := httptest.NewRecorder()
		wrapped(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.ErrorIs(t, handled, handler.ErrNilResponse)
	})

	t.Run("custom context factory", func(t *testing.T) {
		t.Parallel()
		type accountContext struct {
			handler.Context
			accountID string
		}
		h := handler.HandlerFunc[accountContext, planRequest](func(ctx accountContext, req planRequest) handler.Response {
			return handler.JSON(map[string]string{"account_id": ctx.accountID})
		})
		wrapped := handler.Wrap(h,
			handler.WithContextFactory[accountContext, planRequest](func(w http.ResponseWriter, r *http.Request) accountContext {
				return accountContext{Context: handler.NewContext(w, r), accountID: "acct-1"}
			}),
		)

		rec := httptest.NewRecorder()
		wrapped(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"account_id":"acct-1"}`, rec.Body.String())
	})
}
