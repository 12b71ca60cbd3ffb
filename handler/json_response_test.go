package handler_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/billingsync/handler"
)

func TestJSON(t *testing.T) {
	t.Parallel()

	t.Run("renders the value", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		err := handler.JSON(map[string]any{"checkout_url": "https://pay.test/cs_1"}).
			Render(rec, httptest.NewRequest(http.MethodPost, "/checkout", nil))

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"checkout_url":"https://pay.test/cs_1"}`, rec.Body.String())
	})

	t.Run("status and headers", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		err := handler.JSON(struct{}{},
			handler.WithJSONStatus(http.StatusAccepted),
			handler.WithJSONHeader("Retry-After", "5"),
		).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	})
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    any
		status int
		code   string
	}{
		{"http error", handler.ErrBadRequest, http.StatusBadRequest, "invalid_request"},
		{"wrapped http error", errors.Join(errors.New("ctx"), handler.ErrUnsupportedMediaType), http.StatusUnsupportedMediaType, "unsupported_media_type"},
		{"plain error", errors.New("dial tcp 10.0.0.1:5432"), http.StatusInternalServerError, "internal_error"},
		{"detail", &handler.ErrorDetail{Code: "invalid_plan", Message: "unknown plan"}, http.StatusInternalServerError, "invalid_plan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			require.NoError(t, handler.JSONError(tt.err).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

			assert.Equal(t, tt.status, rec.Code)
			detail := decodeErrorDetail(t, rec)
			assert.Equal(t, tt.code, detail.Code)
			assert.NotContains(t, detail.Message, "10.0.0.1")
		})
	}
}
