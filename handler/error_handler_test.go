package handler_test

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/billingsync/handler"
	"github.com/freightdesk/billingsync/pkg/binder"
	"github.com/freightdesk/billingsync/pkg/logger"
	"github.com/freightdesk/billingsync/pkg/requestid"
)

var errPlanUnknown = errors.New("unknown plan")
var errStoreDown = errors.New("store unavailable")

func classifyTestError(err error) (handler.ErrorInfo, bool) {
	switch {
	case errors.Is(err, errPlanUnknown):
		return handler.ErrorInfo{StatusCode: http.StatusUnprocessableEntity, Code: "invalid_plan", Message: err.Error()}, true
	case errors.Is(err, errStoreDown):
		return handler.ErrorInfo{StatusCode: http.StatusServiceUnavailable, Code: "store_unavailable", Message: errStoreDown.Error(), Retryable: true}, true
	}
	return handler.ErrorInfo{}, false
}

func serveError(t *testing.T, h handler.ErrorHandler[handler.Context], err error) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/billing/checkout", nil)
	req.Header.Set(requestid.Header, "req-1")
	requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h(handler.NewContext(w, r), err)
	})).ServeHTTP(rec, req)
	return rec
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	t.Run("classified client error", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		h := handler.NewErrorHandler(logger.New(logger.WithOutput(&buf)), handler.ErrorHandlerConfig{Classify: classifyTestError})

		rec := serveError(t, h, fmt.Errorf("checkout: %w: gold", errPlanUnknown))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Empty(t, rec.Header().Get("Retry-After"))
		detail := decodeErrorDetail(t, rec)
		assert.Equal(t, "invalid_plan", detail.Code)
		assert.Contains(t, detail.Message, "gold")
		assert.Equal(t, "req-1", detail.RequestID)
		assert.Contains(t, buf.String(), "WARN")
	})

	t.Run("retryable error", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		h := handler.NewErrorHandler(logger.New(logger.WithOutput(&buf)), handler.ErrorHandlerConfig{Classify: classifyTestError})

		rec := serveError(t, h, fmt.Errorf("%w: dial tcp 10.0.0.1:5432", errStoreDown))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		detail := decodeErrorDetail(t, rec)
		assert.Equal(t, "store unavailable", detail.Message)
		assert.Contains(t, buf.String(), "ERROR")
	})

	t.Run("binding errors fall back to built-in classes", func(t *testing.T) {
		t.Parallel()
		h := handler.NewErrorHandler(logger.Discard(), handler.ErrorHandlerConfig{Classify: classifyTestError})

		rec := serveError(t, h, fmt.Errorf("%w: unexpected EOF", binder.ErrFailedToParseJSON))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request", decodeErrorDetail(t, rec).Code)

		rec = serveError(t, h, fmt.Errorf("%w: got text/plain", binder.ErrUnsupportedMediaType))
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("unknown errors are opaque", func(t *testing.T) {
		t.Parallel()
		h := handler.NewErrorHandler(nil, handler.ErrorHandlerConfig{RetryAfter: "3"})

		rec := serveError(t, h, errors.New("pq: password authentication failed"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		detail := decodeErrorDetail(t, rec)
		assert.Equal(t, "internal_error", detail.Code)
		assert.Equal(t, http.StatusText(http.StatusInternalServerError), detail.Message)
	})
}
