package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/freightdesk/billingsync/pkg/binder"
	"github.com/freightdesk/billingsync/pkg/logger"
	"github.com/freightdesk/billingsync/pkg/requestid"
)

// ErrorInfo contains classified error information
type ErrorInfo struct {
	StatusCode int
	Code       string
	Message    string
	// Retryable errors are answered with a Retry-After header.
	Retryable bool
}

// ErrorHandlerConfig configures the default error handler
type ErrorHandlerConfig struct {
	// Classify maps domain errors and reports false for errors it does not
	// recognize, which fall back to the built-in classification.
	Classify func(err error) (ErrorInfo, bool)

	// RetryAfter is the Retry-After value for retryable errors (default: "1")
	RetryAfter string
}

func isClientError(statusCode int) bool {
	return statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError
}

// determineLogLevel maps HTTP status codes to appropriate log levels
func determineLogLevel(statusCode int) slog.Level {
	if isClientError(statusCode) {
		return slog.LevelWarn
	}
	return slog.LevelError
}

// classifyError covers binding failures and HTTPError values. Anything else
// is an opaque 500.
func classifyError(err error) ErrorInfo {
	info := ErrorInfo{
		StatusCode: http.StatusInternalServerError,
		Code:       ErrInternalServerError.Key,
		Message:    http.StatusText(http.StatusInternalServerError),
	}

	var httpErr HTTPError
	switch {
	case errors.As(err, &httpErr):
		info.StatusCode = httpErr.Code
		info.Code = httpErr.Key
		info.Message = http.StatusText(httpErr.Code)
	case errors.Is(err, binder.ErrUnsupportedMediaType):
		info.StatusCode = ErrUnsupportedMediaType.Code
		info.Code = ErrUnsupportedMediaType.Key
		info.Message = err.Error()
	case errors.Is(err, binder.ErrMissingContentType),
		errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrFailedToParseQuery):
		info.StatusCode = ErrBadRequest.Code
		info.Code = ErrBadRequest.Key
		info.Message = err.Error()
	}
	return info
}

// NewErrorHandler creates an error handler that logs the failure and renders
// it as a JSON error body.
func NewErrorHandler(log *slog.Logger, cfg ErrorHandlerConfig) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RetryAfter == "" {
		cfg.RetryAfter = "1"
	}

	return func(ctx Context, err error) {
		r := ctx.Request()
		requestID := requestid.FromContext(r.Context())

		info, ok := ErrorInfo{}, false
		if cfg.Classify != nil {
			info, ok = cfg.Classify(err)
		}
		if !ok {
			info = classifyError(err)
		}

		log.LogAttrs(r.Context(), determineLogLevel(info.StatusCode), "request error",
			logger.Error(err),
			slog.Int("status_code", info.StatusCode),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		opts := []JSONOption{WithJSONStatus(info.StatusCode)}
		if info.Retryable {
			opts = append(opts, WithJSONHeader("Retry-After", cfg.RetryAfter))
		}
		detail := &ErrorDetail{Code: info.Code, Message: info.Message, RequestID: requestID}
		if renderErr := JSONError(detail, opts...).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.LogAttrs(r.Context(), slog.LevelError, "failed to render error",
				logger.Error(renderErr),
				logger.Component("error_handler"),
			)
		}
	}
}
