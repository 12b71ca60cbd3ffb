// Package logger builds *slog.Logger instances for the billing service.
//
// New applies functional options on top of production defaults (JSON, info
// level, stdout). WithEnvironment switches to text output at debug level for
// development. Context extractors registered through WithContextExtractors or
// WithContextValue run on every record, so request-scoped values such as the
// request id end up in the log line without threading loggers through calls.
//
// Attribute helpers (AccountID, EventID, Processor, Error and friends) keep
// key names consistent across packages.
//
// # Usage
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "billingd"),
//		logger.WithContextValue("request_id", middleware.RequestIDKey),
//	)
//	log.InfoContext(ctx, "checkout opened", logger.AccountID(accountID))
package logger
