package binder

import "errors"

// Common binding errors
var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrFailedToParseJSON    = errors.New("failed to parse JSON request body")
	ErrFailedToParseQuery   = errors.New("failed to parse query parameters")
	ErrMissingContentType   = errors.New("missing content type")
	// ErrBinderNotApplicable marks a request the binder has nothing to read from.
	ErrBinderNotApplicable = errors.New("binder not applicable")
)
