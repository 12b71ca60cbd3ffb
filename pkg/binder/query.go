package binder

import "net/http"

// Query creates a binder for URL query parameters.
//
// Supported struct tags:
//   - `query:"name"` - binds to query parameter "name"
//   - `query:"-"`    - skips the field
//
// Untagged fields bind to their lowercased name. Basic types, slices of
// basic types and pointers for optional fields are supported.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}
