// Package migrations embeds the goose migrations of the subscriptions
// schema so the service binary can apply them at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
