// Package pg bootstraps the PostgreSQL layer of the billing service on top of
// jackc/pgx/v5 and pressly/goose/v3.
//
// Config is populated from PG_* environment variables. Connect opens a
// *pgxpool.Pool and retries until the database answers a ping. Migrate runs
// goose migrations through the same pool, from disk or from an embedded
// filesystem. Healthcheck returns a readiness check for the HTTP server.
//
// Error helpers classify driver errors without leaking pgconn types into
// callers:
//
//	if pg.IsDuplicateKeyError(err) {
//		// row already present
//	}
package pg
