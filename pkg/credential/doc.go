// Package credential issues and verifies the bearer tokens that identify an
// account to the billing API.
//
// Tokens are HS256 JWTs carrying the account id and optional user id and
// email. Middleware verifies the Authorization header and stores the
// resulting Credential in the request context, where handlers read it with
// FromContext.
package credential
