package credential

import "errors"

var (
	ErrMissingSigningKey       = errors.New("credential: missing signing key")
	ErrMissingToken            = errors.New("credential: missing token")
	ErrInvalidToken            = errors.New("credential: invalid token")
	ErrExpiredToken            = errors.New("credential: token expired")
	ErrUnexpectedSigningMethod = errors.New("credential: unexpected signing method")
	ErrMissingAccount          = errors.New("credential: token carries no account")
)
