// Package common defines shared constants and sentinel errors used across
// client and server layers of sessionkeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidRefreshToken covers unknown, expired and revoked-past-grace
	// refresh tokens. Callers must re-authenticate.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrTokenMismatch means the presented access token does not belong to the
	// principal that owns the refresh token. Reported to callers exactly like
	// ErrInvalidRefreshToken.
	ErrTokenMismatch = errors.New("token mismatch")

	// ErrTransientStorage is returned when the ledger could not be written
	// even after a retry. The presented token stays valid.
	ErrTransientStorage = errors.New("transient storage failure")

	// ErrSigningConfiguration is fatal at startup.
	ErrSigningConfiguration = errors.New("signing configuration error")

	// ErrRateLimited is returned when a caller exceeded the refresh/login throttle.
	ErrRateLimited = errors.New("rate limited")
)
