package client

import "errors"

var (
	ErrUnavailable   = errors.New("server unavailable")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrAlreadyExists = errors.New("user already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrRateLimited   = errors.New("too many requests, try again later")

	// ErrSessionExpired means the refresh token was rejected. The stored
	// tokens are dropped and the user has to log in again.
	ErrSessionExpired = errors.New("session expired, please log in again")
)
