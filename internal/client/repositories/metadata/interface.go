// Package metadata is the client's local key/value store. It keeps the
// current session between CLI runs.
package metadata

import (
	"context"
)

// Keys of the persisted session.
const (
	KeyUsername      = "username"
	KeyAccessToken   = "access_token"
	KeyRefreshToken  = "refresh_token"
	KeyAccessExpires = "access_expires_at"
	KeyServer        = "server"
)

// SessionKeys lists every key written on login, in a stable order.
var SessionKeys = []string{KeyUsername, KeyAccessToken, KeyRefreshToken, KeyAccessExpires, KeyServer}

type Repository interface {
	// Get returns common.ErrorNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
