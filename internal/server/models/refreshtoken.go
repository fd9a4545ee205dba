package models

import "time"

// TokenState is the lifecycle position of a refresh token row at a given
// instant. It is derived, never stored.
type TokenState int

const (
	TokenActive TokenState = iota
	TokenRevokedWithGrace
	TokenExpired
)

func (s TokenState) String() string {
	switch s {
	case TokenActive:
		return "active"
	case TokenRevokedWithGrace:
		return "revoked_with_grace"
	case TokenExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// RefreshToken is one ledger row. TokenHash is the only trace of the raw
// token value.
type RefreshToken struct {
	ID          string
	UserID      string
	TokenHash   string
	ExpiresAt   time.Time
	DeviceLabel string
	CreatedAt   time.Time
	LastUsedAt  time.Time
	RevokedAt   *time.Time
}

// State classifies the row at now. A revoked row stays usable until
// RevokedAt+grace; past that, or past ExpiresAt, it is expired.
func (t *RefreshToken) State(now time.Time, grace time.Duration) TokenState {
	if !now.Before(t.ExpiresAt) {
		return TokenExpired
	}
	if t.RevokedAt == nil {
		return TokenActive
	}
	if now.Before(t.RevokedAt.Add(grace)) {
		return TokenRevokedWithGrace
	}
	return TokenExpired
}

// IsActive reports whether the token may still be presented for rotation.
func (t *RefreshToken) IsActive(now time.Time, grace time.Duration) bool {
	return t.State(now, grace) != TokenExpired
}

// Purgeable reports whether both the expiry and any grace window have
// elapsed at olderThan. Revoked rows are kept until they also expire.
func (t *RefreshToken) Purgeable(olderThan time.Time, grace time.Duration) bool {
	if olderThan.Before(t.ExpiresAt) {
		return false
	}
	return t.RevokedAt == nil || !olderThan.Before(t.RevokedAt.Add(grace))
}

// Session is the caller-facing view of an active refresh token.
type Session struct {
	ID          string
	DeviceLabel string
	CreatedAt   time.Time
	LastUsedAt  time.Time
	ExpiresAt   time.Time
	State       TokenState
}
