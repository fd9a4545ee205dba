// Package refreshtokens is the refresh token ledger: one row per issued
// refresh token, keyed by the SHA-256 of the raw value.
package refreshtokens

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

// Repository is the ledger contract. "Active" always means
// now < expires_at && (revoked_at is null || now < revoked_at + grace).
type Repository interface {
	// Create stores the hash of rawToken. The raw value is never persisted.
	Create(ctx context.Context, userID, rawToken string, expiresAt time.Time, deviceLabel string, now time.Time) (*models.RefreshToken, error)
	// FindActiveByHash returns common.ErrorNotFound for unknown and inactive tokens alike.
	FindActiveByHash(ctx context.Context, rawToken string, now time.Time, grace time.Duration) (*models.RefreshToken, error)
	// LockActive re-reads row id inside a transaction and locks it until
	// commit. Inactive rows yield common.ErrorNotFound.
	LockActive(ctx context.Context, id string, now time.Time, grace time.Duration) (*models.RefreshToken, error)
	Touch(ctx context.Context, id string, now time.Time) error
	// Revoke and RevokeAllForUser only ever move revoked_at earlier: a
	// later grace revoke never extends an earlier one, and a hard revoke
	// (at = now - grace) cuts an open grace window short.
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	ListActiveForUser(ctx context.Context, userID string, now time.Time, grace time.Duration) ([]*models.RefreshToken, error)
	// Sweep deletes rows whose expiry and grace window have both elapsed
	// at olderThan. Active rows are never deleted.
	Sweep(ctx context.Context, olderThan time.Time, grace time.Duration) (int64, error)
}

// HashToken is the ledger key of a raw refresh token: base64url(sha256).
func HashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
