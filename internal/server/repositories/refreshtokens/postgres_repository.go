package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/google/uuid"
)

const selectColumns = `id, user_id, token_hash, expires_at, device_label, created_at, last_used_at, revoked_at`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID, rawToken string, expiresAt time.Time, deviceLabel string, now time.Time) (*models.RefreshToken, error) {
	t := &models.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      userID,
		TokenHash:   HashToken(rawToken),
		ExpiresAt:   expiresAt,
		DeviceLabel: deviceLabel,
		CreatedAt:   now,
		LastUsedAt:  now,
	}

	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, device_label, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, nullString(deviceLabel), t.CreatedAt, t.LastUsedAt); err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) FindActiveByHash(ctx context.Context, rawToken string, now time.Time, grace time.Duration) (*models.RefreshToken, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1
		  AND expires_at > $2
		  AND (revoked_at IS NULL OR revoked_at > $3)
	`
	t, err := scanToken(r.db.QueryRowContext(ctx, query, HashToken(rawToken), now, now.Add(-grace)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) LockActive(ctx context.Context, id string, now time.Time, grace time.Duration) (*models.RefreshToken, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM refresh_tokens
		WHERE id = $1
		  AND expires_at > $2
		  AND (revoked_at IS NULL OR revoked_at > $3)
		FOR UPDATE
	`
	t, err := scanToken(r.db.QueryRowContext(ctx, query, id, now, now.Add(-grace)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Touch(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET last_used_at = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE id = $1 AND (revoked_at IS NULL OR revoked_at > $2)
	`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND (revoked_at IS NULL OR revoked_at > $2)
	`
	res, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time, grace time.Duration) ([]*models.RefreshToken, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM refresh_tokens
		WHERE user_id = $1
		  AND expires_at > $2
		  AND (revoked_at IS NULL OR revoked_at > $3)
		ORDER BY last_used_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, now, now.Add(-grace))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.RefreshToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Sweep(ctx context.Context, olderThan time.Time, grace time.Duration) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at <= $1
		  AND (revoked_at IS NULL OR revoked_at <= $2)
	`
	res, err := r.db.ExecContext(ctx, query, olderThan, olderThan.Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(s scanner) (*models.RefreshToken, error) {
	var (
		t         models.RefreshToken
		device    sql.NullString
		revokedAt sql.NullTime
	)
	if err := s.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &device, &t.CreatedAt, &t.LastUsedAt, &revokedAt); err != nil {
		return nil, err
	}
	t.DeviceLabel = device.String
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
