package refreshtokens

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps the ledger in process memory. It is safe for
// concurrent use and returns copies so callers cannot mutate stored rows.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[string]*models.RefreshToken
	byHash map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]*models.RefreshToken),
		byHash: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, userID, rawToken string, expiresAt time.Time, deviceLabel string, now time.Time) (*models.RefreshToken, error) {
	hash := HashToken(rawToken)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHash[hash]; ok {
		return nil, common.ErrorAlreadyExists
	}

	t := &models.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      userID,
		TokenHash:   hash,
		ExpiresAt:   expiresAt,
		DeviceLabel: deviceLabel,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	r.byID[t.ID] = t
	r.byHash[hash] = t.ID

	return clone(t), nil
}

func (r *MemoryRepository) FindActiveByHash(ctx context.Context, rawToken string, now time.Time, grace time.Duration) (*models.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[HashToken(rawToken)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	t := r.byID[id]
	if !t.IsActive(now, grace) {
		return nil, common.ErrorNotFound
	}
	return clone(t), nil
}

// LockActive has nothing to lock: the memory backend runs every
// transaction under dbx.LockingTransactor.
func (r *MemoryRepository) LockActive(ctx context.Context, id string, now time.Time, grace time.Duration) (*models.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok || !t.IsActive(now, grace) {
		return nil, common.ErrorNotFound
	}
	return clone(t), nil
}

func (r *MemoryRepository) Touch(ctx context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.byID[id]; ok {
		t.LastUsedAt = now
	}
	return nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.byID[id]; ok && revokesEarlier(t, at) {
		t.RevokedAt = &at
	}
	return nil
}

func (r *MemoryRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, t := range r.byID {
		if t.UserID == userID && revokesEarlier(t, at) {
			revokedAt := at
			t.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time, grace time.Duration) ([]*models.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.RefreshToken
	for _, t := range r.byID {
		if t.UserID == userID && t.IsActive(now, grace) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}

func (r *MemoryRepository) Sweep(ctx context.Context, olderThan time.Time, grace time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, t := range r.byID {
		if t.Purgeable(olderThan, grace) {
			delete(r.byHash, t.TokenHash)
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// Len is the number of stored rows, live or not.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func revokesEarlier(t *models.RefreshToken, at time.Time) bool {
	return t.RevokedAt == nil || t.RevokedAt.After(at)
}

func clone(t *models.RefreshToken) *models.RefreshToken {
	c := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		c.RevokedAt = &at
	}
	return &c
}
