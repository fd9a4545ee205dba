package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/clock"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
)

// storageAttempts is one try plus one retry for ledger writes.
const storageAttempts = 2

// TokenIssuer mints and verifies tokens. *auth.Issuer implements it.
type TokenIssuer interface {
	IssueAccessToken(u *models.User) (string, time.Time, error)
	IssueRefreshToken() (string, error)
	ParseAccessToken(token string) (*auth.Claims, error)
	ParseAccessTokenAllowExpired(token string) (*auth.Claims, error)
}

// TokenPair is what a client receives after login or rotation.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RotationRequest carries the caller's current pair. AccessToken may be
// empty; when present it must belong to the refresh token's owner.
type RotationRequest struct {
	AccessToken  string
	RefreshToken string
	DeviceLabel  string
}

type SessionConfig struct {
	RefreshTokenTTL time.Duration
	GraceWindow     time.Duration
	// LogoutGrace keeps a logged-out token usable for GraceWindow so that
	// requests already in flight can finish.
	LogoutGrace bool
}

// SessionService is the rotation engine. Every successful Rotate writes the
// new ledger row before revoking the old one, inside one transaction.
type SessionService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	users       *UserService
	issuer      TokenIssuer
	clock       clock.Clock
	logger      logging.Logger
	cfg         SessionConfig
}

func NewSessionService(tx dbx.Transactor, m repomanager.RepositoryManager, users *UserService,
	issuer TokenIssuer, c clock.Clock, logger logging.Logger, cfg SessionConfig) *SessionService {
	if c == nil {
		c = clock.Real()
	}
	return &SessionService{
		tx:          tx,
		repomanager: m,
		users:       users,
		issuer:      issuer,
		clock:       c,
		logger:      logger.With("module", "sessions"),
		cfg:         cfg,
	}
}

// Login verifies credentials and opens a new session for deviceLabel.
func (s *SessionService) Login(ctx context.Context, userName, password, deviceLabel string) (*TokenPair, error) {
	u, err := s.users.VerifyCredentials(ctx, userName, password)
	if err != nil {
		return nil, err
	}

	pair, err := s.openSession(ctx, u, deviceLabel)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "login", "user_id", u.ID, "device", deviceLabel)
	return pair, nil
}

// Register creates a principal and logs it in on deviceLabel.
func (s *SessionService) Register(ctx context.Context, userName, password, deviceLabel string) (*TokenPair, error) {
	u, err := s.users.Register(ctx, userName, password)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "user registered", "user_id", u.ID)
	return s.openSession(ctx, u, deviceLabel)
}

func (s *SessionService) openSession(ctx context.Context, u *models.User, deviceLabel string) (*TokenPair, error) {
	now := s.clock.Now()

	pair, err := s.mint(u, now)
	if err != nil {
		return nil, err
	}

	err = s.withRetry(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.repomanager.RefreshTokens(tx).Create(ctx, u.ID, pair.RefreshToken, pair.RefreshExpiresAt, deviceLabel, now)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "session create failed", "user_id", u.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrTransientStorage, err)
	}
	return pair, nil
}

// Rotate exchanges a valid refresh token for a new pair. The old token
// enters RevokedWithGrace and keeps working for GraceWindow so concurrent
// refreshes from the same client do not log it out.
func (s *SessionService) Rotate(ctx context.Context, req RotationRequest) (*TokenPair, error) {
	now := s.clock.Now()

	var row *models.RefreshToken
	err := dbx.Retry(ctx, storageAttempts, isRetryable, func(ctx context.Context) error {
		var err error
		row, err = s.repomanager.RefreshTokens(s.tx.Conn()).FindActiveByHash(ctx, req.RefreshToken, now, s.cfg.GraceWindow)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidRefreshToken
		}
		s.logger.Error(ctx, "ledger lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrTransientStorage, err)
	}

	if req.AccessToken != "" {
		claims, err := s.issuer.ParseAccessTokenAllowExpired(req.AccessToken)
		if err != nil {
			s.logger.Warn(ctx, "token mismatch: unreadable access token", "token_user_id", row.UserID, "error", err)
			return nil, common.ErrTokenMismatch
		}
		if claims.UserID() != row.UserID {
			s.logger.Warn(ctx, "token mismatch", "token_user_id", row.UserID, "access_user_id", claims.UserID())
			return nil, common.ErrTokenMismatch
		}
	}

	u, err := s.users.GetUser(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("%w: %v", common.ErrTransientStorage, err)
	}

	pair, err := s.mint(u, now)
	if err != nil {
		return nil, err
	}

	deviceLabel := row.DeviceLabel
	if deviceLabel == "" {
		deviceLabel = req.DeviceLabel
	}

	err = s.withRetry(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		// Serializes with LogoutAll, then re-checks the row a concurrent
		// revoke may have cut short since the lookup above.
		if err := s.repomanager.Users(tx).LockForUpdate(ctx, u.ID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		repo := s.repomanager.RefreshTokens(tx)
		if _, err := repo.LockActive(ctx, row.ID, now, s.cfg.GraceWindow); err != nil {
			return fmt.Errorf("recheck: %w", err)
		}
		if _, err := repo.Create(ctx, u.ID, pair.RefreshToken, pair.RefreshExpiresAt, deviceLabel, now); err != nil {
			return fmt.Errorf("create: %w", err)
		}
		if err := repo.Touch(ctx, row.ID, now); err != nil {
			return fmt.Errorf("touch: %w", err)
		}
		if err := repo.Revoke(ctx, row.ID, now); err != nil {
			return fmt.Errorf("revoke: %w", err)
		}
		return nil
	})
	if errors.Is(err, common.ErrorNotFound) {
		s.logger.Info(ctx, "refresh token revoked during rotation", "user_id", u.ID, "token", logging.TokenPrefix(row.TokenHash))
		return nil, common.ErrInvalidRefreshToken
	}
	if err != nil {
		s.logger.Error(ctx, "rotation failed", "user_id", u.ID, "token", logging.TokenPrefix(row.TokenHash), "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrTransientStorage, err)
	}

	s.logger.Debug(ctx, "token rotated", "user_id", u.ID, "token", logging.TokenPrefix(row.TokenHash), "prior_state", row.State(now, s.cfg.GraceWindow).String())
	return pair, nil
}

// Logout revokes the presented refresh token. Unknown or already inactive
// tokens are not an error.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	now := s.clock.Now()

	row, err := s.repomanager.RefreshTokens(s.tx.Conn()).FindActiveByHash(ctx, refreshToken, now, s.cfg.GraceWindow)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", common.ErrTransientStorage, err)
	}

	at := now
	if !s.cfg.LogoutGrace {
		at = now.Add(-s.cfg.GraceWindow)
	}

	err = s.withRetry(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.RefreshTokens(tx).Revoke(ctx, row.ID, at)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientStorage, err)
	}

	s.logger.Info(ctx, "logout", "user_id", row.UserID, "device", row.DeviceLabel)
	return nil
}

// LogoutAll revokes every session of userID immediately, without grace.
// Rows still inside the grace window of an earlier rotation are cut too.
func (s *SessionService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	at := s.clock.Now().Add(-s.cfg.GraceWindow)

	var n int64
	err := s.withRetry(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).LockForUpdate(ctx, userID); err != nil {
			return err
		}
		var err error
		n, err = s.repomanager.RefreshTokens(tx).RevokeAllForUser(ctx, userID, at)
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrTransientStorage, err)
	}

	s.logger.Info(ctx, "logout everywhere", "user_id", userID, "revoked", n)
	return n, nil
}

// ListSessions returns the caller's active sessions, most recently used first.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	now := s.clock.Now()

	rows, err := s.repomanager.RefreshTokens(s.tx.Conn()).ListActiveForUser(ctx, userID, now, s.cfg.GraceWindow)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientStorage, err)
	}

	out := make([]models.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Session{
			ID:          r.ID,
			DeviceLabel: r.DeviceLabel,
			CreatedAt:   r.CreatedAt,
			LastUsedAt:  r.LastUsedAt,
			ExpiresAt:   r.ExpiresAt,
			State:       r.State(now, s.cfg.GraceWindow),
		})
	}
	return out, nil
}

// Authenticate verifies an access token for a protected call. No ledger
// lookup is made.
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error) {
	return s.issuer.ParseAccessToken(accessToken)
}

// Sweep purges ledger rows whose expiry and grace window have both elapsed.
func (s *SessionService) Sweep(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.tx.Conn()).Sweep(ctx, s.clock.Now(), s.cfg.GraceWindow)
}

func (s *SessionService) mint(u *models.User, now time.Time) (*TokenPair, error) {
	access, accessExp, err := s.issuer.IssueAccessToken(u)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	refresh, err := s.issuer.IssueRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}, nil
}

func (s *SessionService) withRetry(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.Retry(ctx, storageAttempts, isRetryable, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, dbx.ReadCommitted, fn)
	})
}

func isRetryable(err error) bool {
	return !errors.Is(err, common.ErrorNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
