// Package transport holds what the gRPC and HTTP front ends share: the
// service contracts they depend on, conversions to wire messages and the
// throttle policy.
package transport

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/sessionkeeper/internal/api"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
)

// SessionService is implemented by *services.SessionService.
type SessionService interface {
	Register(ctx context.Context, userName, password, deviceLabel string) (*services.TokenPair, error)
	Login(ctx context.Context, userName, password, deviceLabel string) (*services.TokenPair, error)
	Rotate(ctx context.Context, req services.RotationRequest) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error)
}

// MaxDeviceLabelBytes bounds the label stored with a session.
const MaxDeviceLabelBytes = 200

// DeviceLabel makes a client-supplied label storable as TEXT: invalid UTF-8
// and NUL bytes are dropped and the rest is cut on a rune boundary.
func DeviceLabel(label string) string {
	label = strings.ToValidUTF8(label, "")
	label = strings.ReplaceAll(label, "\x00", "")
	label = strings.TrimSpace(label)
	if len(label) <= MaxDeviceLabelBytes {
		return label
	}
	cut := MaxDeviceLabelBytes
	for cut > 0 && !utf8.RuneStart(label[cut]) {
		cut--
	}
	return label[:cut]
}

// RateLimiter is implemented by *ratelimit.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string) error
}

// Throttle charges one call to key. Redis outages fail open with a warning;
// only an exhausted budget is returned as common.ErrRateLimited.
func Throttle(ctx context.Context, l RateLimiter, logger logging.Logger, key string) error {
	if l == nil {
		return nil
	}
	err := l.Allow(ctx, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrRateLimited):
		logger.Warn(ctx, "throttled", "key", key)
		return common.ErrRateLimited
	case errors.Is(err, ratelimit.ErrRedisUnavailable):
		logger.Warn(ctx, "rate limiter unavailable, allowing", "error", err)
		return nil
	default:
		logger.Warn(ctx, "rate limiter error, allowing", "error", err)
		return nil
	}
}

// IsInvalidRefresh reports errors that end the caller's session. Both are
// reported identically so a probe cannot tell which check failed.
func IsInvalidRefresh(err error) bool {
	return errors.Is(err, common.ErrInvalidRefreshToken) || errors.Is(err, common.ErrTokenMismatch)
}

func TokenResponse(p *services.TokenPair) *api.TokenResponse {
	return &api.TokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        api.TokenTypeBearer,
		ExpiresAt:        p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func Sessions(in []models.Session) []api.Session {
	out := make([]api.Session, 0, len(in))
	for _, s := range in {
		out = append(out, api.Session{
			ID:          s.ID,
			DeviceLabel: s.DeviceLabel,
			CreatedAt:   s.CreatedAt,
			LastUsedAt:  s.LastUsedAt,
			ExpiresAt:   s.ExpiresAt,
			State:       s.State.String(),
		})
	}
	return out
}

func WhoAmI(c *auth.Claims) *api.WhoAmIResponse {
	resp := &api.WhoAmIResponse{
		UserID:   c.UserID(),
		Username: c.Name,
		Role:     string(c.Role),
	}
	if c.ExpiresAt != nil {
		resp.ExpiresAt = c.ExpiresAt.Time
	}
	return resp
}
