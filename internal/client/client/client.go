package client

import (
	"context"

	"github.com/dmitrijs2005/sessionkeeper/internal/api"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/refresh"
)

type Client interface {
	Close() error
	Register(ctx context.Context, username, password, deviceLabel string) error
	Login(ctx context.Context, username, password, deviceLabel string) error
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) (int64, error)
	ListSessions(ctx context.Context) ([]api.Session, error)
	WhoAmI(ctx context.Context) (*api.WhoAmIResponse, error)
	Ping(ctx context.Context) error

	Tokens() Tokens
	SetTokens(t Tokens)
	RefreshStats() refresh.Stats
}
