// Package services contains application services for the sessionkeeper
// client. AuthService ties the remote client to the local session store so
// a login survives CLI restarts and every token rotation is written back.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/api"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/client"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
)

// AuthService defines session operations for the CLI.
//
// Calls that reach protected endpoints may rotate the token pair behind the
// scenes. The rotated pair is persisted before the call returns.
type AuthService interface {
	Register(ctx context.Context, username string, password []byte) error
	Login(ctx context.Context, username string, password []byte) error
	RestoreSession(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
	WhoAmI(ctx context.Context) (*api.WhoAmIResponse, error)
	Sessions(ctx context.Context) ([]api.Session, error)
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type authService struct {
	client      client.Client
	db          *sql.DB
	server      string
	deviceLabel string

	saved client.Tokens
}

func NewAuthService(c client.Client, db *sql.DB, server, deviceLabel string) AuthService {
	return &authService{client: c, db: db, server: server, deviceLabel: deviceLabel}
}

func (a *authService) getMetadataRepo(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}

func (a *authService) Register(ctx context.Context, username string, password []byte) error {
	if err := a.client.Register(ctx, username, string(password), a.deviceLabel); err != nil {
		return fmt.Errorf("register error: %w", err)
	}
	return a.saveSession(ctx, username)
}

func (a *authService) Login(ctx context.Context, username string, password []byte) error {
	if err := a.client.Login(ctx, username, string(password), a.deviceLabel); err != nil {
		return fmt.Errorf("login error: %w", err)
	}
	return a.saveSession(ctx, username)
}

// saveSession writes the whole session in one transaction.
func (a *authService) saveSession(ctx context.Context, username string) error {
	t := a.client.Tokens()

	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := a.getMetadataRepo(tx)
		values := map[string][]byte{
			metadata.KeyUsername:      []byte(username),
			metadata.KeyAccessToken:   []byte(t.AccessToken),
			metadata.KeyRefreshToken:  []byte(t.RefreshToken),
			metadata.KeyAccessExpires: []byte(t.ExpiresAt.UTC().Format(time.RFC3339Nano)),
			metadata.KeyServer:        []byte(a.server),
		}
		for _, k := range metadata.SessionKeys {
			if err := repo.Set(ctx, k, values[k]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session saving error: %w", err)
	}

	a.saved = t
	return nil
}

// syncTokens persists the pair if the client rotated or dropped it.
func (a *authService) syncTokens(ctx context.Context) error {
	t := a.client.Tokens()
	if t.AccessToken == a.saved.AccessToken && t.RefreshToken == a.saved.RefreshToken {
		return nil
	}

	if t.Empty() {
		if err := a.getMetadataRepo(a.db).Clear(ctx); err != nil {
			return fmt.Errorf("session clearing error: %w", err)
		}
		a.saved = client.Tokens{}
		return nil
	}

	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := a.getMetadataRepo(tx)
		if err := repo.Set(ctx, metadata.KeyAccessToken, []byte(t.AccessToken)); err != nil {
			return err
		}
		if err := repo.Set(ctx, metadata.KeyRefreshToken, []byte(t.RefreshToken)); err != nil {
			return err
		}
		return repo.Set(ctx, metadata.KeyAccessExpires, []byte(t.ExpiresAt.UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		return fmt.Errorf("session saving error: %w", err)
	}

	a.saved = t
	return nil
}

// after persists whatever the call left behind and keeps the call's error
// first.
func (a *authService) after(ctx context.Context, callErr error) error {
	if err := a.syncTokens(ctx); err != nil && callErr == nil {
		return err
	}
	return callErr
}

// RestoreSession loads the stored pair into the client and returns the
// username it belongs to. A session stored for another server is ignored.
func (a *authService) RestoreSession(ctx context.Context) (string, error) {
	repo := a.getMetadataRepo(a.db)

	values, err := repo.List(ctx)
	if err != nil {
		return "", err
	}

	refreshToken := string(values[metadata.KeyRefreshToken])
	if refreshToken == "" {
		return "", client.ErrNotLoggedIn
	}
	if server := string(values[metadata.KeyServer]); server != "" && server != a.server {
		return "", client.ErrNotLoggedIn
	}

	t := client.Tokens{
		AccessToken:  string(values[metadata.KeyAccessToken]),
		RefreshToken: refreshToken,
	}
	if raw := values[metadata.KeyAccessExpires]; len(raw) > 0 {
		if exp, err := time.Parse(time.RFC3339Nano, string(raw)); err == nil {
			t.ExpiresAt = exp
		}
	}

	a.client.SetTokens(t)
	a.saved = t

	return string(values[metadata.KeyUsername]), nil
}

func (a *authService) Refresh(ctx context.Context) error {
	return a.after(ctx, a.client.Refresh(ctx))
}

func (a *authService) WhoAmI(ctx context.Context) (*api.WhoAmIResponse, error) {
	me, err := a.client.WhoAmI(ctx)
	return me, a.after(ctx, err)
}

func (a *authService) Sessions(ctx context.Context) ([]api.Session, error) {
	sessions, err := a.client.ListSessions(ctx)
	return sessions, a.after(ctx, err)
}

func (a *authService) Logout(ctx context.Context) error {
	return a.after(ctx, a.client.Logout(ctx))
}

func (a *authService) LogoutAll(ctx context.Context) (int64, error) {
	n, err := a.client.LogoutAll(ctx)
	return n, a.after(ctx, err)
}

func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}

// IsNotLoggedIn reports errors that mean the user has to log in first.
func IsNotLoggedIn(err error) bool {
	return errors.Is(err, client.ErrNotLoggedIn) ||
		errors.Is(err, client.ErrSessionExpired) ||
		errors.Is(err, common.ErrorNotFound)
}
