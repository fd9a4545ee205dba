package services

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/api"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/client"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/refresh"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/repositories/metadata"
	"github.com/stretchr/testify/require"
)

// ---- helpers ----

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func getMeta(t *testing.T, db *sql.DB, k string) string {
	t.Helper()
	var v []byte
	err := db.QueryRow(`SELECT value FROM metadata WHERE key=?`, k).Scan(&v)
	require.NoError(t, err)
	return string(v)
}

func countMeta(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM metadata`).Scan(&n))
	return n
}

// ---- fake client ----

type fakeClient struct {
	tokens client.Tokens

	CloseErr    error
	RegisterErr error
	LoginErr    error
	PingErr     error
	LogoutErr   error

	// RotateTo is installed as the pair on the next protected call.
	RotateTo *client.Tokens
	// Expire drops the pair on the next protected call.
	Expire bool

	LastUser        string
	LastPassword    string
	LastDeviceLabel string
	RefreshCalls    int
}

func (f *fakeClient) Close() error { return f.CloseErr }

func (f *fakeClient) Register(ctx context.Context, username, password, deviceLabel string) error {
	f.LastUser, f.LastPassword, f.LastDeviceLabel = username, password, deviceLabel
	if f.RegisterErr != nil {
		return f.RegisterErr
	}
	f.tokens = client.Tokens{AccessToken: "A-reg", RefreshToken: "R-reg", ExpiresAt: time.Unix(1000, 0)}
	return nil
}

func (f *fakeClient) Login(ctx context.Context, username, password, deviceLabel string) error {
	f.LastUser, f.LastPassword, f.LastDeviceLabel = username, password, deviceLabel
	if f.LoginErr != nil {
		return f.LoginErr
	}
	f.tokens = client.Tokens{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: time.Unix(2000, 0)}
	return nil
}

func (f *fakeClient) protected() error {
	if f.Expire {
		f.tokens = client.Tokens{}
		return client.ErrSessionExpired
	}
	if f.RotateTo != nil {
		f.tokens = *f.RotateTo
		f.RotateTo = nil
	}
	return nil
}

func (f *fakeClient) Refresh(ctx context.Context) error {
	f.RefreshCalls++
	if f.tokens.Empty() {
		return client.ErrNotLoggedIn
	}
	return f.protected()
}

func (f *fakeClient) Logout(ctx context.Context) error {
	if f.LogoutErr != nil {
		return f.LogoutErr
	}
	f.tokens = client.Tokens{}
	return nil
}

func (f *fakeClient) LogoutAll(ctx context.Context) (int64, error) {
	if err := f.protected(); err != nil {
		return 0, err
	}
	f.tokens = client.Tokens{}
	return 2, nil
}

func (f *fakeClient) ListSessions(ctx context.Context) ([]api.Session, error) {
	if err := f.protected(); err != nil {
		return nil, err
	}
	return []api.Session{{ID: "s1", DeviceLabel: "laptop"}}, nil
}

func (f *fakeClient) WhoAmI(ctx context.Context) (*api.WhoAmIResponse, error) {
	if err := f.protected(); err != nil {
		return nil, err
	}
	return &api.WhoAmIResponse{UserID: "u1", Username: "alice"}, nil
}

func (f *fakeClient) Ping(ctx context.Context) error { return f.PingErr }

func (f *fakeClient) Tokens() client.Tokens       { return f.tokens }
func (f *fakeClient) SetTokens(t client.Tokens)   { f.tokens = t }
func (f *fakeClient) RefreshStats() refresh.Stats { return refresh.Stats{Calls: int64(f.RefreshCalls)} }

// ---- tests ----

func TestLogin_PersistsSession(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{}
	svc := NewAuthService(fc, db, "localhost:50051", "laptop")

	require.NoError(t, svc.Login(context.Background(), "alice", []byte("secret")))

	require.Equal(t, "alice", fc.LastUser)
	require.Equal(t, "secret", fc.LastPassword)
	require.Equal(t, "laptop", fc.LastDeviceLabel)

	require.Equal(t, "alice", getMeta(t, db, metadata.KeyUsername))
	require.Equal(t, "A1", getMeta(t, db, metadata.KeyAccessToken))
	require.Equal(t, "R1", getMeta(t, db, metadata.KeyRefreshToken))
	require.Equal(t, "localhost:50051", getMeta(t, db, metadata.KeyServer))
	require.Equal(t, time.Unix(2000, 0).UTC().Format(time.RFC3339Nano), getMeta(t, db, metadata.KeyAccessExpires))
}

func TestLogin_ErrorWrappedNothingSaved(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{LoginErr: client.ErrUnauthorized}
	svc := NewAuthService(fc, db, "srv", "")

	err := svc.Login(context.Background(), "alice", []byte("bad"))
	require.ErrorIs(t, err, client.ErrUnauthorized)
	require.ErrorContains(t, err, "login error:")
	require.Zero(t, countMeta(t, db))
}

func TestRegister_PersistsSession(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{}
	svc := NewAuthService(fc, db, "srv", "")

	require.NoError(t, svc.Register(context.Background(), "bob", []byte("password1")))
	require.Equal(t, "R-reg", getMeta(t, db, metadata.KeyRefreshToken))
}

func TestRegister_Error(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{RegisterErr: client.ErrAlreadyExists}
	svc := NewAuthService(fc, db, "srv", "")

	err := svc.Register(context.Background(), "bob", []byte("password1"))
	require.ErrorIs(t, err, client.ErrAlreadyExists)
}

func TestRestoreSession(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	first := &fakeClient{}
	require.NoError(t, NewAuthService(first, db, "srv", "").Login(ctx, "alice", []byte("secret")))

	second := &fakeClient{}
	svc := NewAuthService(second, db, "srv", "")
	username, err := svc.RestoreSession(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", username)
	require.Equal(t, "R1", second.tokens.RefreshToken)
	require.True(t, second.tokens.ExpiresAt.Equal(time.Unix(2000, 0)))
}

func TestRestoreSession_Empty(t *testing.T) {
	svc := NewAuthService(&fakeClient{}, setupDB(t), "srv", "")

	_, err := svc.RestoreSession(context.Background())
	require.ErrorIs(t, err, client.ErrNotLoggedIn)
	require.True(t, IsNotLoggedIn(err))
}

func TestRestoreSession_OtherServerIgnored(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, NewAuthService(&fakeClient{}, db, "srv-a", "").Login(ctx, "alice", []byte("secret")))

	fc := &fakeClient{}
	_, err := NewAuthService(fc, db, "srv-b", "").RestoreSession(ctx)
	require.ErrorIs(t, err, client.ErrNotLoggedIn)
	require.True(t, fc.tokens.Empty())
}

func TestProtectedCall_PersistsRotatedPair(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	fc := &fakeClient{}
	svc := NewAuthService(fc, db, "srv", "")
	require.NoError(t, svc.Login(ctx, "alice", []byte("secret")))

	fc.RotateTo = &client.Tokens{AccessToken: "A2", RefreshToken: "R2", ExpiresAt: time.Unix(3000, 0)}

	me, err := svc.WhoAmI(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", me.Username)
	require.Equal(t, "R2", getMeta(t, db, metadata.KeyRefreshToken))
	require.Equal(t, "A2", getMeta(t, db, metadata.KeyAccessToken))
	require.Equal(t, "alice", getMeta(t, db, metadata.KeyUsername))
}

func TestSessions_ExpiredSessionClearsStore(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	fc := &fakeClient{}
	svc := NewAuthService(fc, db, "srv", "")
	require.NoError(t, svc.Login(ctx, "alice", []byte("secret")))

	fc.Expire = true

	_, err := svc.Sessions(ctx)
	require.ErrorIs(t, err, client.ErrSessionExpired)
	require.True(t, IsNotLoggedIn(err))
	require.Zero(t, countMeta(t, db))
}

func TestRefresh_Persists(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	fc := &fakeClient{}
	svc := NewAuthService(fc, db, "srv", "")
	require.NoError(t, svc.Login(ctx, "alice", []byte("secret")))

	fc.RotateTo = &client.Tokens{AccessToken: "A9", RefreshToken: "R9"}
	require.NoError(t, svc.Refresh(ctx))
	require.Equal(t, 1, fc.RefreshCalls)
	require.Equal(t, "R9", getMeta(t, db, metadata.KeyRefreshToken))
}

func TestLogout_ClearsStore(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	fc := &fakeClient{}
	svc := NewAuthService(fc, db, "srv", "")
	require.NoError(t, svc.Login(ctx, "alice", []byte("secret")))

	require.NoError(t, svc.Logout(ctx))
	require.Zero(t, countMeta(t, db))
}

func TestLogout_ServerDownKeepsStore(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	fc := &fakeClient{}
	svc := NewAuthService(fc, db, "srv", "")
	require.NoError(t, svc.Login(ctx, "alice", []byte("secret")))

	fc.LogoutErr = client.ErrUnavailable
	require.ErrorIs(t, svc.Logout(ctx), client.ErrUnavailable)
	require.Equal(t, "R1", getMeta(t, db, metadata.KeyRefreshToken))
}

func TestLogoutAll_ClearsStore(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	fc := &fakeClient{}
	svc := NewAuthService(fc, db, "srv", "")
	require.NoError(t, svc.Login(ctx, "alice", []byte("secret")))

	n, err := svc.LogoutAll(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Zero(t, countMeta(t, db))
}

func TestPingAndClose(t *testing.T) {
	db := setupDB(t)

	svc := NewAuthService(&fakeClient{}, db, "srv", "")
	require.NoError(t, svc.Ping(context.Background()))
	require.NoError(t, svc.Close(context.Background()))

	svc = NewAuthService(&fakeClient{PingErr: client.ErrUnavailable, CloseErr: errors.New("io")}, db, "srv", "")
	require.ErrorIs(t, svc.Ping(context.Background()), client.ErrUnavailable)
	require.Error(t, svc.Close(context.Background()))
}
