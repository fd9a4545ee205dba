package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/clock"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGrace    = 10 * time.Second
	testPassword = "correct horse battery"
)

var testStart = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type env struct {
	clock    *clock.Fake
	manager  *repomanager.MemoryRepositoryManager
	issuer   *auth.Issuer
	users    *UserService
	sessions *SessionService
}

func newEnv(t *testing.T, mutate ...func(*SessionConfig)) *env {
	t.Helper()

	c := clock.NewFake(testStart)
	m := repomanager.NewMemoryRepositoryManager()
	tx := dbx.NewLockingTransactor()

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Method:    auth.MethodHS256,
		SecretKey: []byte("test-secret"),
		Issuer:    "sessionkeeper",
		Audience:  "blog",
		AccessTTL: 15 * time.Minute,
		Clock:     c,
	})
	require.NoError(t, err)

	cfg := SessionConfig{RefreshTokenTTL: 7 * 24 * time.Hour, GraceWindow: testGrace, LogoutGrace: true}
	for _, fn := range mutate {
		fn(&cfg)
	}

	users := NewUserService(tx, m)
	users.bcryptCost = 4

	return &env{
		clock:    c,
		manager:  m,
		issuer:   issuer,
		users:    users,
		sessions: NewSessionService(tx, m, users, issuer, c, logging.Nop(), cfg),
	}
}

func (e *env) login(t *testing.T, name string) *TokenPair {
	t.Helper()
	ctx := context.Background()
	if _, err := e.users.VerifyCredentials(ctx, name, testPassword); err != nil {
		_, err := e.users.Register(ctx, name, testPassword)
		require.NoError(t, err)
	}
	pair, err := e.sessions.Login(ctx, name, testPassword, "laptop")
	require.NoError(t, err)
	return pair
}

func TestLogin_IssuesPairAndLedgerRow(t *testing.T) {
	e := newEnv(t)
	pair := e.login(t, "alice")

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, testStart.Add(15*time.Minute), pair.AccessExpiresAt)
	assert.Equal(t, testStart.Add(7*24*time.Hour), pair.RefreshExpiresAt)

	claims, err := e.sessions.Authenticate(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Name)
	assert.Equal(t, models.RoleUser, claims.Role)

	row, err := e.manager.RefreshTokens(nil).FindActiveByHash(context.Background(), pair.RefreshToken, testStart, testGrace)
	require.NoError(t, err)
	assert.Equal(t, refreshtokens.HashToken(pair.RefreshToken), row.TokenHash)
	assert.NotEqual(t, pair.RefreshToken, row.TokenHash, "raw token is never stored")
	assert.Equal(t, "laptop", row.DeviceLabel)
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newEnv(t)
	e.login(t, "alice")

	_, err := e.sessions.Login(context.Background(), "alice", "wrong password", "")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = e.sessions.Login(context.Background(), "nobody", testPassword, "")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRotate_ScenarioWithinAndPastGrace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r1 := e.login(t, "alice")

	// t=0: R1 -> R2
	r2, err := e.sessions.Rotate(ctx, RotationRequest{AccessToken: r1.AccessToken, RefreshToken: r1.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, r1.RefreshToken, r2.RefreshToken)

	// t=3s: R1 again, still in grace -> R3, distinct from R2
	e.clock.Advance(3 * time.Second)
	r3, err := e.sessions.Rotate(ctx, RotationRequest{AccessToken: r1.AccessToken, RefreshToken: r1.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, r2.RefreshToken, r3.RefreshToken)

	// t=15s: R1 is dead, R2 and R3 both still work
	e.clock.Advance(12 * time.Second)
	_, err = e.sessions.Rotate(ctx, RotationRequest{RefreshToken: r1.RefreshToken})
	require.ErrorIs(t, err, common.ErrInvalidRefreshToken)

	_, err = e.sessions.Rotate(ctx, RotationRequest{AccessToken: r2.AccessToken, RefreshToken: r2.RefreshToken})
	require.NoError(t, err)
	_, err = e.sessions.Rotate(ctx, RotationRequest{AccessToken: r3.AccessToken, RefreshToken: r3.RefreshToken})
	require.NoError(t, err)
}

func TestRotate_GraceBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		delta time.Duration
		ok    bool
	}{
		{name: "immediately", delta: 0, ok: true},
		{name: "half grace", delta: testGrace / 2, ok: true},
		{name: "exactly grace", delta: testGrace, ok: false},
		{name: "grace plus one", delta: testGrace + time.Second, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			first := e.login(t, "alice")

			_, err := e.sessions.Rotate(ctx, RotationRequest{RefreshToken: first.RefreshToken})
			require.NoError(t, err)

			e.clock.Advance(tt.delta)
			_, err = e.sessions.Rotate(ctx, RotationRequest{RefreshToken: first.RefreshToken})
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, common.ErrInvalidRefreshToken)
			}
		})
	}
}

func TestRotate_ExpiredAccessTokenIsAccepted(t *testing.T) {
	e := newEnv(t)
	pair := e.login(t, "alice")

	e.clock.Advance(time.Hour)

	_, err := e.sessions.Authenticate(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, common.ErrTokenExpired)

	next, err := e.sessions.Rotate(context.Background(), RotationRequest{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
	require.NoError(t, err)

	_, err = e.sessions.Authenticate(context.Background(), next.AccessToken)
	require.NoError(t, err)
}

func TestRotate_TokenMismatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.login(t, "alice")
	bob := e.login(t, "bob")

	_, err := e.sessions.Rotate(ctx, RotationRequest{AccessToken: bob.AccessToken, RefreshToken: alice.RefreshToken})
	require.ErrorIs(t, err, common.ErrTokenMismatch)

	_, err = e.sessions.Rotate(ctx, RotationRequest{AccessToken: "not-a-jwt", RefreshToken: alice.RefreshToken})
	require.ErrorIs(t, err, common.ErrTokenMismatch)

	// a mismatch must not consume the refresh token
	_, err = e.sessions.Rotate(ctx, RotationRequest{AccessToken: alice.AccessToken, RefreshToken: alice.RefreshToken})
	require.NoError(t, err)
}

func TestRotate_UnknownToken(t *testing.T) {
	e := newEnv(t)
	_, err := e.sessions.Rotate(context.Background(), RotationRequest{RefreshToken: "never-issued"})
	require.ErrorIs(t, err, common.ErrInvalidRefreshToken)
}

func TestRotate_ExpiredRefreshToken(t *testing.T) {
	e := newEnv(t)
	pair := e.login(t, "alice")

	e.clock.Advance(7*24*time.Hour + time.Second)
	_, err := e.sessions.Rotate(context.Background(), RotationRequest{RefreshToken: pair.RefreshToken})
	require.ErrorIs(t, err, common.ErrInvalidRefreshToken)
}

func TestRotate_DeviceLabelIsInherited(t *testing.T) {
	e := newEnv(t)
	pair := e.login(t, "alice")

	next, err := e.sessions.Rotate(context.Background(), RotationRequest{RefreshToken: pair.RefreshToken, DeviceLabel: "ignored"})
	require.NoError(t, err)

	row, err := e.manager.RefreshTokens(nil).FindActiveByHash(context.Background(), next.RefreshToken, e.clock.Now(), testGrace)
	require.NoError(t, err)
	assert.Equal(t, "laptop", row.DeviceLabel)
}

func TestRotate_ConcurrentSameTokenAllSucceed(t *testing.T) {
	e := newEnv(t)
	pair := e.login(t, "alice")

	const n = 8
	var wg sync.WaitGroup
	results := make([]*TokenPair, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.sessions.Rotate(context.Background(), RotationRequest{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.False(t, seen[results[i].RefreshToken], "each rotation mints a distinct token")
		seen[results[i].RefreshToken] = true
	}
}

func TestLogout_WithGrace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pair := e.login(t, "alice")

	require.NoError(t, e.sessions.Logout(ctx, pair.RefreshToken))
	require.NoError(t, e.sessions.Logout(ctx, pair.RefreshToken), "logout is idempotent")
	require.NoError(t, e.sessions.Logout(ctx, "unknown"), "unknown tokens are a no-op")

	e.clock.Advance(testGrace / 2)
	_, err := e.sessions.Rotate(ctx, RotationRequest{RefreshToken: pair.RefreshToken})
	require.NoError(t, err, "in-flight refresh still succeeds within grace")

	e.clock.Advance(testGrace)
	_, err = e.sessions.Rotate(ctx, RotationRequest{RefreshToken: pair.RefreshToken})
	require.ErrorIs(t, err, common.ErrInvalidRefreshToken)
}

func TestLogout_Immediate(t *testing.T) {
	e := newEnv(t, func(c *SessionConfig) { c.LogoutGrace = false })
	ctx := context.Background()
	pair := e.login(t, "alice")

	require.NoError(t, e.sessions.Logout(ctx, pair.RefreshToken))

	_, err := e.sessions.Rotate(ctx, RotationRequest{RefreshToken: pair.RefreshToken})
	require.ErrorIs(t, err, common.ErrInvalidRefreshToken)
}

func TestLogoutAllAndListSessions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p1 := e.login(t, "alice")
	e.clock.Advance(time.Minute)
	p2, err := e.sessions.Login(ctx, "alice", testPassword, "phone")
	require.NoError(t, err)
	e.login(t, "bob")

	claims, err := e.sessions.Authenticate(ctx, p1.AccessToken)
	require.NoError(t, err)

	sessions, err := e.sessions.ListSessions(ctx, claims.UserID())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "phone", sessions[0].DeviceLabel)
	assert.Equal(t, models.TokenActive, sessions[0].State)

	n, err := e.sessions.LogoutAll(ctx, claims.UserID())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, p := range []*TokenPair{p1, p2} {
		_, err := e.sessions.Rotate(ctx, RotationRequest{RefreshToken: p.RefreshToken})
		require.ErrorIs(t, err, common.ErrInvalidRefreshToken)
	}

	sessions, err = e.sessions.ListSessions(ctx, claims.UserID())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestLogoutAll_CutsRotatedTokenStillInGrace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r1 := e.login(t, "alice")
	r2, err := e.sessions.Rotate(ctx, RotationRequest{RefreshToken: r1.RefreshToken})
	require.NoError(t, err)

	claims, err := e.sessions.Authenticate(ctx, r2.AccessToken)
	require.NoError(t, err)

	e.clock.Advance(time.Second)
	_, err = e.sessions.LogoutAll(ctx, claims.UserID())
	require.NoError(t, err)

	e.clock.Advance(time.Second)
	_, err = e.sessions.Rotate(ctx, RotationRequest{RefreshToken: r1.RefreshToken})
	require.ErrorIs(t, err, common.ErrInvalidRefreshToken, "grace of the earlier rotation must not survive logout everywhere")
	_, err = e.sessions.Rotate(ctx, RotationRequest{RefreshToken: r2.RefreshToken})
	require.ErrorIs(t, err, common.ErrInvalidRefreshToken)

	sessions, err := e.sessions.ListSessions(ctx, claims.UserID())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestLogout_ImmediateCutsRotationGrace(t *testing.T) {
	e := newEnv(t, func(c *SessionConfig) { c.LogoutGrace = false })
	ctx := context.Background()

	r1 := e.login(t, "alice")
	_, err := e.sessions.Rotate(ctx, RotationRequest{RefreshToken: r1.RefreshToken})
	require.NoError(t, err)

	e.clock.Advance(time.Second)
	require.NoError(t, e.sessions.Logout(ctx, r1.RefreshToken))

	_, err = e.sessions.Rotate(ctx, RotationRequest{RefreshToken: r1.RefreshToken})
	require.ErrorIs(t, err, common.ErrInvalidRefreshToken)
}

func TestLogout_WithGraceDoesNotExtendRotationGrace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r1 := e.login(t, "alice")
	_, err := e.sessions.Rotate(ctx, RotationRequest{RefreshToken: r1.RefreshToken})
	require.NoError(t, err)

	e.clock.Advance(testGrace / 2)
	require.NoError(t, e.sessions.Logout(ctx, r1.RefreshToken))

	e.clock.Advance(testGrace/2 + time.Second)
	_, err = e.sessions.Rotate(ctx, RotationRequest{RefreshToken: r1.RefreshToken})
	require.ErrorIs(t, err, common.ErrInvalidRefreshToken, "grace counts from the first revoke")
}

func TestSweep_KeepsActiveRows(t *testing.T) {
	e := newEnv(t, func(c *SessionConfig) { c.RefreshTokenTTL = time.Hour })
	ctx := context.Background()

	old := e.login(t, "alice")
	_, err := e.sessions.Rotate(ctx, RotationRequest{RefreshToken: old.RefreshToken})
	require.NoError(t, err)

	n, err := e.sessions.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.clock.Advance(time.Hour)
	n, err = e.sessions.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestRegister_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.sessions.Register(ctx, "  ", testPassword, "")
	require.ErrorIs(t, err, common.ErrorValidation)

	_, err = e.sessions.Register(ctx, "carol", "short", "")
	require.ErrorIs(t, err, common.ErrorValidation)

	pair, err := e.sessions.Register(ctx, "carol", testPassword, "cli")
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)

	_, err = e.sessions.Register(ctx, "carol", testPassword, "")
	require.True(t, errors.Is(err, common.ErrorAlreadyExists))
}
