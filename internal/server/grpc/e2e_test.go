package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/api"
	"github.com/dmitrijs2005/sessionkeeper/internal/clock"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startE2E(t *testing.T) (api.SessionKeeperClient, *clock.Fake) {
	t.Helper()

	c := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Method:    auth.MethodHS256,
		SecretKey: []byte("e2e-secret"),
		Issuer:    "sessionkeeper",
		AccessTTL: time.Minute,
		Clock:     c,
	})
	require.NoError(t, err)

	tx := dbx.NewLockingTransactor()
	m := repomanager.NewMemoryRepositoryManager()
	users := services.NewUserService(tx, m)
	sessions := services.NewSessionService(tx, m, users, issuer, c, logging.Nop(), services.SessionConfig{
		RefreshTokenTTL: time.Hour,
		GraceWindow:     10 * time.Second,
		LogoutGrace:     true,
	})

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer("bufnet", logging.Nop(), sessions, nil).newServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return api.NewSessionKeeperClient(conn), c
}

func bearer(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestE2E_RegisterWhoAmIRefresh(t *testing.T) {
	client, c := startE2E(t)
	ctx := context.Background()

	tokens, err := client.Register(ctx, &api.RegisterRequest{Username: "alice", Password: "password123", DeviceLabel: "cli"})
	require.NoError(t, err)

	var header metadata.MD
	who, err := client.WhoAmI(bearer(tokens.AccessToken), &api.WhoAmIRequest{}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, "alice", who.Username)
	assert.NotEmpty(t, header.Get("x-correlation-id"))

	c.Advance(2 * time.Minute)

	_, err = client.WhoAmI(bearer(tokens.AccessToken), &api.WhoAmIRequest{})
	st, _ := status.FromError(err)
	require.Equal(t, codes.Unauthenticated, st.Code())
	require.Equal(t, "token expired", st.Message())

	next, err := client.RefreshToken(ctx, &api.RefreshRequest{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, next.RefreshToken)

	list, err := client.ListSessions(bearer(next.AccessToken), &api.ListSessionsRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, list.Sessions)
	assert.Equal(t, "cli", list.Sessions[0].DeviceLabel)

	_, err = client.Logout(ctx, &api.LogoutRequest{RefreshToken: next.RefreshToken})
	require.NoError(t, err)

	c.Advance(time.Minute)
	_, err = client.RefreshToken(ctx, &api.RefreshRequest{RefreshToken: next.RefreshToken})
	st, _ = status.FromError(err)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, "invalid refresh token", st.Message())
}
