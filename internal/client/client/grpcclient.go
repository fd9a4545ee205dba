package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/api"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/refresh"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      api.SessionKeeperClient
	tokens      TokenHolder
	coalescer   *refresh.Coalescer
	logger      logging.Logger
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AuthorizationHeaderName)
	if token != "" {
		md.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	return st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

// accessTokenInterceptor attaches the current access token. When the server
// reports it expired, the call waits for a shared refresh and is retried
// once with the new token.
func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	if method == api.MethodRefreshToken {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	used := s.tokens.Get().AccessToken

	err := invoker(withAccessToken(ctx, used), method, req, reply, cc, opts...)
	if !isTokenExpired(err) {
		return err
	}

	fresh, err := s.freshTokens(ctx, used)
	if err != nil {
		return err
	}

	return invoker(withAccessToken(ctx, fresh.AccessToken), method, req, reply, cc, opts...)
}

// freshTokens returns a pair newer than stale. If another call already
// replaced stale, no refresh is sent.
func (s *GRPCClient) freshTokens(ctx context.Context, stale string) (Tokens, error) {
	cur := s.tokens.Get()
	if cur.AccessToken != "" && cur.AccessToken != stale {
		return cur, nil
	}
	if cur.Empty() {
		return Tokens{}, ErrNotLoggedIn
	}

	res, err := s.coalescer.RefreshOnce(ctx, cur.AccessToken, cur.RefreshToken)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken, ExpiresAt: res.ExpiresAt}, nil
}

// doRefresh is the only place a RefreshToken RPC is sent from.
func (s *GRPCClient) doRefresh(ctx context.Context, accessToken, refreshToken string) (refresh.Result, error) {

	correlationID := uuid.NewString()
	ctx = metadata.AppendToOutgoingContext(ctx, common.CorrelationIDHeaderName, correlationID)
	log := s.logger.With("correlation_id", correlationID)

	log.Debug(ctx, "refreshing tokens", "refresh_token", logging.TokenPrefix(refreshToken))

	resp, err := s.client.RefreshToken(ctx, &api.RefreshRequest{AccessToken: accessToken, RefreshToken: refreshToken})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.Unauthenticated {
			log.Warn(ctx, "refresh token rejected")
			s.tokens.Clear()
			return refresh.Result{}, ErrSessionExpired
		}
		log.Warn(ctx, "refresh failed", "error", err)
		return refresh.Result{}, s.mapError(err)
	}

	s.tokens.Set(Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken, ExpiresAt: resp.ExpiresAt})
	log.Info(ctx, "tokens refreshed")

	return refresh.Result{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken, ExpiresAt: resp.ExpiresAt}, nil
}

func NewGRPCClient(endpointURL string, refreshTimeout time.Duration, logger logging.Logger, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, logger: logger}
	c.coalescer = refresh.New(c.doRefresh, refreshTimeout)

	err := c.InitGRPCClient(opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = api.NewSessionKeeperClient(conn)
	return nil
}

func (s *GRPCClient) setFromResponse(resp *api.TokenResponse) {
	s.tokens.Set(Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken, ExpiresAt: resp.ExpiresAt})
}

func (s *GRPCClient) Register(ctx context.Context, username, password, deviceLabel string) error {

	req := &api.RegisterRequest{Username: username, Password: password, DeviceLabel: deviceLabel}

	resp, err := s.client.Register(ctx, req)
	if err != nil {
		return s.mapError(err)
	}

	s.setFromResponse(resp)
	return nil
}

func (s *GRPCClient) Login(ctx context.Context, username, password, deviceLabel string) error {

	req := &api.LoginRequest{Username: username, Password: password, DeviceLabel: deviceLabel}

	resp, err := s.client.Login(ctx, req)
	if err != nil {
		return s.mapError(err)
	}

	s.setFromResponse(resp)
	return nil
}

// Refresh rotates the pair now, joining a refresh already in flight.
func (s *GRPCClient) Refresh(ctx context.Context) error {
	cur := s.tokens.Get()
	if cur.Empty() {
		return ErrNotLoggedIn
	}
	_, err := s.coalescer.RefreshOnce(ctx, cur.AccessToken, cur.RefreshToken)
	return err
}

// Logout revokes the current refresh token. Local tokens are dropped unless
// the server could not be reached.
func (s *GRPCClient) Logout(ctx context.Context) error {
	cur := s.tokens.Get()
	if cur.Empty() {
		return ErrNotLoggedIn
	}

	_, err := s.client.Logout(ctx, &api.LogoutRequest{RefreshToken: cur.RefreshToken})
	if err != nil {
		err = s.mapError(err)
		if !errors.Is(err, ErrUnauthorized) {
			return err
		}
	}

	s.tokens.Clear()
	return nil
}

func (s *GRPCClient) LogoutAll(ctx context.Context) (int64, error) {
	resp, err := s.client.LogoutAll(ctx, &api.LogoutAllRequest{})
	if err != nil {
		return 0, s.mapError(err)
	}

	s.tokens.Clear()
	return resp.Revoked, nil
}

func (s *GRPCClient) ListSessions(ctx context.Context) ([]api.Session, error) {
	resp, err := s.client.ListSessions(ctx, &api.ListSessionsRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Sessions, nil
}

func (s *GRPCClient) WhoAmI(ctx context.Context) (*api.WhoAmIResponse, error) {
	resp, err := s.client.WhoAmI(ctx, &api.WhoAmIRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {

	resp, err := s.client.Ping(ctx, &api.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}

	if resp.Status != "OK" {
		return ErrUnavailable
	}

	return nil
}

func (s *GRPCClient) Tokens() Tokens {
	return s.tokens.Get()
}

func (s *GRPCClient) SetTokens(t Tokens) {
	s.tokens.Set(t)
}

func (s *GRPCClient) RefreshStats() refresh.Stats {
	return s.coalescer.Stats()
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

// mapError turns gRPC statuses into package errors. Errors that did not
// come from the wire, like ErrSessionExpired, pass through.
func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.AlreadyExists:
		return ErrAlreadyExists
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidInput, st.Message())
	case codes.ResourceExhausted:
		return ErrRateLimited
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
