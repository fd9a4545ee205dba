package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/dmitrijs2005/sessionkeeper/internal/api"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/transport"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// toStatus maps domain errors to gRPC status. Internal details are logged
// by the caller and never returned.
func toStatus(err error) error {
	switch {
	case transport.IsInvalidRefresh(err):
		return status.Error(codes.Unauthenticated, common.ErrInvalidRefreshToken.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "user already exists")
	case errors.Is(err, common.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "too many requests")
	case errors.Is(err, common.ErrTransientStorage):
		return status.Error(codes.Unavailable, "temporarily unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// clientIP is the throttle key for unauthenticated calls.
func clientIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}

func (s *GRPCServer) throttle(ctx context.Context, action string) error {
	return transport.Throttle(ctx, s.limiter, s.logger, action+":"+clientIP(ctx))
}

func (s *GRPCServer) Register(ctx context.Context, req *api.RegisterRequest) (*api.TokenResponse, error) {

	s.logger.Info(ctx, "Registration request")

	if err := s.throttle(ctx, "login"); err != nil {
		return nil, toStatus(err)
	}

	pair, err := s.sessions.Register(ctx, req.Username, req.Password, transport.DeviceLabel(req.DeviceLabel))
	if err != nil {
		if !errors.Is(err, common.ErrorValidation) && !errors.Is(err, common.ErrorAlreadyExists) {
			s.logger.Error(ctx, "register failed", "error", err)
		}
		return nil, toStatus(err)
	}

	s.logger.Info(ctx, "Registered", "username", req.Username)
	return transport.TokenResponse(pair), nil
}

func (s *GRPCServer) Login(ctx context.Context, req *api.LoginRequest) (*api.TokenResponse, error) {

	if err := s.throttle(ctx, "login"); err != nil {
		return nil, toStatus(err)
	}

	pair, err := s.sessions.Login(ctx, req.Username, req.Password, transport.DeviceLabel(req.DeviceLabel))
	if err != nil {
		if !errors.Is(err, common.ErrorUnauthorized) {
			s.logger.Error(ctx, "login failed", "error", err)
		}
		return nil, toStatus(err)
	}

	return transport.TokenResponse(pair), nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *api.RefreshRequest) (*api.TokenResponse, error) {

	if err := s.throttle(ctx, "refresh"); err != nil {
		return nil, toStatus(err)
	}

	accessToken := req.AccessToken
	if accessToken == "" {
		accessToken = bearerToken(ctx)
	}

	pair, err := s.sessions.Rotate(ctx, services.RotationRequest{
		AccessToken:  accessToken,
		RefreshToken: req.RefreshToken,
		DeviceLabel:  transport.DeviceLabel(req.DeviceLabel),
	})
	if err != nil {
		if !transport.IsInvalidRefresh(err) {
			s.logger.Error(ctx, "refresh failed", "correlation_id", correlationID(ctx), "error", err)
		}
		return nil, toStatus(err)
	}

	s.logger.Debug(ctx, "refreshed", "correlation_id", correlationID(ctx))
	return transport.TokenResponse(pair), nil
}

func (s *GRPCServer) Logout(ctx context.Context, req *api.LogoutRequest) (*api.Empty, error) {
	if err := s.sessions.Logout(ctx, req.RefreshToken); err != nil {
		s.logger.Error(ctx, "logout failed", "error", err)
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *GRPCServer) LogoutAll(ctx context.Context, _ *api.LogoutAllRequest) (*api.LogoutAllResponse, error) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	n, err := s.sessions.LogoutAll(ctx, claims.UserID())
	if err != nil {
		s.logger.Error(ctx, "logout all failed", "error", err)
		return nil, toStatus(err)
	}
	return &api.LogoutAllResponse{Revoked: n}, nil
}

func (s *GRPCServer) ListSessions(ctx context.Context, _ *api.ListSessionsRequest) (*api.ListSessionsResponse, error) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	sessions, err := s.sessions.ListSessions(ctx, claims.UserID())
	if err != nil {
		s.logger.Error(ctx, "list sessions failed", "error", err)
		return nil, toStatus(err)
	}
	return &api.ListSessionsResponse{Sessions: transport.Sessions(sessions)}, nil
}

func (s *GRPCServer) WhoAmI(ctx context.Context, _ *api.WhoAmIRequest) (*api.WhoAmIResponse, error) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	return transport.WhoAmI(claims), nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {

	return &api.PingResponse{Status: "OK"}, nil

}
