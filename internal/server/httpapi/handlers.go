package httpapi

import (
	"errors"
	"net"
	"net/http"

	"github.com/dmitrijs2005/sessionkeeper/internal/api"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/transport"
)

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// deviceLabel falls back to the User-Agent when the client sent none.
func deviceLabel(r *http.Request, label string) string {
	if label = transport.DeviceLabel(label); label != "" {
		return label
	}
	return transport.DeviceLabel(r.UserAgent())
}

func (s *Server) throttle(w http.ResponseWriter, r *http.Request, action string) bool {
	if err := transport.Throttle(r.Context(), s.limiter, s.logger, action+":"+clientIP(r)); err != nil {
		writeDomainError(w, err)
		return false
	}
	return true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.PingResponse{Status: "OK"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.throttle(w, r, "login") {
		return
	}

	pair, err := s.sessions.Register(r.Context(), req.Username, req.Password, deviceLabel(r, req.DeviceLabel))
	if err != nil {
		if !errors.Is(err, common.ErrorValidation) && !errors.Is(err, common.ErrorAlreadyExists) {
			s.logger.Error(r.Context(), "register failed", "error", err)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, transport.TokenResponse(pair))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.throttle(w, r, "login") {
		return
	}

	pair, err := s.sessions.Login(r.Context(), req.Username, req.Password, deviceLabel(r, req.DeviceLabel))
	if err != nil {
		if !errors.Is(err, common.ErrorUnauthorized) {
			s.logger.Error(r.Context(), "login failed", "error", err)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.TokenResponse(pair))
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "refreshToken is required")
		return
	}
	if !s.throttle(w, r, "refresh") {
		return
	}

	accessToken := req.AccessToken
	if accessToken == "" {
		accessToken = bearerToken(r)
	}

	pair, err := s.sessions.Rotate(r.Context(), services.RotationRequest{
		AccessToken:  accessToken,
		RefreshToken: req.RefreshToken,
		DeviceLabel:  deviceLabel(r, req.DeviceLabel),
	})
	if err != nil {
		if !transport.IsInvalidRefresh(err) {
			s.logger.Error(r.Context(), "refresh failed", "correlation_id", correlationID(r.Context()), "error", err)
		}
		writeDomainError(w, err)
		return
	}

	s.logger.Debug(r.Context(), "refreshed", "correlation_id", correlationID(r.Context()))
	writeJSON(w, http.StatusOK, transport.TokenResponse(pair))
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req api.LogoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		s.logger.Error(r.Context(), "logout failed", "error", err)
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, transport.WhoAmI(claimsFromContext(r.Context())))
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	sessions, err := s.sessions.ListSessions(r.Context(), claims.UserID())
	if err != nil {
		s.logger.Error(r.Context(), "list sessions failed", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ListSessionsResponse{Sessions: transport.Sessions(sessions)})
}

func (s *Server) logoutAll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	n, err := s.sessions.LogoutAll(r.Context(), claims.UserID())
	if err != nil {
		s.logger.Error(r.Context(), "logout all failed", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.LogoutAllResponse{Revoked: n})
}
