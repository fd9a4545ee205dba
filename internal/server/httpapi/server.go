// Package httpapi exposes the session service as a JSON HTTP API for
// browser and script clients.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/transport"
	"github.com/rs/cors"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	address        string
	sessions       transport.SessionService
	limiter        transport.RateLimiter
	logger         logging.Logger
	allowedOrigins []string
}

func NewServer(a string, l logging.Logger, sessions transport.SessionService, limiter transport.RateLimiter, allowedOrigins []string) *Server {
	return &Server{
		address:        a,
		logger:         l.With("module", "http_server"),
		sessions:       sessions,
		limiter:        limiter,
		allowedOrigins: allowedOrigins,
	}
}

// Handler returns the full middleware chain: CORS, correlation id, routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/auth/refresh-token", s.refreshToken)
	mux.HandleFunc("POST /api/auth/logout", s.logout)

	mux.Handle("GET /api/auth/me", s.requireAuth(s.me))
	mux.Handle("GET /api/auth/sessions", s.requireAuth(s.listSessions))
	mux.Handle("POST /api/auth/logout-all", s.requireAuth(s.logoutAll))

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
	})

	return c.Handler(withCorrelationID(mux))
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
