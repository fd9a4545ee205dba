// Package server wires configuration, storage, the token issuer and the
// session services together and runs the gRPC and HTTP front ends plus the
// ledger sweeper until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/keys"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/transport"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/sessionkeeper/internal/server/grpc"
)

const startupTimeout = 15 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	sessions *services.SessionService
	limiter  transport.RateLimiter
}

func NewApp(c *config.Config) (*App, error) {

	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	app := &App{config: c, logger: logger}

	tx, rm, err := app.initStorage(ctx)
	if err != nil {
		return nil, err
	}

	issuer, err := app.initIssuer(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	us := services.NewUserService(tx, rm)
	app.sessions = services.NewSessionService(tx, rm, us, issuer, nil, logger, services.SessionConfig{
		RefreshTokenTTL: c.RefreshTokenValidityDuration,
		GraceWindow:     c.GraceWindow,
		LogoutGrace:     c.LogoutGrace,
	})

	app.initLimiter(ctx)

	return app, nil
}

func (app *App) initStorage(ctx context.Context) (dbx.Transactor, repomanager.RepositoryManager, error) {
	if app.config.DatabaseDSN == config.MemoryDSN {
		app.logger.Warn(ctx, "using in-memory storage, sessions are lost on restart")
		return dbx.NewLockingTransactor(), repomanager.NewMemoryRepositoryManager(), nil
	}

	db, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}

	return dbx.NewSQLTransactor(db), rm, nil
}

func (app *App) initIssuer(ctx context.Context) (*auth.Issuer, error) {
	c := app.config
	ic := auth.IssuerConfig{
		Method:    c.SigningMethod,
		Issuer:    c.Issuer,
		Audience:  c.Audience,
		AccessTTL: c.AccessTokenValidityDuration,
	}

	switch c.SigningMethod {
	case config.SigningMethodHS256:
		ic.SecretKey = []byte(c.SecretKey)
	case config.SigningMethodEdDSA:
		key, err := keys.Load(ctx, c.SigningKeyURI, keys.S3Settings{
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
		ic.PrivateKey = key
	}

	issuer, err := auth.NewIssuer(ic)
	if err != nil {
		return nil, err
	}
	if !issuer.CanSign() {
		return nil, errors.New("signing key cannot sign")
	}
	return issuer, nil
}

// initLimiter connects the throttle. Redis being down at startup is not
// fatal; the limiter fails open per request.
func (app *App) initLimiter(ctx context.Context) {
	if app.config.RedisAddr == "" || app.config.RefreshRateLimit <= 0 {
		app.logger.Info(ctx, "rate limiting disabled")
		return
	}

	app.redis = redis.NewClient(&redis.Options{Addr: app.config.RedisAddr})
	l := ratelimit.New(app.redis, app.config.RefreshRateLimit, app.config.RefreshRateWindow)
	if err := l.Ping(ctx); err != nil {
		app.logger.Warn(ctx, "redis not reachable, throttle will fail open", "error", err)
	}
	app.limiter = l
}

// Close releases the database and Redis connections.
func (app *App) Close() {
	if app.db != nil {
		_ = app.db.Close()
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.sessions, app.limiter)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger, app.sessions, app.limiter, app.config.CORSAllowedOrigins)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "HTTP server failed", "error", err)
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled, a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.Close()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	if app.config.EndpointAddrGRPC != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	if app.config.EndpointAddrHTTP != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startHTTPServer(ctx, cancelFunc)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		services.NewSweeper(app.sessions, app.config.SweepInterval, app.logger).Run(ctx)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "App stopped")
}
