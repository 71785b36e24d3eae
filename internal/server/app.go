// Package server initializes and runs the auth server: database and
// migrations, token codec and blacklist, the auth service, background
// maintenance loops, and the metrics endpoint. Shutdown is signal-driven.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/voyagerhq/auth-service/internal/logging"
	"github.com/voyagerhq/auth-service/internal/server/breach"
	"github.com/voyagerhq/auth-service/internal/server/config"
	"github.com/voyagerhq/auth-service/internal/server/metrics"
	"github.com/voyagerhq/auth-service/internal/server/password"
	"github.com/voyagerhq/auth-service/internal/server/repositories/repomanager"
	"github.com/voyagerhq/auth-service/internal/server/services"
	"github.com/voyagerhq/auth-service/internal/server/token"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	rm          repomanager.RepositoryManager
	authService *services.AuthService
	blacklist   token.Blacklist
	registry    *prometheus.Registry
}

// AuthService exposes the wired service for embedding transports.
func (app *App) AuthService() *services.AuthService {
	return app.authService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	var handler slog.Handler
	if cfg.Env == config.EnvLocal {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	logger := logging.NewSlogLogger(slog.New(handler))

	if cfg.UsingDevSecret {
		logger.Warn(ctx, "no signing secret configured, using the insecure dev fallback")
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	var blacklist token.Blacklist
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping error: %w", err)
		}
		blacklist = token.NewRedisBlacklist(client, logger)
	} else {
		blacklist = token.NewMemoryBlacklist()
	}

	codec := token.NewCodec(
		[]byte(cfg.Auth.SigningSecret),
		cfg.Auth.Issuer,
		cfg.Auth.Audience,
		cfg.Auth.AccessTokenTTL,
		blacklist,
	)

	hasher, err := password.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hasher init error: %w", err)
	}

	registry := prometheus.NewRegistry()

	authService := services.NewAuthService(db, rm, cfg, services.AuthServiceDeps{
		Hasher:    hasher,
		Breach:    breach.NewChecker(cfg.Breach.Endpoint, cfg.Breach.Timeout, logger),
		Codec:     codec,
		Blacklist: blacklist,
		Mailer:    &logMailer{logger: logger},
		Metrics:   metrics.New(registry),
		Logger:    logger,
	})

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		rm:          rm,
		authService: authService,
		blacklist:   blacklist,
		registry:    registry,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runTokenCleanup deletes refresh tokens whose retention window has passed.
// Revoked but unexpired rows are kept: they are what reuse detection matches
// against.
func (app *App) runTokenCleanup(ctx context.Context) {
	ticker := time.NewTicker(app.config.Auth.TokenCleanupInterval)
	defer ticker.Stop()

	repo := app.rm.RefreshTokens(app.db)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx, app.config.Auth.ExpiredTokenRetention)
			if err != nil {
				app.logger.Error(ctx, "refresh token cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired refresh tokens deleted", "count", n)
			}
		}
	}
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(app.registry))

	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "metrics server error", "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting auth server", "env", app.config.Env)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	if mb, ok := app.blacklist.(*token.MemoryBlacklist); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mb.Run(ctx, app.config.Auth.BlacklistSweepInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runTokenCleanup(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startMetricsServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing db failed", "error", err)
	}
	app.logger.Info(ctx, "auth server stopped")
}

// logMailer stands in for a real delivery channel: it logs the verification
// token instead of sending it. Deployments plug an SMTP or queue-backed
// implementation into services.AuthServiceDeps.Mailer.
type logMailer struct {
	logger logging.Logger
}

func (m *logMailer) SendVerification(ctx context.Context, email, rawToken string) error {
	m.logger.Info(ctx, "verification token issued", "email", email, "token", rawToken)
	return nil
}
