package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/background"
	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/metrics"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/routes"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("rate_limit_store", cfg.RateLimit.Store),
		slog.String("user_store", cfg.Auth.UserStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.HealthCheck{}

	var db *database.DB
	if cfg.NeedsDatabase() {
		db, err = database.NewConnection(&cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		checks["database"] = db.HealthCheck
	}

	store, closeStore, err := newAttemptStore(cfg, db)
	if err != nil {
		return err
	}
	defer closeStore()

	var userRepo services.UserRepository
	if cfg.Auth.UserStore == config.StorePostgres {
		userRepo = repositories.NewUserRepository(db)
	} else {
		userRepo = repositories.NewMemoryUserRepository()
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	auditLogger := pkglogger.NewAuditLogger(logger)

	sender, err := newEmailSender(ctx, cfg, logger)
	if err != nil {
		return err
	}
	alerts := services.NewLockoutAlertService(sender, logger)
	defer alerts.Wait()

	limiter, err := services.NewRateLimitService(store, cfg.RateLimit.User, cfg.RateLimit.IP, logger,
		services.WithMetrics(m),
		services.WithAuditLogger(auditLogger),
		services.WithLockoutNotifier(alerts),
	)
	if err != nil {
		return fmt.Errorf("create rate limiter: %w", err)
	}
	checks["attempt_store"] = limiter.Ping

	var totpManager *auth.TOTPManager
	if cfg.Auth.TOTPEncryptionKey != nil {
		totpManager, err = auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, "Bastion")
		if err != nil {
			return fmt.Errorf("create totp manager: %w", err)
		}
	} else {
		logger.Warn("TOTP_ENCRYPTION_KEY not set, two-factor login disabled")
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	timingDelay := auth.NewTimingDelay(auth.DefaultTimingConfig())

	userService := services.NewUserService(userRepo, logger)
	authService := services.NewAuthService(userRepo, limiter, tokenManager, totpManager, timingDelay, cfg.Auth.AccessTokenExpiry, logger, auditLogger)

	bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = ensureAdminUser(bootstrapCtx, userService, logger)
	cancel()
	if err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	h := routes.Handlers{
		Auth:      handlers.NewAuthHandler(authService, ipConfig, logger),
		RateLimit: handlers.NewRateLimitHandler(limiter, ipConfig, cfg.Server.IsProduction(), logger),
		Health:    handlers.NewHealthHandler(checks, logger),
	}
	if totpManager != nil {
		mfaService := services.NewMFAService(userRepo, limiter, totpManager, logger, auditLogger)
		h.MFA = handlers.NewMFAHandler(mfaService, ipConfig, logger)
	}

	router := routes.NewRouter(h, tokenManager, routes.Options{
		Env:                    cfg.Server.Env,
		AllowedOrigins:         cfg.Server.AllowedOrigins,
		IPConfig:               ipConfig,
		LoginRequestsPerMinute: cfg.Server.LoginRequestsPerMinute,
	}, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupManager := background.NewCleanupManager(limiter, m, logger, cfg.RateLimit.SweepInterval, cfg.RateLimit.IdleTTL)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		cleanupManager.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		cleanupManager.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}

// newAttemptStore opens the configured attempt store and returns its closer
func newAttemptStore(cfg *config.Config, db *database.DB) (services.AttemptStore, func(), error) {
	switch cfg.RateLimit.Store {
	case config.StoreRedis:
		client, err := database.NewRedisClient(&cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return repositories.NewRedisAttemptStore(client, cfg.RateLimit.IdleTTL), func() { _ = client.Close() }, nil
	case config.StorePostgres:
		return repositories.NewPostgresAttemptStore(db), func() {}, nil
	default:
		return repositories.NewMemoryAttemptStore(), func() {}, nil
	}
}

func newEmailSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.EmailSender, error) {
	if cfg.Email.Provider != "ses" {
		return services.NewLogEmailService(logger), nil
	}

	sender, err := services.NewAWSSESEmailService(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize email service: %w", err)
	}
	return sender, nil
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userService *services.UserService, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, created, err := userService.EnsureUser(ctx, adminEmail, adminPassword, "Admin", models.RoleAdmin)
	if err != nil {
		return err
	}

	if created {
		logger.Info("admin user created successfully")
	} else {
		logger.Info("admin user already exists")
	}
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
