package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	sentryslog "github.com/getsentry/sentry-go/slog"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/cache"
	"github.com/restitch/restitch/internal/catalog"
	"github.com/restitch/restitch/internal/config"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/email"
	"github.com/restitch/restitch/internal/handlers"
	"github.com/restitch/restitch/internal/logging"
	"github.com/restitch/restitch/internal/observability"
	"github.com/restitch/restitch/internal/services"
	"github.com/restitch/restitch/internal/session"
)

type App struct {
	Config         *config.Config
	Logger         *slog.Logger
	Store          db.Store
	CacheProvider  cache.Provider
	SessionManager *session.Manager
	Pickups        *services.PickupService
	Orders         *services.OrderService
	Handlers       *handlers.Handlers

	logFile     io.Closer
	sentryReady bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryReady, err := observability.InitSentry(observability.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, err
	}

	logger, logFile, err := newLogger(cfg, sentryReady)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, logFile: logFile, sentryReady: sentryReady}

	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	cfg := a.Config
	logger := a.Logger

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	store, err := newStore(startupCtx, cfg, logger)
	if err != nil {
		return err
	}
	a.Store = store

	cacheProvider, err := cache.NewProvider(startupCtx, cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache provider: %w", err)
	}
	a.CacheProvider = cacheProvider

	sessionStore, err := session.NewStore(startupCtx, session.Config{
		Provider:              cfg.SessionStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	a.SessionManager = session.NewManager(sessionStore, cfg.SecureCookies())

	tokens, err := authz.NewTokenIssuer(cfg.AuthTokenSecret, cfg.AuthTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	rewards, err := catalog.Load(cfg.RewardsFile)
	if err != nil {
		return fmt.Errorf("failed to load rewards catalog: %w", err)
	}

	notifier, err := newNotifier(startupCtx, cfg, logger)
	if err != nil {
		return err
	}

	workflowConfig := services.Config{
		NotificationTimeout:      cfg.NotificationTimeout,
		ResaleFallbackPriceCents: cfg.ResaleFallbackPriceCents,
	}
	a.Pickups = services.NewPickupService(store, notifier, logger.With("component", "pickup_service"), workflowConfig)
	a.Orders = services.NewOrderService(store, notifier, logger.With("component", "order_service"), workflowConfig)
	rewardService := services.NewRewardService(store, rewards, logger.With("component", "reward_service"))
	applications := services.NewApplicationService(store, logger.With("component", "application_service"))
	dashboard := services.NewDashboardService(store, logger.With("component", "dashboard_service"))

	h, err := handlers.New(handlers.Dependencies{
		Config:         cfg,
		Store:          store,
		CacheProvider:  cacheProvider,
		SessionManager: a.SessionManager,
		Tokens:         tokens,
		Pickups:        a.Pickups,
		Orders:         a.Orders,
		Rewards:        rewardService,
		Applications:   applications,
		Dashboard:      dashboard,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}
	a.Handlers = h

	return nil
}

// Close waits for queued notifications and releases every resource. It is
// safe on a partially initialized App.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Pickups != nil {
		a.Pickups.Drain()
	}
	if a.Orders != nil {
		a.Orders.Drain()
	}
	if a.SessionManager != nil {
		closeSessionManager(a.Logger, a.SessionManager)
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.sentryReady {
		observability.FlushSentry()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (db.Store, error) {
	if cfg.DatabaseProvider == "memory" {
		logger.Warn("using in-memory database; data is lost on restart")
		return db.NewMemoryStore(), nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, logger.With("component", "db"))
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseAutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database schema applied")
	}

	store, err := db.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// newNotifier builds the email notifier. A provider that rejects its API key
// at startup is logged and kept; sends will keep failing until the key is fixed.
func newNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.Notifier, error) {
	provider, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFrom,
		Domain:   cfg.EmailDomain,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}
	if provider == nil {
		logger.Info("email notifications disabled")
		return nil, nil
	}
	return notifierFor(ctx, provider, cfg, logger)
}

func notifierFor(ctx context.Context, provider email.Provider, cfg *config.Config, logger *slog.Logger) (services.Notifier, error) {
	if err := provider.ValidateAPIKey(ctx); err != nil {
		logger.Warn("email provider rejected its API key", "provider", cfg.EmailProvider, "error", err)
	}

	notifier, err := services.NewEmailNotifier(provider, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize email notifier: %w", err)
	}
	logger.Info("email notifications enabled", "provider", cfg.EmailProvider)
	return notifier, nil
}

// newLogger writes to stdout and, when configured, to a JSON log file and to
// Sentry (errors become events, warnings and above become logs).
func newLogger(cfg *config.Config, sentryReady bool) (*slog.Logger, io.Closer, error) {
	handlers := []slog.Handler{logging.NewHandler(os.Stdout, cfg.LogFormat, cfg.LogLevel)}

	if sentryReady {
		handlers = append(handlers, sentryslog.Option{
			EventLevel: []slog.Level{slog.LevelError},
			LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
		}.NewSentryHandler(context.Background()))
	}

	var file *os.File
	if cfg.LogFile != "" {
		var err error
		file, err = os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		handlers = append(handlers, logging.NewHandler(file, logging.FormatJSON, cfg.LogLevel))
	}

	logger := slog.New(logging.NewFanout(handlers...))
	if file == nil {
		return logger, nil, nil
	}
	return logger, file, nil
}

func closeSessionManager(logger *slog.Logger, manager *session.Manager) {
	if manager == nil {
		return
	}
	if err := manager.Close(); err != nil && logger != nil {
		logger.Warn("failed to close session manager", "error", err)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
