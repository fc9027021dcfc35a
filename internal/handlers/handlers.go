// Package handlers exposes the ReStitch workflow over a JSON HTTP API.
package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/cache"
	"github.com/restitch/restitch/internal/config"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/logging"
	"github.com/restitch/restitch/internal/services"
	"github.com/restitch/restitch/internal/session"
)

// Handlers provides the HTTP request handlers for ReStitch.
type Handlers struct {
	config         *config.Config
	store          db.Store
	cacheProvider  cache.Provider
	sessionManager *session.Manager
	tokens         *authz.TokenIssuer
	pickups        *services.PickupService
	orders         *services.OrderService
	rewards        *services.RewardService
	applications   *services.ApplicationService
	dashboard      *services.DashboardService
	logger         *slog.Logger
}

type Dependencies struct {
	Config         *config.Config
	Store          db.Store
	CacheProvider  cache.Provider
	SessionManager *session.Manager
	Tokens         *authz.TokenIssuer
	Pickups        *services.PickupService
	Orders         *services.OrderService
	Rewards        *services.RewardService
	Applications   *services.ApplicationService
	Dashboard      *services.DashboardService
	Logger         *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("handlers dependencies: store is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.SessionManager == nil {
		return nil, fmt.Errorf("handlers dependencies: sessionManager is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("handlers dependencies: tokens is required")
	}
	if deps.Pickups == nil {
		return nil, fmt.Errorf("handlers dependencies: pickups is required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("handlers dependencies: orders is required")
	}
	if deps.Rewards == nil {
		return nil, fmt.Errorf("handlers dependencies: rewards is required")
	}
	if deps.Applications == nil {
		return nil, fmt.Errorf("handlers dependencies: applications is required")
	}
	if deps.Dashboard == nil {
		return nil, fmt.Errorf("handlers dependencies: dashboard is required")
	}

	return &Handlers{
		config:         deps.Config,
		store:          deps.Store,
		cacheProvider:  deps.CacheProvider,
		sessionManager: deps.SessionManager,
		tokens:         deps.Tokens,
		pickups:        deps.Pickups,
		orders:         deps.Orders,
		rewards:        deps.Rewards,
		applications:   deps.Applications,
		dashboard:      deps.Dashboard,
		logger:         logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.store.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		h.writeJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"status": "healthy"})
}

// SessionMiddleware adds the browsing session to the request context.
func (h *Handlers) SessionMiddleware(next http.Handler) http.Handler {
	return h.sessionManager.Middleware(next)
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}
