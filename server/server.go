package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/restitch/restitch/internal/config"
	"github.com/restitch/restitch/internal/handlers"
	"github.com/restitch/restitch/internal/observability"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           observability.TraceRequests(s.Router()),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Router builds the route table. Exported so tests can drive it with httptest.
func (s *Server) Router() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)
	r.Use(h.Authenticate)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not found."}` + "\n"))
	})

	// Public
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/track/{barcode}", h.Track).Methods("GET").Name("track")
	r.HandleFunc("/rewards", h.Rewards).Methods("GET").Name("rewards")

	// Store cart, keyed by the session cookie
	store := r.PathPrefix("/store").Subrouter()
	store.Use(h.RequireSameOrigin)
	store.Use(h.SessionMiddleware)
	store.HandleFunc("/cart", h.Cart).Methods("GET").Name("store.cart")
	store.HandleFunc("/cart", h.ClearCart).Methods("DELETE").Name("store.cart.clear")
	store.HandleFunc("/cart/items", h.AddToCart).Methods("POST").Name("store.cart.add")
	store.HandleFunc("/cart/items/{productID:[0-9]+}", h.RemoveFromCart).Methods("DELETE").Name("store.cart.remove")

	// Authenticated
	api := r.NewRoute().Subrouter()
	api.Use(h.RequirePrincipal)
	api.Use(h.Idempotent)

	api.HandleFunc("/pickups", h.SchedulePickup).Methods("POST").Name("pickups.schedule")
	api.HandleFunc("/me/overview", h.CustomerOverview).Methods("GET").Name("me.overview")
	api.HandleFunc("/rewards/{id:[0-9]+}/redeem", h.RedeemReward).Methods("POST").Name("rewards.redeem")
	api.HandleFunc("/designer-applications", h.ApplyDesigner).Methods("POST").Name("designer_applications.apply")

	api.HandleFunc("/designer/orders", h.DesignerOrders).Methods("GET").Name("designer.orders")
	api.HandleFunc("/designer/orders/{id:[0-9]+}/accept", h.AcceptOrder).Methods("POST").Name("designer.orders.accept")
	api.HandleFunc("/designer/orders/{id:[0-9]+}/reject", h.RejectOrder).Methods("POST").Name("designer.orders.reject")
	api.HandleFunc("/designer/orders/{id:[0-9]+}/complete", h.CompleteOrder).Methods("POST").Name("designer.orders.complete")

	api.HandleFunc("/admin/orders", h.AdminOrders).Methods("GET").Name("admin.orders")
	api.HandleFunc("/admin/orders/{id:[0-9]+}", h.OrderDetail).Methods("GET").Name("admin.orders.detail")
	api.HandleFunc("/admin/orders/{id:[0-9]+}", h.UpdateOrder).Methods("PATCH").Name("admin.orders.update")
	api.HandleFunc("/admin/orders/{id:[0-9]+}/approve", h.ApproveOrder).Methods("POST").Name("admin.orders.approve")
	api.HandleFunc("/admin/orders/{id:[0-9]+}/fulfillment", h.AdvanceFulfillment).Methods("POST").Name("admin.orders.fulfillment")
	api.HandleFunc("/admin/orders/{id:[0-9]+}/approve-for-store", h.ApproveForStore).Methods("POST").Name("admin.orders.approve_for_store")
	api.HandleFunc("/admin/designer-applications", h.AdminApplications).Methods("GET").Name("admin.designer_applications")
	api.HandleFunc("/admin/designer-applications/{id:[0-9]+}/review", h.ReviewDesignerApplication).Methods("POST").Name("admin.designer_applications.review")
	api.HandleFunc("/admin/pickups", h.AdminPickups).Methods("GET").Name("admin.pickups")
	api.HandleFunc("/admin/pickups/{id:[0-9]+}/accept", h.AcceptPickup).Methods("POST").Name("admin.pickups.accept")
	api.HandleFunc("/admin/pickups/{id:[0-9]+}/reject", h.RejectPickup).Methods("POST").Name("admin.pickups.reject")
	api.HandleFunc("/admin/pickups/{id:[0-9]+}/picked-up", h.MarkPickedUp).Methods("POST").Name("admin.pickups.picked_up")
	api.HandleFunc("/admin/pickups/{id:[0-9]+}/complete", h.CompletePickup).Methods("POST").Name("admin.pickups.complete")

	return r
}
