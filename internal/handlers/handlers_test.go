package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/cache"
	"github.com/restitch/restitch/internal/catalog"
	"github.com/restitch/restitch/internal/config"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/models"
	"github.com/restitch/restitch/internal/services"
	"github.com/restitch/restitch/internal/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	h      *Handlers
	store  *db.MemoryStore
	tokens *authz.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := db.NewMemoryStore()
	cacheProvider, err := cache.NewMemoryProvider(64)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	tokens, err := authz.NewTokenIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to create token issuer: %v", err)
	}
	rewards, err := catalog.Load("")
	if err != nil {
		t.Fatalf("failed to load rewards: %v", err)
	}

	pickups := services.NewPickupService(store, nil, logger, services.Config{})
	orders := services.NewOrderService(store, nil, logger, services.Config{})
	t.Cleanup(func() {
		pickups.Drain()
		orders.Drain()
	})

	h, err := New(Dependencies{
		Config:         &config.Config{BaseURL: "https://restitch.example"},
		Store:          store,
		CacheProvider:  cacheProvider,
		SessionManager: session.NewManager(session.NewMemoryStore(), false),
		Tokens:         tokens,
		Pickups:        pickups,
		Orders:         orders,
		Rewards:        services.NewRewardService(store, rewards, logger),
		Applications:   services.NewApplicationService(store, logger),
		Dashboard:      services.NewDashboardService(store, logger),
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("failed to create handlers: %v", err)
	}
	return &testEnv{h: h, store: store, tokens: tokens}
}

func (e *testEnv) addUser(t *testing.T, role models.Role) authz.Principal {
	t.Helper()

	user := &models.User{Email: fmt.Sprintf("%s@example.com", role), Name: "Meera", Role: role}
	err := e.store.InTx(t.Context(), func(ctx context.Context, tx db.Tx) error {
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return authz.Principal{UserID: user.ID, Role: role}
}

func (e *testEnv) addProduct(t *testing.T, slug string, priceCents, stock int) *models.Product {
	t.Helper()

	product := &models.Product{Title: slug, Slug: slug, PriceCents: priceCents, Stock: stock}
	err := e.store.InTx(t.Context(), func(ctx context.Context, tx db.Tx) error {
		return tx.CreateProduct(ctx, product)
	})
	if err != nil {
		t.Fatalf("failed to create product: %v", err)
	}
	return product
}

func (e *testEnv) bearer(t *testing.T, p authz.Principal) string {
	t.Helper()

	token, err := e.tokens.Issue(p)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return "Bearer " + token
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestStatusForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "bad request", err: fmt.Errorf("%w: invalid id", errBadRequest), want: http.StatusBadRequest},
		{name: "forbidden inside precondition", err: fmt.Errorf("%w: %w", services.ErrPreconditionFailed, authz.ErrForbidden), want: http.StatusForbidden},
		{name: "not found", err: fmt.Errorf("%w: order 4", services.ErrNotFound), want: http.StatusNotFound},
		{name: "precondition", err: services.ErrPreconditionFailed, want: http.StatusConflict},
		{name: "insufficient points", err: fmt.Errorf("%w: %w", services.ErrPreconditionFailed, services.ErrInsufficientPoints), want: http.StatusConflict},
		{name: "validation", err: services.ErrValidationFailed, want: http.StatusUnprocessableEntity},
		{name: "persistence", err: services.ErrPersistence, want: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := statusForError(tt.err); got != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, got)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	admin := env.addUser(t, models.RoleAdmin)

	tests := []struct {
		name          string
		header        string
		wantStatus    int
		wantPrincipal authz.Principal
	}{
		{name: "anonymous", header: "", wantStatus: http.StatusNoContent},
		{name: "valid token", header: env.bearer(t, admin), wantStatus: http.StatusNoContent, wantPrincipal: admin},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-jwt", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen authz.Principal
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = principalFromRequest(r)
				w.WriteHeader(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/me/overview", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.h.Authenticate(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if seen != tt.wantPrincipal {
				t.Fatalf("expected principal %+v, got %+v", tt.wantPrincipal, seen)
			}
		})
	}
}

func TestRequirePrincipal_RejectsAnonymous(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	env.h.RequirePrincipal(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me/overview", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
}

func TestIdempotent_RejectsReplayedKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customer := env.addUser(t, models.RoleCustomer)

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})
	handler := env.h.Idempotent(next)

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/pickups", nil)
		req.Header.Set(idempotencyHeader, key)
		req = req.WithContext(authz.WithPrincipal(req.Context(), customer))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("abc"); code != http.StatusCreated {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if code := send("abc"); code != http.StatusConflict {
		t.Fatalf("expected replay to conflict, got %d", code)
	}
	if code := send("def"); code != http.StatusCreated {
		t.Fatalf("expected new key to pass, got %d", code)
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", calls)
	}
}

func TestIdempotent_ReleasesKeyOnServerError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customer := env.addUser(t, models.RoleCustomer)

	fail := true
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := env.h.Idempotent(next)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/rewards/1/redeem", nil)
		req.Header.Set(idempotencyHeader, "retry-me")
		req = req.WithContext(authz.WithPrincipal(req.Context(), customer))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusInternalServerError {
		t.Fatalf("expected failure, got %d", code)
	}
	fail = false
	if code := send(); code != http.StatusOK {
		t.Fatalf("expected retry to run, got %d", code)
	}
}

func TestSchedulePickup_MapsValidationErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customer := env.addUser(t, models.RoleCustomer)

	body := jsonBody(t, map[string]any{
		"address_id":     1,
		"preferred_slot": time.Now().Add(48 * time.Hour),
		"service_type":   "redesign",
		"items":          []string{"denim jacket"},
	})
	req := httptest.NewRequest(http.MethodPost, "/pickups", body)
	req = req.WithContext(authz.WithPrincipal(req.Context(), customer))
	rec := httptest.NewRecorder()
	env.h.SchedulePickup(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d: %s", http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error == "" {
		t.Fatal("expected error message")
	}
}

func TestSchedulePickup_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customer := env.addUser(t, models.RoleCustomer)

	req := httptest.NewRequest(http.MethodPost, "/pickups", strings.NewReader(`{"service_type":"donate","colour":"red"}`))
	req = req.WithContext(authz.WithPrincipal(req.Context(), customer))
	rec := httptest.NewRecorder()
	env.h.SchedulePickup(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestAcceptPickup_ForbiddenForCustomer(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customer := env.addUser(t, models.RoleCustomer)

	req := httptest.NewRequest(http.MethodPost, "/admin/pickups/1/accept", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	req = req.WithContext(authz.WithPrincipal(req.Context(), customer))
	rec := httptest.NewRecorder()
	env.h.AcceptPickup(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d: %s", http.StatusForbidden, rec.Code, rec.Body.String())
	}
}

func TestCart_AddAndRemove(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jacket := env.addProduct(t, "upcycled-jacket", 45000, 2)

	router := mux.NewRouter()
	router.Use(env.h.SessionMiddleware)
	router.HandleFunc("/store/cart", env.h.Cart).Methods(http.MethodGet)
	router.HandleFunc("/store/cart/items", env.h.AddToCart).Methods(http.MethodPost)
	router.HandleFunc("/store/cart/items/{productID}", env.h.RemoveFromCart).Methods(http.MethodDelete)

	var cookie *http.Cookie
	do := func(method, path string, body io.Reader) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, body)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if cookies := rec.Result().Cookies(); len(cookies) > 0 {
			cookie = cookies[0]
		}
		return rec
	}

	rec := do(http.MethodPost, "/store/cart/items", jsonBody(t, addToCartRequest{ProductID: jacket.ID, Quantity: 2}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected add to succeed, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(http.MethodPost, "/store/cart/items", jsonBody(t, addToCartRequest{ProductID: jacket.ID, Quantity: 1}))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected stock conflict, got %d", rec.Code)
	}

	rec = do(http.MethodPost, "/store/cart/items", jsonBody(t, addToCartRequest{ProductID: 999, Quantity: 1}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected missing product, got %d", rec.Code)
	}

	rec = do(http.MethodGet, "/store/cart", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected cart, got %d", rec.Code)
	}
	summary := decodeBody[struct {
		Lines      []json.RawMessage `json:"lines"`
		TotalCents int               `json:"total_cents"`
	}](t, rec)
	if len(summary.Lines) != 1 || summary.TotalCents != 90000 {
		t.Fatalf("expected one line totalling 90000, got %+v", summary)
	}

	rec = do(http.MethodDelete, fmt.Sprintf("/store/cart/items/%d", jacket.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected remove to succeed, got %d", rec.Code)
	}
	rec = do(http.MethodDelete, fmt.Sprintf("/store/cart/items/%d", jacket.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected second remove to miss, got %d", rec.Code)
	}
}

func TestRedeemReward_InsufficientPoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customer := env.addUser(t, models.RoleCustomer)
	rewards := env.h.rewards.Rewards()
	if len(rewards) == 0 {
		t.Fatal("expected built-in rewards")
	}

	id := fmt.Sprint(rewards[0].ID)
	req := httptest.NewRequest(http.MethodPost, "/rewards/"+id+"/redeem", nil)
	req = mux.SetURLVars(req, map[string]string{"id": id})
	req = req.WithContext(authz.WithPrincipal(req.Context(), customer))
	rec := httptest.NewRecorder()
	env.h.RedeemReward(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
	if resp := decodeBody[errorResponse](t, rec); resp.Error != "Insufficient points for this reward." {
		t.Fatalf("unexpected message %q", resp.Error)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestAdminOrders_HugePageIsEmpty(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	admin := env.addUser(t, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/admin/orders?page=461168601842738793", nil)
	req = req.WithContext(authz.WithPrincipal(req.Context(), admin))
	rec := httptest.NewRecorder()
	env.h.AdminOrders(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	page := decodeBody[map[string]any](t, rec)
	if items, ok := page["items"].([]any); !ok || len(items) != 0 {
		t.Fatalf("expected an empty page, got %v", page["items"])
	}
}

func TestClearCart_DropsSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jacket := env.addProduct(t, "patchwork-jacket", 30000, 3)

	router := mux.NewRouter()
	router.Use(env.h.SessionMiddleware)
	router.HandleFunc("/store/cart", env.h.Cart).Methods(http.MethodGet)
	router.HandleFunc("/store/cart", env.h.ClearCart).Methods(http.MethodDelete)
	router.HandleFunc("/store/cart/items", env.h.AddToCart).Methods(http.MethodPost)

	req := httptest.NewRequest(http.MethodPost, "/store/cart/items", jsonBody(t, addToCartRequest{ProductID: jacket.ID, Quantity: 1}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected add to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie")
	}
	sessionCookie := cookies[0]

	req = httptest.NewRequest(http.MethodDelete, "/store/cart", nil)
	req.AddCookie(sessionCookie)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected clear to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
	var expired bool
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Value == "" && cookie.MaxAge < 0 {
			expired = true
		}
	}
	if !expired {
		t.Fatalf("expected an expired session cookie, got %v", rec.Result().Cookies())
	}

	req = httptest.NewRequest(http.MethodGet, "/store/cart", nil)
	req.AddCookie(sessionCookie)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	summary := decodeBody[struct {
		Lines      []json.RawMessage `json:"lines"`
		TotalCents int               `json:"total_cents"`
	}](t, rec)
	if len(summary.Lines) != 0 || summary.TotalCents != 0 {
		t.Fatalf("expected an empty cart after clearing, got %+v", summary)
	}
}

func TestReviewDesignerApplication_RejectsUnknownAction(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	admin := env.addUser(t, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/admin/designer-applications/1/review", strings.NewReader(`{"action":"maybe"}`))
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	req = req.WithContext(authz.WithPrincipal(req.Context(), admin))
	rec := httptest.NewRecorder()
	env.h.ReviewDesignerApplication(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d: %s", http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	}
}
