// Package session keeps per-browser state, currently the store cart.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/restitch/restitch/internal/cart"
)

const (
	cookieName = "restitch_session"
	ttl        = 7 * 24 * time.Hour
)

// ErrNotFound is returned by a Store when the id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Data is the state stored for one session.
type Data struct {
	ID        string     `json:"-"`
	Cart      *cart.Cart `json:"cart"`
	CreatedAt int64      `json:"created_at"`
}

// Store persists session data. Implementations must hand out copies so a
// caller's unsaved edits never leak into the stored state.
type Store interface {
	Get(ctx context.Context, id string) (*Data, error)
	Set(ctx context.Context, id string, data *Data, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Close() error
}

type Manager struct {
	store  Store
	secure bool
}

func NewManager(store Store, secure bool) *Manager {
	return &Manager{store: store, secure: secure}
}

func (m *Manager) Close() error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Close()
}

// CreateSession stores data under a new session id and sets the cookie.
func (m *Manager) CreateSession(ctx context.Context, w http.ResponseWriter, data *Data) (*Data, error) {
	sessionData := cloneData(data)
	if sessionData == nil {
		sessionData = &Data{}
	}
	sessionData.ID = uuid.NewString()
	sessionData.CreatedAt = time.Now().Unix()
	if sessionData.Cart == nil {
		sessionData.Cart = cart.New()
	}
	if err := m.store.Set(ctx, sessionData.ID, sessionData, ttl); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.setCookie(w, sessionData.ID, int(ttl.Seconds()))
	return sessionData, nil
}

// GetSession returns the session named by the request cookie. A missing
// cookie or an unknown id both report ErrNotFound.
func (m *Manager) GetSession(ctx context.Context, r *http.Request) (*Data, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNotFound
	}

	data, err := m.store.Get(ctx, cookie.Value)
	if err != nil {
		return nil, err
	}

	data.ID = cookie.Value
	if data.Cart == nil {
		data.Cart = cart.New()
	}
	return data, nil
}

// LoadOrCreate returns the request's session, starting a new one when the
// cookie is missing or stale. Store failures other than a miss are returned.
func (m *Manager) LoadOrCreate(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Data, error) {
	data, err := m.GetSession(ctx, r)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, ErrNotFound):
		return m.CreateSession(ctx, w, nil)
	default:
		return nil, err
	}
}

func (m *Manager) DestroySession(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if cookie, err := r.Cookie(cookieName); err == nil {
		if err := m.store.Delete(ctx, cookie.Value); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}
	m.setCookie(w, "", -1)
	return nil
}

// UpdateSession saves data under its existing id and refreshes the expiry.
func (m *Manager) UpdateSession(ctx context.Context, data *Data) error {
	if data == nil || data.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := m.store.Set(ctx, data.ID, cloneData(data), ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cloneData(data *Data) *Data {
	if data == nil {
		return nil
	}
	cloned := *data
	if data.Cart != nil {
		cloned.Cart = data.Cart.Clone()
	}
	return &cloned
}
