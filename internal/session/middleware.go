package session

import (
	"context"
	"net/http"

	"github.com/restitch/restitch/internal/logging"
)

type contextKey struct{}

// Middleware loads the request's session, creating one if needed, and
// stores it in the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := m.LoadOrCreate(r.Context(), w, r)
		if err != nil {
			logging.FromContext(r.Context(), nil).Error("failed to load session", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Your session is temporarily unavailable. Please try again."}` + "\n"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), data)))
	})
}

func WithSession(ctx context.Context, data *Data) context.Context {
	return context.WithValue(ctx, contextKey{}, data)
}

// GetSessionFromContext returns the session Middleware stored, or nil.
func GetSessionFromContext(ctx context.Context) *Data {
	data, _ := ctx.Value(contextKey{}).(*Data)
	return data
}
