package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/restitch/restitch/internal/cache"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	maxIdempotencyKey = 255
)

// Idempotent claims the request's Idempotency-Key for the acting user before
// running a mutation. A key seen before is answered with 409 Conflict. Claims
// for requests that fail server-side are released so the client can retry.
func (h *Handlers) Idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if key == "" || !requestMutatesState(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKey {
			h.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "Idempotency-Key is too long."})
			return
		}

		logger := h.loggerFromContext(ctx)
		principal := principalFromRequest(r)
		cacheKey := cache.IdempotencyKey(principal.UserID, r.Method+" "+r.URL.Path, key)

		claimed, err := h.cacheProvider.Claim(ctx, cacheKey, requestIDFromRequest(r), idempotencyTTL)
		if err != nil {
			logger.Error("failed to claim idempotency key", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !claimed {
			owner, _ := h.cacheProvider.Owner(ctx, cacheKey)
			logger.Info("duplicate request rejected", "idempotency_key", key, "first_request_id", owner)
			h.writeJSON(ctx, w, http.StatusConflict, errorResponse{Error: "This request has already been processed."})
			return
		}

		recorder := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		if recorder.statusCode() >= http.StatusInternalServerError {
			if err := h.cacheProvider.Release(ctx, cacheKey); err != nil {
				logger.Error("failed to release idempotency key", "error", err)
			}
		}
	})
}
