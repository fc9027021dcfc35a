package handlers

import (
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go/attribute"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/logging"
	"github.com/restitch/restitch/internal/observability"
)

// Authenticate resolves a bearer token into the request's Principal. Requests
// without an Authorization header continue anonymously.
func (h *Handlers) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "Authorization header must be a bearer token."})
			return
		}

		principal, err := h.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			h.loggerFromContext(ctx).Info("rejected bearer token", "error", err)
			h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "Invalid or expired token."})
			return
		}

		meter := observability.MeterFromContext(ctx)
		meter.SetAttributes(
			attribute.Int64("user.id", principal.UserID),
			attribute.String("user.role", string(principal.Role)),
		)

		ctx = observability.WithMeter(ctx, meter)
		ctx = authz.WithPrincipal(ctx, principal)
		ctx, _ = logging.With(ctx, h.logger, "user_id", principal.UserID, "role", principal.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePrincipal rejects requests that did not authenticate.
func (h *Handlers) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authz.PrincipalFromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="restitch"`)
			h.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Error: "Authentication required."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principalFromRequest(r *http.Request) authz.Principal {
	principal, _ := authz.PrincipalFromContext(r.Context())
	return principal
}
