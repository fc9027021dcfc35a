package handlers

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/restitch/restitch/internal/observability"
)

// SecurityHeaders sets baseline security headers. API responses carry
// per-user data, so nothing is cacheable.
func (h *Handlers) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		headers.Set("Cross-Origin-Resource-Policy", "same-origin")
		headers.Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// RequireSameOrigin blocks cross-origin writes to the cookie-backed store
// routes. Reads pass through.
func (h *Handlers) RequireSameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requestMutatesState(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if reason := h.sameOriginViolation(r); reason != "" {
			observability.MeterFromContext(ctx).Count("security.same_origin.blocked", 1,
				sentry.WithAttributes(attribute.String("reason", reason)))
			h.loggerFromContext(ctx).Warn("blocked cross-origin request",
				"reason", reason,
				"origin", r.Header.Get("Origin"),
				"referer", r.Referer(),
			)
			h.writeJSON(ctx, w, http.StatusForbidden, errorResponse{Error: "Cross-origin requests are not allowed."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sameOriginViolation returns why r fails the same-origin check, or "".
// Origin is preferred; Referer is the fallback for clients that omit it.
func (h *Handlers) sameOriginViolation(r *http.Request) string {
	allowed := []string{hostOnly(r.Host)}
	if h.config != nil {
		if base, err := url.Parse(strings.TrimSpace(h.config.BaseURL)); err == nil && base.Hostname() != "" {
			allowed = append(allowed, strings.ToLower(base.Hostname()))
		}
	}

	check := func(raw string) bool {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Hostname() == "" {
			return false
		}
		host := strings.ToLower(parsed.Hostname())
		for _, candidate := range allowed {
			if candidate != "" && candidate == host {
				return true
			}
		}
		return false
	}

	origin := strings.TrimSpace(r.Header.Get("Origin"))
	referer := strings.TrimSpace(r.Referer())
	switch {
	case origin != "":
		if !check(origin) {
			return "invalid_origin"
		}
	case referer != "":
		if !check(referer) {
			return "invalid_referer"
		}
	default:
		return "missing_origin_and_referer"
	}
	return ""
}

func requestMutatesState(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func hostOnly(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
