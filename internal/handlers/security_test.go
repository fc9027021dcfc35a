package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/restitch/restitch/internal/config"
)

func TestRequireSameOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		method  string
		host    string
		origin  string
		referer string
		want    int
	}{
		{name: "read passes without headers", method: http.MethodGet, host: "restitch.example", want: http.StatusNoContent},
		{name: "matching origin", method: http.MethodPost, host: "restitch.example", origin: "https://restitch.example", want: http.StatusNoContent},
		{name: "base url origin behind proxy", method: http.MethodPost, host: "10.0.0.7:8080", origin: "https://restitch.example", want: http.StatusNoContent},
		{name: "matching referer without origin", method: http.MethodDelete, host: "restitch.example", referer: "https://restitch.example/store", want: http.StatusNoContent},
		{name: "missing origin and referer", method: http.MethodPost, host: "restitch.example", want: http.StatusForbidden},
		{name: "cross origin", method: http.MethodPost, host: "restitch.example", origin: "https://attacker.example", want: http.StatusForbidden},
		{name: "origin wins over referer", method: http.MethodPost, host: "restitch.example", origin: "https://attacker.example", referer: "https://restitch.example/", want: http.StatusForbidden},
		{name: "unparseable origin", method: http.MethodPost, host: "restitch.example", origin: "null", want: http.StatusForbidden},
	}

	h := &Handlers{config: &config.Config{BaseURL: "https://restitch.example"}}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/store/cart/items", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			rec := httptest.NewRecorder()

			h.RequireSameOrigin(next).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	h := &Handlers{}
	rec := httptest.NewRecorder()
	h.SecurityHeaders(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/track/RS000001", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("expected %s=%q, got %q", header, want, got)
		}
	}
}
