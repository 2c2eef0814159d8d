package obs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestLevelFromEnv(t *testing.T) {
	cases := []struct {
		raw  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := levelFromEnv(tc.raw); got != tc.want {
			t.Errorf("levelFromEnv(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestRequestIDPropagatesThroughContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	m := Middleware{}
	var got string
	router.GET("/ping", m.RequestID(), func(c *gin.Context) {
		got = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	router.ServeHTTP(w, req)

	if got != "req-42" {
		t.Errorf("context request id = %q, want req-42", got)
	}
	if w.Header().Get("X-Request-ID") != "req-42" {
		t.Errorf("response header = %q, want req-42", w.Header().Get("X-Request-ID"))
	}
}

func TestRequestIDMintedWhenAbsent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	m := Middleware{}
	router.GET("/ping", m.RequestID(), func(c *gin.Context) {
		if RequestIDFromContext(c.Request.Context()) == "" {
			t.Error("no request id minted")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("minted id missing from response header")
	}
}

func TestReadyzReportsFailingCheckByName(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := HealthHandlers{Checks: map[string]func(ctx context.Context) error{
		"mongodb": func(context.Context) error { return errors.New("no reachable servers") },
		"redis":   func(context.Context) error { return nil },
	}}
	router.GET("/readyz", h.Readyz)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "mongodb") || strings.Contains(body, "redis") {
		t.Fatalf("body = %s, want the failing check named and the healthy one absent", body)
	}
}

func TestReadyzWithoutChecksIsReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/readyz", HealthHandlers{}.Readyz)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
