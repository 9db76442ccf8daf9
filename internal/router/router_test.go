package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-settlement/internal/config"
	"github.com/iliyamo/room-settlement/internal/handler"
	"github.com/iliyamo/room-settlement/internal/notify"
	"github.com/iliyamo/room-settlement/internal/service"
	"github.com/iliyamo/room-settlement/internal/testutil"
)

func newTestServer(t *testing.T, rl config.RateLimitConfig) *echo.Echo {
	t.Helper()
	store := testutil.NewMemStore()
	prov := &testutil.MockProvider{}
	notes := &testutil.RecordingNotifier{}
	payments := service.NewPaymentService(store, prov, notes, service.PaymentConfig{PublicURL: "http://app.test"})

	e := echo.New()
	e.Validator = handler.NewRequestValidator()
	New(e, Handlers{
		Auth:         handler.NewAuthHandler(config.Config{JWTSecret: "router-secret", AccessTTLMin: 5, RefreshTTLDays: 1}, store),
		Rooms:        handler.NewRoomHandler(service.NewRoomService(store, notes)),
		Participants: handler.NewParticipantHandler(service.NewParticipantService(store, notes)),
		Payments:     handler.NewPaymentHandler(payments),
		Profile:      handler.NewProfileHandler(service.NewProfileService(store), payments),
		Webhook:      handler.NewWebhookHandler(service.NewReconciler(store, prov, notes)),
		Events:       handler.NewEventsHandler(notify.NewHub(), service.NewObserverService(store)),
	}, Options{JWTSecret: "router-secret", RateLimit: rl})
	return e
}

func serve(h http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	e := newTestServer(t, config.RateLimitConfig{})

	cases := []struct {
		method, path string
		status       int
		contains     string
	}{
		{http.MethodGet, "/healthz", http.StatusOK, "ok"},
		{http.MethodGet, "/v1/rooms", http.StatusUnauthorized, "UNAUTHORIZED"},
		{http.MethodGet, "/v1/events?scope=room:x", http.StatusUnauthorized, "UNAUTHORIZED"},
		{http.MethodGet, "/v1/webhooks/xumm", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{http.MethodGet, "/nope", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		rec := serve(e, tc.method, tc.path, nil)
		if rec.Code != tc.status || !strings.Contains(rec.Body.String(), tc.contains) {
			t.Errorf("%s %s = %d %s, want %d containing %q", tc.method, tc.path, rec.Code, rec.Body.String(), tc.status, tc.contains)
		}
	}
}

func TestWebhookRateLimitedByIP(t *testing.T) {
	e := newTestServer(t, config.RateLimitConfig{
		Enabled:         true,
		Capacity:        100,
		RefillTokens:    1,
		RefillInterval:  time.Hour,
		TTL:             time.Hour,
		Prefix:          "rl",
		WebhookCapacity: 2,
	})
	for i := 0; i < 2; i++ {
		if rec := serve(e, http.MethodGet, "/v1/webhooks/xumm", nil); rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	rec := serve(e, http.MethodGet, "/v1/webhooks/xumm", nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("third request: %d, Retry-After %q", rec.Code, rec.Header().Get("Retry-After"))
	}
}

func TestWithCORS(t *testing.T) {
	e := newTestServer(t, config.RateLimitConfig{})

	h := WithCORS(e, []string{"https://app.test"})
	rec := serve(h, http.MethodOptions, "/v1/rooms", map[string]string{
		"Origin":                        "https://app.test",
		"Access-Control-Request-Method": http.MethodPost,
	})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.test" {
		t.Fatalf("allowed origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("credentials not allowed for listed origin")
	}

	rec = serve(h, http.MethodGet, "/healthz", map[string]string{"Origin": "https://evil.test"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin allowed: %q", got)
	}

	rec = serve(WithCORS(e, nil), http.MethodGet, "/healthz", map[string]string{"Origin": "https://any.test"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("wildcard origin = %q", got)
	}
}
