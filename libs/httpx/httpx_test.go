package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mk("a"), mk("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestWithRequestIDEchoesOrGenerates(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "req-1" || rw.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("expected echoed id, got ctx=%q header=%q", seen, rw.Header().Get(RequestIDHeader))
	}

	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "req-1" {
		t.Fatalf("expected a generated id, got %q", seen)
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole("doctor")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req = req.WithContext(ContextWithClaims(req.Context(), &auth.Claims{Role: "assistant"}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}

	reqOK := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqOK = reqOK.WithContext(ContextWithClaims(reqOK.Context(), &auth.Claims{Role: "doctor"}))
	rwOK := httptest.NewRecorder()
	h.ServeHTTP(rwOK, reqOK)
	if rwOK.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rwOK.Code)
	}

	rwAnon := httptest.NewRecorder()
	h.ServeHTTP(rwAnon, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	if rwAnon.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without claims, got %d", rwAnon.Code)
	}
}

func TestRequireAuthHS256(t *testing.T) {
	secret := "test-secret"
	token, err := auth.SignHS256(auth.NewClaims("staff-1", "doctor", "", time.Now(), time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	h := RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.Subject != "staff-1" || claims.Role != "doctor" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	reqBad := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqBad.Header.Set("Authorization", "Bearer badtoken")
	rwBad := httptest.NewRecorder()
	h.ServeHTTP(rwBad, reqBad)
	if rwBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rwBad.Code)
	}
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	rl := NewMemoryRateLimiter(2, time.Minute)
	now := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if d, _ := rl.Allow(ctx, "1.2.3.4"); !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	d, _ := rl.Allow(ctx, "1.2.3.4")
	if d.Allowed || d.ResetIn != time.Minute {
		t.Fatalf("third request should be limited for the rest of the window, got %+v", d)
	}
	if d, _ := rl.Allow(ctx, "5.6.7.8"); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("other clients keep their own window, got %+v", d)
	}
	now = now.Add(time.Minute)
	if d, _ := rl.Allow(ctx, "1.2.3.4"); !d.Allowed {
		t.Fatal("window should reset")
	}
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	rl := NewMemoryRateLimiter(1, 30*time.Second)
	h := RateLimit(rl, nil, false)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "41.250.1.9, 10.0.0.2")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || rw.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("first request: %d remaining=%q", rw.Code, rw.Header().Get("X-RateLimit-Remaining"))
	}

	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusTooManyRequests || rw.Header().Get("Retry-After") != "30" {
		t.Fatalf("expected 429 with Retry-After 30, got %d %q", rw.Code, rw.Header().Get("Retry-After"))
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, context.DeadlineExceeded
}

func TestRateLimitFailOpen(t *testing.T) {
	open := RateLimit(failingLimiter{}, nil, true)(okHandler())
	rw := httptest.NewRecorder()
	open.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("fail-open should pass through, got %d", rw.Code)
	}

	closed := RateLimit(failingLimiter{}, nil, false)(okHandler())
	rw = httptest.NewRecorder()
	closed.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("fail-closed should return 503, got %d", rw.Code)
	}
}

func TestWithCORSPreflight(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://desk.example"},
		AllowedMethods: []string{"GET", "PATCH"},
	})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/appointments", nil)
	req.Header.Set("Origin", "https://desk.example")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if rw.Header().Get("Access-Control-Allow-Origin") != "https://desk.example" {
		t.Fatalf("unexpected allow origin %q", rw.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestWithCORSExposesHeadersOnSimpleRequests(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://desk.example"},
		ExposedHeaders: []string{RequestIDHeader, "Content-Disposition"},
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/export", nil)
	req.Header.Set("Origin", "https://desk.example")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if got := rw.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-Id, Content-Disposition" {
		t.Fatalf("unexpected expose headers %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("foreign origin must not be allowed")
	}
}

func TestWithBodyLimitRejectsDeclaredOversize(t *testing.T) {
	h := WithBodyLimit(8)(okHandler())
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"note":"far too long"}`)))
	if rw.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rw.Code)
	}
}

func TestWithTimeoutAnswersGatewayTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	rw := httptest.NewRecorder()
	WithTimeout(10*time.Millisecond)(slow).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusGatewayTimeout || !strings.Contains(rw.Body.String(), "request timed out") {
		t.Fatalf("expected 504 json, got %d %q", rw.Code, rw.Body.String())
	}

	rw = httptest.NewRecorder()
	WithTimeout(time.Second)(okHandler()).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("fast handler should pass, got %d", rw.Code)
	}
}

func TestRequestIDReplacesUnsafeValues(t *testing.T) {
	if got := RequestID(" desk-42 "); got != "desk-42" {
		t.Fatalf("expected trimmed id, got %q", got)
	}
	for _, raw := range []string{"", "line\nbreak", strings.Repeat("x", 129)} {
		if got := RequestID(raw); got == raw || len(got) != 36 {
			t.Fatalf("expected a generated uuid for %q, got %q", raw, got)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"Bearer    ":   "",
		"":             "",
		"BearerXabc":   "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		got, ok := bearerToken(req)
		if got != want || ok != (want != "") {
			t.Fatalf("bearerToken(%q) = %q, %v", header, got, ok)
		}
	}
}

func TestRequireAuthChallenges(t *testing.T) {
	rw := httptest.NewRecorder()
	RequireAuth("s")(okHandler()).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusUnauthorized || rw.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected a bearer challenge, got %d %v", rw.Code, rw.Header())
	}
	if !strings.Contains(rw.Body.String(), `"error"`) {
		t.Fatalf("expected a json error body, got %q", rw.Body.String())
	}
}
