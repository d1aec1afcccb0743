package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/campuskit/authsec"
)

func newTestEngine(t *testing.T) (*authsec.Engine, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := authsec.DefaultConfig()
	cfg.Token.AccessKey = []byte("test-access-secret-000000000001")
	cfg.Token.RefreshKey = []byte("test-refresh-secret-00000000001")
	cfg.RateLimit.Actions[authsec.ActionLogin] = authsec.ActionPolicy{
		MaxAttempts: 2,
		Window:      15 * time.Minute,
	}

	engine, err := authsec.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr
}

func doRequest(handler http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "198.51.100.7:52011"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitHeaders(t *testing.T) {
	engine, _ := newTestEngine(t)

	handler := RateLimit(engine, authsec.ActionLogin, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := doRequest(handler)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset missing")
	}
}

func TestRateLimitRejection(t *testing.T) {
	engine, _ := newTestEngine(t)

	called := 0
	handler := RateLimit(engine, authsec.ActionLogin, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))

	doRequest(handler)
	doRequest(handler)
	rec := doRequest(handler)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if called != 2 {
		t.Errorf("handler called %d times, want 2", called)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}

	var body struct {
		Code       string `json:"code"`
		RetryAfter int64  `json:"retryAfter"`
		ResetAt    int64  `json:"resetAt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q", body.Code)
	}
	if body.RetryAfter < 1 || body.ResetAt == 0 {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimitFailOpen(t *testing.T) {
	engine, mr := newTestEngine(t)
	mr.Close()

	handler := RateLimit(engine, authsec.ActionLogin, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := doRequest(handler)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 under fail-open", rec.Code)
	}
}

func TestRateLimitUnknownAction(t *testing.T) {
	engine, _ := newTestEngine(t)

	handler := RateLimit(engine, "not-configured", nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := doRequest(handler)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 for unconfigured action", rec.Code)
	}
}

func TestCustomIdentifier(t *testing.T) {
	engine, _ := newTestEngine(t)

	byUser := func(r *http.Request) string { return r.Header.Get("X-User") }
	handler := RateLimit(engine, authsec.ActionLogin, byUser, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	send("alice")
	send("alice")
	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Errorf("alice's third request = %d, want 429", code)
	}
	if code := send("bob"); code != http.StatusOK {
		t.Errorf("bob blocked by alice's budget: %d", code)
	}
}
