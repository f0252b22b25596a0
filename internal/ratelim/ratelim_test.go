package ratelim

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimitPerIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/upload-song", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("10.0.0.1:1000"); code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, code)
		}
	}
	// Same IP, another port
	if code := do("10.0.0.1:2000"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
	if code := do("10.0.0.2:1000"); code != http.StatusNoContent {
		t.Errorf("other IP should pass, got %d", code)
	}
}

func TestCleanupDropsIdleVisitors(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.getLimiter("a")
	now = now.Add(5 * time.Minute)
	rl.getLimiter("b")
	now = now.Add(6 * time.Minute)

	rl.Cleanup()

	if _, ok := rl.visitors["a"]; ok {
		t.Error("expected idle visitor a to be dropped")
	}
	if _, ok := rl.visitors["b"]; !ok {
		t.Error("expected visitor b to be kept")
	}
}
