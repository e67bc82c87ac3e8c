package utils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kataras/iris/v12"
)

func TestMemoryCounterStoreFixedWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryCounterStore()
	store.now = func() time.Time { return now }

	for i := int64(1); i <= 5; i++ {
		count, remaining, err := store.Incr("rl:test:1.2.3.4", time.Minute)
		if err != nil {
			t.Fatalf("incr failed: %v", err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
		if remaining > time.Minute || remaining <= 0 {
			t.Fatalf("bad remaining window %v", remaining)
		}
	}

	// Advancing past the window resets the counter.
	now = now.Add(61 * time.Second)
	count, _, _ := store.Incr("rl:test:1.2.3.4", time.Minute)
	if count != 1 {
		t.Fatalf("expected fresh window to start at 1, got %d", count)
	}
}

func TestMemoryCounterStoreIsolatesKeys(t *testing.T) {
	store := NewMemoryCounterStore()

	store.Incr("rl:login:1.1.1.1", time.Minute)
	store.Incr("rl:login:1.1.1.1", time.Minute)
	count, _, _ := store.Incr("rl:api:1.1.1.1", time.Minute)
	if count != 1 {
		t.Fatalf("classes must not share counters, got %d", count)
	}
	count, _, _ = store.Incr("rl:login:2.2.2.2", time.Minute)
	if count != 1 {
		t.Fatalf("identifiers must not share counters, got %d", count)
	}
}

func TestMemoryCounterStoreSweep(t *testing.T) {
	now := time.Now()
	store := NewMemoryCounterStore()
	store.now = func() time.Time { return now }

	store.Incr("rl:test:a", time.Minute)
	store.Incr("rl:test:b", time.Hour)

	now = now.Add(2 * time.Minute)
	store.sweep()

	store.mu.Lock()
	_, aAlive := store.entries["rl:test:a"]
	_, bAlive := store.entries["rl:test:b"]
	store.mu.Unlock()

	if aAlive {
		t.Fatal("expired entry survived sweep")
	}
	if !bAlive {
		t.Fatal("live entry removed by sweep")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	store := NewMemoryCounterStore()
	class := LimitClass{Name: "test", Limit: 3, Window: time.Minute}

	app := iris.New()
	app.Get("/ping", RateLimit(store, class), func(ctx iris.Context) {
		ctx.JSON(iris.Map{"ok": true})
	})
	if err := app.Build(); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "9.9.9.9:1234"
		resp := httptest.NewRecorder()
		app.ServeHTTP(resp, req)
		return resp
	}

	for i := 0; i < 3; i++ {
		if resp := do(); resp.Code != http.StatusOK {
			t.Fatalf("request %d within budget rejected: %d", i+1, resp.Code)
		}
	}

	resp := do()
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over budget, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Fatal("429 response missing Retry-After header")
	}
}

type failingStore struct{}

func (failingStore) Incr(string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("counter backend down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	app := iris.New()
	app.Get("/ping", RateLimit(failingStore{}, LimitGeneral), func(ctx iris.Context) {
		ctx.JSON(iris.Map{"ok": true})
	})
	if err := app.Build(); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("counter failure must fail open, got %d", resp.Code)
	}
}
