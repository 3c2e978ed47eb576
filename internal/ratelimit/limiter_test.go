package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestLimiterAllowWithinBudget(t *testing.T) {
	store := NewMemoryStore()
	limiter := NewLimiter(store, 5, time.Minute, nil)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res := limiter.Allow(ctx, "1.2.3.4")
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 5-i {
			t.Errorf("request %d: expected remaining %d, got %d", i, 5-i, res.Remaining)
		}
	}

	res := limiter.Allow(ctx, "1.2.3.4")
	if res.Allowed {
		t.Fatal("6th request should be rejected")
	}
	if res.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", res.Remaining)
	}
	if res.RetryAfter(time.Now()) < 1 {
		t.Error("expected positive retry-after")
	}
}

func TestLimiterIsolatesKeys(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), 1, time.Minute, nil)
	ctx := context.Background()

	if res := limiter.Allow(ctx, "a"); !res.Allowed {
		t.Fatal("first request for key a should pass")
	}
	if res := limiter.Allow(ctx, "a"); res.Allowed {
		t.Fatal("second request for key a should be rejected")
	}
	if res := limiter.Allow(ctx, "b"); !res.Allowed {
		t.Fatal("key b should have its own budget")
	}
}

func TestLimiterWindowReset(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	limiter := NewLimiter(store, 1, time.Minute, nil)
	ctx := context.Background()

	limiter.Allow(ctx, "a")
	if res := limiter.Allow(ctx, "a"); res.Allowed {
		t.Fatal("second request should be rejected")
	}

	now = now.Add(61 * time.Second)
	if res := limiter.Allow(ctx, "a"); !res.Allowed {
		t.Fatal("request after window elapsed should be allowed")
	}
}

func TestLimiterConcurrentIncrements(t *testing.T) {
	store := NewMemoryStore()
	limiter := NewLimiter(store, 100, time.Minute, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.Allow(ctx, "shared")
		}()
	}
	wg.Wait()

	// All 100 increments must have landed: the 101st request is over budget.
	if res := limiter.Allow(ctx, "shared"); res.Allowed {
		t.Fatal("expected budget exhausted after 100 concurrent requests")
	}
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("store down")
}

func TestLimiterFailsClosedOnStoreError(t *testing.T) {
	limiter := NewLimiter(failingStore{}, 5, time.Minute, nil)

	res := limiter.Allow(context.Background(), "1.2.3.4")
	if res.Allowed {
		t.Fatal("store fault must reject, not admit")
	}
	if res.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", res.Remaining)
	}
	if res.RetryAfter(time.Now()) < 1 {
		t.Error("expected positive retry-after on fault")
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded-for first hop", map[string]string{"X-Forwarded-For": "9.9.9.9, 10.0.0.1"}, "127.0.0.1:1234", "9.9.9.9"},
		{"real-ip fallback", map[string]string{"X-Real-Ip": "8.8.8.8"}, "127.0.0.1:1234", "8.8.8.8"},
		{"peer address fallback", nil, "127.0.0.1:1234", "127.0.0.1"},
		{"unparseable peer used verbatim", nil, "garbage", "garbage"},
		{"no signal at all", nil, "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/contact", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientKey(r); got != tt.want {
				t.Errorf("expected key %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMemoryStoreEvictsOnRollover(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	store.Incr(ctx, "a", time.Minute)
	now = now.Add(2 * time.Minute)
	count, _, err := store.Incr(ctx, "a", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected fresh window after expiry, got count %d", count)
	}
	if store.Len() != 1 {
		t.Errorf("expected a single tracked window, got %d", store.Len())
	}
}
