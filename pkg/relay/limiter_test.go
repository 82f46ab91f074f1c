package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRateLimiterStore_Basic(t *testing.T) {
	store := NewRateLimiterStore(1, 2)

	limiter := store.GetLimiter("esp32")
	if limiter == nil {
		t.Fatal("expected limiter, got nil")
	}
	if limiter.Limit() != 1 {
		t.Errorf("expected limit 1, got %v", limiter.Limit())
	}
}

func TestRateLimiterStore_CustomLimit(t *testing.T) {
	store := NewRateLimiterStore(1, 2)

	store.SetLimiter("gh-2", 5, 10)
	limiter := store.GetLimiter("gh-2")

	if limiter.Limit() != 5 {
		t.Errorf("expected limit 5, got %v", limiter.Limit())
	}
	if limiter.Burst() != 10 {
		t.Errorf("expected burst 10, got %v", limiter.Burst())
	}
}

func TestRateLimiterStore_Concurrency(t *testing.T) {
	store := NewRateLimiterStore(10, 5)
	device := uuid.NewString()

	var wg sync.WaitGroup

	for rep := 0; rep < 100; rep++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.GetLimiter(device) == nil {
				t.Error("expected limiter, got nil")
			}
		}()
	}

	wg.Wait()

	if store.GetLimiter(device) == nil {
		t.Error("expected limiter to exist after concurrent access")
	}
}

func TestRateLimiter_Enforcement(t *testing.T) {
	store := NewRateLimiterStore(2, 2)

	device := uuid.NewString()

	if !store.Allow(device) || !store.Allow(device) {
		t.Fatal("expected first two calls to be allowed")
	}

	if store.Allow(device) {
		t.Error("expected third call to be rate limited")
	}

	// other devices have their own bucket
	if !store.Allow(uuid.NewString()) {
		t.Error("expected a fresh device to be allowed")
	}

	time.Sleep(600 * time.Millisecond)
	if !store.Allow(device) {
		t.Error("expected one token to be available after refill")
	}
}

func TestRateLimiterStore_Nil(t *testing.T) {
	var store *RateLimiterStore

	if store.GetLimiter("esp32") != nil {
		t.Error("nil store should hand out no limiter")
	}
	store.SetLimiter("esp32", 1, 1)
	for rep := 0; rep < 10; rep++ {
		if !store.Allow("esp32") {
			t.Fatal("nil store should allow everything")
		}
	}
}
