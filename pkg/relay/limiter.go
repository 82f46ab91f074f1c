package relay

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterStore keeps one token bucket per device. A nil store allows
// everything.
type RateLimiterStore struct {
	limiters     map[string]*rate.Limiter
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
}

func NewRateLimiterStore(defaultRate rate.Limit, defaultBurst int) *RateLimiterStore {
	return &RateLimiterStore{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  defaultRate,
		defaultBurst: defaultBurst,
	}
}

func (s *RateLimiterStore) GetLimiter(device string) *rate.Limiter {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[device]
	if !exists {
		limiter = rate.NewLimiter(s.defaultRate, s.defaultBurst)
		s.limiters[device] = limiter
	}
	return limiter
}

func (s *RateLimiterStore) SetLimiter(device string, deviceRate rate.Limit, deviceBurst int) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiters[device] = rate.NewLimiter(deviceRate, deviceBurst)
}

func (s *RateLimiterStore) Allow(device string) bool {
	limiter := s.GetLimiter(device)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}
