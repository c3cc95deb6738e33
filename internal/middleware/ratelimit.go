package middleware

import (
	"net/http"
	"sync"
	"time"
)

const (
	rateLimitWindow  = time.Minute
	rateLimitMaxIP   = 200
	rateLimitMaxUser = 100
)

type rateLimiter struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{times: make(map[string][]time.Time), max: max, window: window}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-r.window)
	slice := r.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= r.max {
		r.times[key] = slice
		return false
	}
	r.times[key] = append(slice, now)
	return true
}

// RateLimit ограничивает запросы по IP и по user_id (если Identity уже отработал). 429 при превышении.
func RateLimit(maxPerIP, maxPerUser int, window time.Duration) func(http.Handler) http.Handler {
	byIP := newRateLimiter(maxPerIP, window)
	byUser := newRateLimiter(maxPerUser, window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !byIP.allow(clientIP(r)) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			if userID := GetUserID(r.Context()); userID != "" {
				if !byUser.allow("u:" + userID) {
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitAPI: RateLimit с лимитами по умолчанию для /api/*. Счётчики общие для всех
// маршрутов, к которым применён возвращённый middleware.
func RateLimitAPI() func(http.Handler) http.Handler {
	return RateLimit(rateLimitMaxIP, rateLimitMaxUser, rateLimitWindow)
}
