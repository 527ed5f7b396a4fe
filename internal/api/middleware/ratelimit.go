package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request for key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, reset time.Time, err error)
	Limit() int
}

// RateLimiter provides rate limiting functionality using a sliding window algorithm
type RateLimiter struct {
	requests      int           // Maximum requests per window
	window        time.Duration // Window duration
	clients       map[string]*clientWindow
	mu            sync.RWMutex
	cleanupTicker *time.Ticker
	done          chan struct{}
}

type clientWindow struct {
	timestamps []time.Time
	mu         sync.Mutex
}

func normalizeLimits(requests, windowSeconds int) (int, time.Duration) {
	if requests <= 0 {
		requests = 100 // Default
	}
	if windowSeconds <= 0 {
		windowSeconds = 60 // Default
	}
	return requests, time.Duration(windowSeconds) * time.Second
}

// NewRateLimiter creates a new in-process rate limiter
func NewRateLimiter(requests int, windowSeconds int) *RateLimiter {
	requests, window := normalizeLimits(requests, windowSeconds)

	rl := &RateLimiter{
		requests: requests,
		window:   window,
		clients:  make(map[string]*clientWindow),
		done:     make(chan struct{}),
	}

	// Start cleanup goroutine to remove old entries
	rl.cleanupTicker = time.NewTicker(time.Minute)
	go rl.cleanup()

	return rl
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.cleanupTicker.Stop()
	close(rl.done)
}

// cleanup removes expired entries periodically
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.done:
			return
		case <-rl.cleanupTicker.C:
		}

		rl.mu.Lock()
		now := time.Now()
		for key, client := range rl.clients {
			client.mu.Lock()
			if len(client.timestamps) == 0 {
				delete(rl.clients, key)
			} else if now.Sub(client.timestamps[len(client.timestamps)-1]) > rl.window*2 {
				// No recent activity, remove client
				delete(rl.clients, key)
			}
			client.mu.Unlock()
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Limit() int {
	return rl.requests
}

// Allow checks if a request for the given key should be allowed
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, int, time.Time, error) {
	rl.mu.RLock()
	client, exists := rl.clients[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// Double-check after acquiring write lock
		if client, exists = rl.clients[key]; !exists {
			client = &clientWindow{
				timestamps: make([]time.Time, 0, rl.requests),
			}
			rl.clients[key] = client
		}
		rl.mu.Unlock()
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	// Drop timestamps outside the window
	validIdx := len(client.timestamps)
	for i, ts := range client.timestamps {
		if ts.After(windowStart) {
			validIdx = i
			break
		}
	}
	client.timestamps = client.timestamps[validIdx:]

	if len(client.timestamps) >= rl.requests {
		// Calculate when the oldest request in window will expire
		return false, 0, client.timestamps[0].Add(rl.window), nil
	}

	client.timestamps = append(client.timestamps, now)
	return true, rl.requests - len(client.timestamps), now.Add(rl.window), nil
}

// RedisRateLimiter is the same sliding window kept in a Redis sorted set per
// key, so every API replica shares one budget.
type RedisRateLimiter struct {
	client   *redis.Client
	requests int
	window   time.Duration
	prefix   string
}

func NewRedisRateLimiter(client *redis.Client, prefix string, requests, windowSeconds int) *RedisRateLimiter {
	requests, window := normalizeLimits(requests, windowSeconds)
	return &RedisRateLimiter{
		client:   client,
		requests: requests,
		window:   window,
		prefix:   prefix,
	}
}

func (rl *RedisRateLimiter) Limit() int {
	return rl.requests
}

// slidingWindowScript trims the window, then records the request only when it
// fits. Returns {allowed, count, oldest score}.
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	count = count + 1
	allowed = 1
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local score = ARGV[2]
if oldest[2] then
	score = oldest[2]
end
return {allowed, count, score}
`)

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	now := time.Now()
	windowStart := now.Add(-rl.window).UnixMicro()

	res, err := slidingWindowScript.Run(ctx, rl.client, []string{rl.prefix + key},
		windowStart,
		now.UnixMicro(),
		rl.requests,
		uuid.NewString(),
		rl.window.Milliseconds(),
	).Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("evaluating rate limit window: %w", err)
	}
	if len(res) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("evaluating rate limit window: unexpected reply %v", res)
	}

	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)

	if allowed == 0 {
		reset := now.Add(rl.window)
		if s, ok := res[2].(string); ok {
			if score, err := strconv.ParseFloat(s, 64); err == nil {
				reset = time.UnixMicro(int64(score)).Add(rl.window)
			}
		}
		return false, 0, reset, nil
	}

	return true, rl.requests - int(count), now.Add(rl.window), nil
}

// KeyFunc derives the rate limit key of a request.
type KeyFunc func(r *http.Request) string

// ByIP keys requests by the connection's remote address. Forwarding headers
// are not read here; deployments behind a trusted proxy mount chi's RealIP
// first so RemoteAddr already holds the client address.
func ByIP(r *http.Request) string {
	return getClientIP(r)
}

// RateLimit returns a middleware that applies limiter to every request. A
// limiter backend error lets the request through.
func RateLimit(limiter Limiter, key KeyFunc, onLimited func(r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, resetTime, err := limiter.Allow(r.Context(), key(r))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			// Set rate limit headers
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				if onLimited != nil {
					onLimited(r)
				}
				w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(resetTime).Seconds())+1, 10))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP returns the host part of RemoteAddr.
func getClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
