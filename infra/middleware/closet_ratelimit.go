package middleware

import (
	"fmt"
	"sync"
	"time"

	"closet_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RateLimiter applies fixed-window limits per user (falling back to IP
// for unauthenticated requests), with stricter limits on expensive
// endpoints. A sync trigger burns mailbox and LLM quota, so it gets a
// much tighter window than plain reads.
type RateLimiter struct {
	mu       sync.Mutex
	general  map[string]*requestWindow
	limit    int
	window   time.Duration
	enduser  map[string]map[string]*requestWindow
	patterns []endpointLimit
}

type requestWindow struct {
	count     int
	expiresAt time.Time
}

type endpointLimit struct {
	method  string
	pattern string
	limit   int
	window  time.Duration
}

// RateLimitConfig holds the general per-key limit.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 300, Window: time.Minute}
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		general: make(map[string]*requestWindow),
		limit:   cfg.Limit,
		window:  cfg.Window,
		enduser: make(map[string]map[string]*requestWindow),
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		for range ticker.C {
			rl.cleanup()
		}
	}()

	return rl
}

// RegisterEndpoint adds a stricter limit for one method+path prefix.
func (rl *RateLimiter) RegisterEndpoint(method, pattern string, limit int, window time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.patterns = append(rl.patterns, endpointLimit{method: method, pattern: pattern, limit: limit, window: window})
	rl.enduser[method+" "+pattern] = make(map[string]*requestWindow)
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, w := range rl.general {
		if now.After(w.expiresAt) {
			delete(rl.general, key)
		}
	}
	for _, windows := range rl.enduser {
		for key, w := range windows {
			if now.After(w.expiresAt) {
				delete(windows, key)
			}
		}
	}
}

// Handler returns the rate limiting middleware.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		key := c.IP()
		if userID, ok := c.Locals("user_id").(uuid.UUID); ok {
			key = userID.String()
		}
		now := time.Now()

		rl.mu.Lock()
		for _, el := range rl.patterns {
			if c.Method() != el.method || !hasPrefix(c.Path(), el.pattern) {
				continue
			}
			windows := rl.enduser[el.method+" "+el.pattern]
			limited, retryAfter, remaining := bump(windows, key, el.limit, el.window, now)
			if limited {
				rl.mu.Unlock()
				setRateLimitHeaders(c, el.limit, 0, retryAfter)
				return tooManyRequests(c, retryAfter)
			}
			setRateLimitHeaders(c, el.limit, remaining, retryAfter)
		}

		limited, retryAfter, _ := bump(rl.general, key, rl.limit, rl.window, now)
		rl.mu.Unlock()

		if limited {
			return tooManyRequests(c, retryAfter)
		}
		return c.Next()
	}
}

// bump counts one request against a window, creating it as needed.
func bump(windows map[string]*requestWindow, key string, limit int, window time.Duration, now time.Time) (limited bool, retryAfter int, remaining int) {
	w, ok := windows[key]
	if !ok || now.After(w.expiresAt) {
		windows[key] = &requestWindow{count: 1, expiresAt: now.Add(window)}
		return false, int(window.Seconds()), limit - 1
	}

	retryAfter = int(w.expiresAt.Sub(now).Seconds())
	if w.count >= limit {
		return true, retryAfter, 0
	}
	w.count++
	return false, retryAfter, limit - w.count
}

func setRateLimitHeaders(c *fiber.Ctx, limit, remaining, retryAfter int) {
	c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	c.Set("X-RateLimit-Reset", fmt.Sprintf("%d", retryAfter))
}

func tooManyRequests(c *fiber.Ctx, retryAfter int) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       "rate limit exceeded",
		"code":        apperr.CodeRateLimited,
		"retry_after": retryAfter,
	})
}

func hasPrefix(path, pattern string) bool {
	return len(path) >= len(pattern) && path[:len(pattern)] == pattern
}
