package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func newLimitedApp(rl *RateLimiter, userID uuid.UUID) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != uuid.Nil {
			c.Locals("user_id", userID)
		}
		return c.Next()
	})
	app.Use(rl.Handler())
	app.Post("/api/v1/sync", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	app.Get("/api/v1/wardrobe", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRateLimiterEndpointLimit(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig())
	rl.RegisterEndpoint(fiber.MethodPost, "/api/v1/sync", 2, time.Minute)
	app := newLimitedApp(rl, uuid.New())

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/api/v1/sync", nil))
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if resp.StatusCode != fiber.StatusAccepted {
			t.Fatalf("request %d status = %d, want 202", i, resp.StatusCode)
		}
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/api/v1/sync", nil))
	if err != nil {
		t.Fatalf("third request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", resp.StatusCode)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}

	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Code       string `json:"code"`
		RetryAfter int    `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decoding 429 body: %v", err)
	}
	if payload.Code != "RATE_LIMITED" {
		t.Errorf("code = %q, want RATE_LIMITED", payload.Code)
	}
	if payload.RetryAfter <= 0 {
		t.Errorf("retry_after = %d, want positive", payload.RetryAfter)
	}
}

func TestRateLimiterUsersDoNotShareWindows(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig())
	rl.RegisterEndpoint(fiber.MethodPost, "/api/v1/sync", 1, time.Minute)

	first := newLimitedApp(rl, uuid.New())
	if resp, _ := first.Test(httptest.NewRequest(fiber.MethodPost, "/api/v1/sync", nil)); resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("first user status = %d, want 202", resp.StatusCode)
	}
	if resp, _ := first.Test(httptest.NewRequest(fiber.MethodPost, "/api/v1/sync", nil)); resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("first user second call status = %d, want 429", resp.StatusCode)
	}

	second := newLimitedApp(rl, uuid.New())
	if resp, _ := second.Test(httptest.NewRequest(fiber.MethodPost, "/api/v1/sync", nil)); resp.StatusCode != fiber.StatusAccepted {
		t.Errorf("second user status = %d, want 202", resp.StatusCode)
	}
}

func TestRateLimiterGeneralLimitByIP(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Limit: 2, Window: time.Minute})
	app := newLimitedApp(rl, uuid.Nil)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/wardrobe", nil))
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, resp.StatusCode)
		}
	}
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/wardrobe", nil))
	if err != nil {
		t.Fatalf("third request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", resp.StatusCode)
	}
}

func TestRateLimiterSkipsPreflight(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Limit: 1, Window: time.Minute})
	app := fiber.New()
	app.Use(rl.Handler())
	app.Options("/api/v1/sync", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodOptions, "/api/v1/sync", nil))
		if err != nil {
			t.Fatalf("preflight %d failed: %v", i, err)
		}
		if resp.StatusCode != fiber.StatusNoContent {
			t.Errorf("preflight %d status = %d, want 204", i, resp.StatusCode)
		}
	}
}

func TestBumpWindowExpiry(t *testing.T) {
	windows := make(map[string]*requestWindow)
	now := time.Now()

	if limited, _, remaining := bump(windows, "u1", 1, time.Minute, now); limited || remaining != 0 {
		t.Fatalf("first bump limited=%v remaining=%d", limited, remaining)
	}
	if limited, _, _ := bump(windows, "u1", 1, time.Minute, now.Add(time.Second)); !limited {
		t.Fatal("second bump inside window should be limited")
	}
	if limited, _, _ := bump(windows, "u1", 1, time.Minute, now.Add(2*time.Minute)); limited {
		t.Fatal("bump after expiry should reset the window")
	}
}
