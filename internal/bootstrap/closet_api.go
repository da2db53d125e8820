package bootstrap

import (
	"strings"
	"time"

	"closet_server/adapter/in/http"
	"closet_server/config"
	"closet_server/infra/middleware"
	"closet_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// NewAPI builds the HTTP server around an already wired dependency
// graph so api and worker modes can share one graph in-process.
func NewAPI(cfg *config.Config, deps *Dependencies) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		StrictRouting:         false,
		CaseSensitive:         false,

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		// go-json is drop-in and noticeably faster than encoding/json
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 10 * 1024 * 1024,

		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// CORS: credentials require explicit origins, never "*".
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health checks (no auth required)
	healthHandler := http.NewHealthHandler(deps.DB, deps.Redis)
	healthHandler.Register(app)

	oauthHandler := http.NewOAuthHandler(deps.TokenService, deps.Cache)

	// OAuth callback (no auth required, Google redirects here)
	app.Get("/api/v1/auth/gmail/callback", oauthHandler.Callback)

	// API routes (with auth)
	api := app.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWTSecret))

	// Rate limiting runs after auth so windows key on the user id. The
	// sync trigger is throttled hard; each call can fan out into Gmail
	// and OpenAI traffic.
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	limiter.RegisterEndpoint(fiber.MethodPost, "/api/v1/sync", 5, time.Minute)
	api.Use(limiter.Handler())

	oauthHandler.Register(api)

	syncHandler := http.NewSyncHandler(deps.SyncService, deps.JobTracker)
	syncHandler.Register(api)

	logger.Info("API server initialized")
	return app, nil
}
