package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/studentid/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/studentid/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/studentid/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
)

type Dependencies struct {
	Recognition handler.RecognitionService
	Auth        handler.AuthService
	Tokens      middleware.TokenValidator

	// Readiness checks; nil entries are skipped
	DB     handler.Pinger
	Media  handler.Pinger
	Engine handler.EngineStatus

	MaxImageSize int64
	RateLimit    middleware.RateLimiterConfig
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	cfg := fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Student Identity API",
	}
	if deps != nil && deps.MaxImageSize > 0 {
		// room for the other multipart fields
		cfg.BodyLimit = int(deps.MaxImageSize) + 1<<20
	}

	return &Router{
		app:    fiber.New(cfg),
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// Health check endpoints (no auth required)
	var healthHandler *handler.HealthHandler
	if r.deps != nil {
		healthHandler = handler.NewHealthHandler(r.deps.DB, r.deps.Media, r.deps.Engine)
	} else {
		healthHandler = handler.NewHealthHandler(nil, nil, nil)
	}
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil {
		return
	}

	v1 := r.app.Group("/v1")

	authHandler := handler.NewAuthHandler(r.deps.Auth, r.logger)
	authGroup := v1.Group("/auth")
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)

	recognitionHandler := handler.NewRecognitionHandler(r.deps.Recognition, r.deps.MaxImageSize, r.logger)
	recognition := v1.Group("/recognition")

	// Public kiosk endpoint, limited per client IP
	r.rateLimiter = middleware.NewRateLimiter(r.deps.RateLimit)
	recognition.Post("/recognize", r.rateLimiter.Handler(), recognitionHandler.Recognize)

	auth := middleware.Auth(middleware.AuthDependencies{
		Tokens: r.deps.Tokens,
		Logger: r.logger,
	})
	adminOnly := middleware.RequireRole(domain.RoleAdmin)

	// Admins or the student themselves; the handler checks ownership
	recognition.Post("/register-face", auth, recognitionHandler.RegisterFace)
	recognition.Get("/logs", auth, adminOnly, recognitionHandler.Logs)
	recognition.Get("/dashboard-stats", auth, adminOnly, recognitionHandler.DashboardStats)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
