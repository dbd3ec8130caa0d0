package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-school-api/internal/config"
	"github.com/noah-isme/gema-school-api/internal/handler"
	"github.com/noah-isme/gema-school-api/internal/middleware"
	"github.com/noah-isme/gema-school-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler        *handler.AuthHandler
	TermHandler        *handler.TermHandler
	PerformanceHandler *handler.PerformanceHandler
	AssessmentHandler  *handler.AssessmentHandler
	ImportHandler      *handler.ImportHandler
	ActivityHandler    *handler.ActivityHandler
	JWTMiddleware      fiber.Handler
	DependencyChecks   []handler.DependencyCheck
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.DependencyChecks...))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.AuthHandler != nil {
		deps.AuthHandler.Register(api.Group("/auth"), middleware.RateLimit("sign-in", cfg.AuthRateLimit, time.Minute), jwtMiddleware)
	}

	if deps.TermHandler != nil {
		deps.TermHandler.Register(api.Group("/terms", jwtMiddleware))
	}

	if deps.PerformanceHandler != nil {
		deps.PerformanceHandler.Register(api.Group("/performance", jwtMiddleware))
	}

	if deps.AssessmentHandler != nil {
		deps.AssessmentHandler.Register(api.Group("/assessments", jwtMiddleware))
	}

	if deps.ImportHandler != nil {
		deps.ImportHandler.Register(api.Group("/imports", jwtMiddleware))
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(api.Group("/activities", jwtMiddleware))
	}
}
