package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssessmentHandler *handler.AssessmentHandler
	AttemptHandler    *handler.AttemptHandler
	ResultsHandler    *handler.ResultsHandler
	ActivityHandler   *handler.ActivityHandler
	HealthProbes      []handler.HealthProbe
	MetricsHandler    fiber.Handler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	if deps.MetricsHandler != nil {
		app.Get("/metrics", deps.MetricsHandler)
	}

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	v2 := app.Group("/api/v2", jwtMiddleware)

	if deps.AssessmentHandler != nil {
		deps.AssessmentHandler.Register(v2)
	}
	if deps.AttemptHandler != nil {
		deps.AttemptHandler.Register(v2)
	}
	if deps.ResultsHandler != nil {
		deps.ResultsHandler.Register(v2)
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(v2)
	}
}
