package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-school-api/internal/config"
	"github.com/noah-isme/gema-school-api/internal/utils"
)

const dependencyCheckTimeout = 2 * time.Second

// DependencyCheck checks one backing dependency.
type DependencyCheck struct {
	Name string
	Run  func(ctx context.Context) error
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Service      string            `json:"service"`
	Environment  string            `json:"environment"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthCheck reports service identity and the state of every dependency check. A
// failing check turns the response into a 503 with status "degraded".
func HealthCheck(cfg config.Config, checks ...DependencyCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(c.UserContext(), dependencyCheckTimeout)
			defer cancel()

			payload.Dependencies = make(map[string]string, len(checks))
			for _, check := range checks {
				if err := check.Run(ctx); err != nil {
					payload.Dependencies[check.Name] = "down"
					payload.Status = "degraded"
					continue
				}
				payload.Dependencies[check.Name] = "up"
			}
		}

		if payload.Status != "ok" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(utils.APIResponse{
				Success: false,
				Message: "service degraded",
				Data:    payload,
			})
		}
		return utils.SendSuccess(c, "service healthy", payload)
	}
}
