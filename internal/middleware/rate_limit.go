package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-school-api/internal/utils"
)

// RateLimit creates a per-user rate limiter middleware instance. Anonymous
// callers such as sign-in attempts are keyed by client IP.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many requests")
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			userID := c.IP()
			if value := c.Locals("user_id"); value != nil {
				if id := fmt.Sprintf("%v", value); id != "" && id != "0" {
					userID = id
				}
			}
			return fmt.Sprintf("%s:%s", identifier, userID)
		},
	})
}
