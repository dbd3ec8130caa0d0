package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-school-api/internal/observability"
)

// Observability records request metrics and one structured log line per
// API request. Progress websockets are logged when they close but kept out
// of the latency histogram.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()
	logger = logger.With().Str("component", "http").Logger()

	return func(c *fiber.Ctx) error {
		if !strings.HasPrefix(c.Path(), "/api/") {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		code := strconv.Itoa(status)
		stream := strings.HasSuffix(route, "/progress")

		observability.APIRequests().WithLabelValues(method, route, code).Inc()
		if !stream {
			observability.APILatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
		}
		if status >= fiber.StatusBadRequest {
			observability.APIErrors().WithLabelValues(method, route, code).Inc()
		}

		event := logger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error()
		case status >= fiber.StatusBadRequest:
			event = logger.Warn()
		}
		event = event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("method", method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed)
		if !stream {
			event = event.Str("latency_bucket", latencyBucket(elapsed))
		}
		if userID, ok := c.Locals("user_id").(uint); ok && userID != 0 {
			event = event.Uint("user_id", userID).Str("role", normalizeRoleValue(c.Locals("user_role")))
		}
		event.Msg("request handled")

		return err
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" {
		return r.Path
	}
	return c.Path()
}

// Spreadsheet commits routinely run for seconds, so buckets extend past
// the usual API range.
func latencyBucket(d time.Duration) string {
	switch {
	case d <= 50*time.Millisecond:
		return "<=50ms"
	case d <= 250*time.Millisecond:
		return "<=250ms"
	case d <= time.Second:
		return "<=1s"
	case d <= 5*time.Second:
		return "<=5s"
	default:
		return ">5s"
	}
}
