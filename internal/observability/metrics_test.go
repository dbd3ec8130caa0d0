package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesImportCounters(t *testing.T) {
	ImportRows().WithLabelValues("students", "succeeded").Add(2)
	PerformanceCache().WithLabelValues("student", "hit").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `school_import_rows_total{entity="students",outcome="succeeded"} 2`))
	require.True(t, strings.Contains(string(body), "school_performance_cache_total"))
}
