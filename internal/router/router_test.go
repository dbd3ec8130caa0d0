package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/config"
	"github.com/noah-isme/gema-school-api/internal/handler"
	"github.com/noah-isme/gema-school-api/internal/middleware"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/repository"
	"github.com/noah-isme/gema-school-api/internal/router"
	"github.com/noah-isme/gema-school-api/internal/service"
)

type healthResponse struct {
	Success bool                   `json:"success"`
	Data    handler.HealthResponse `json:"data"`
}

func newTestApp(t *testing.T) (*fiber.App, service.IdentityService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	cfg := config.Config{AppName: "School API", AppEnv: "test", JWTSecret: "test-secret", AuthRateLimit: 50}
	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())

	accounts := repository.NewAccountRepository(db)
	teachers := repository.NewTeacherRepository(db)
	identity := service.NewIdentityService(accounts, teachers, validate, service.IdentityConfig{Secret: cfg.JWTSecret, TokenTTL: time.Hour}, logger)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	terms := service.NewTermService(repository.NewTermRepository(db), activity, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:     handler.NewAuthHandler(identity, logger),
		TermHandler:     handler.NewTermHandler(terms, logger),
		ActivityHandler: handler.NewActivityHandler(activity, logger),
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
	})
	return app, identity, db
}

func TestHealthCheck(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "School API", resp.Header.Get("X-Application"))
	assert.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))

	var payload healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.True(t, payload.Success)
	assert.Equal(t, "ok", payload.Data.Status)
	assert.Equal(t, "test", payload.Data.Environment)
	assert.WithinDuration(t, time.Now().UTC(), payload.Data.Timestamp, 2*time.Second)
}

func TestHealthCheckReportsFailingDependency(t *testing.T) {
	app := fiber.New()
	router.Register(app, config.Config{AppName: "School API", AppEnv: "test"}, router.Dependencies{
		DependencyChecks: []handler.DependencyCheck{
			{Name: "database", Run: func(context.Context) error { return nil }},
			{Name: "redis", Run: func(context.Context) error { return errors.New("connection refused") }},
		},
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var payload healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.False(t, payload.Success)
	assert.Equal(t, "degraded", payload.Data.Status)
	assert.Equal(t, map[string]string{"database": "up", "redis": "down"}, payload.Data.Dependencies)
}

func TestMetricsEndpoint(t *testing.T) {
	app, _, _ := newTestApp(t)

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), -1)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "api_requests_total")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/terms", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestSignInThenUseSession(t *testing.T) {
	app, identity, db := newTestApp(t)
	_, err := identity.CreateAccount(context.Background(), "head@school.test", "changeme", map[string]interface{}{"role": models.RoleAdmin})
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.Term{Name: "Autumn", StartsOn: time.Now(), EndsOn: time.Now().AddDate(0, 3, 0)}).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", strings.NewReader(`{"email":"Head@School.test","password":"changeme"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var session struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	require.NotEmpty(t, session.Data.Token)

	authed := func(method, path string) *http.Response {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+session.Data.Token)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	assert.Equal(t, fiber.StatusOK, authed(http.MethodGet, "/api/v1/auth/me").StatusCode)
	assert.Equal(t, fiber.StatusNotFound, authed(http.MethodGet, "/api/v1/terms/active").StatusCode)
	assert.Equal(t, fiber.StatusOK, authed(http.MethodPost, "/api/v1/terms/1/activate").StatusCode)
	assert.Equal(t, fiber.StatusOK, authed(http.MethodGet, "/api/v1/terms/active").StatusCode)

	resp = authed(http.MethodGet, "/api/v1/activities?action=term.activated")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var activities struct {
		Data []map[string]interface{} `json:"data"`
		Meta struct {
			TotalItems int `json:"total_items"`
		} `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&activities))
	assert.Equal(t, 1, activities.Meta.TotalItems)

	resp = authed(http.MethodGet, "/api/v1/activities?entity_type=TERM&entity_id=1&since=2000-01-01T00:00:00Z")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&activities))
	assert.Equal(t, 1, activities.Meta.TotalItems)

	assert.Equal(t, fiber.StatusBadRequest, authed(http.MethodGet, "/api/v1/activities?since=yesterday").StatusCode)
}
