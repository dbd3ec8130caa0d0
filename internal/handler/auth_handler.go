package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/middleware"
	"github.com/noah-isme/gema-school-api/internal/service"
	"github.com/noah-isme/gema-school-api/internal/utils"
)

// AuthHandler exposes password sign-in and the current account.
type AuthHandler struct {
	service service.IdentityService
	logger  zerolog.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(service service.IdentityService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register attaches the sign-in route, throttled by limiter, and the
// session routes guarded by auth. Either handler may be nil.
func (h *AuthHandler) Register(router fiber.Router, limiter, auth fiber.Handler) {
	signIn := []fiber.Handler{h.signIn}
	if limiter != nil {
		signIn = append([]fiber.Handler{limiter}, signIn...)
	}
	router.Post("/sign-in", signIn...)

	me := []fiber.Handler{middleware.WithAuth(h.me, middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true})}
	if auth != nil {
		me = append([]fiber.Handler{auth}, me...)
	}
	router.Get("/me", me...)
}

func (h *AuthHandler) signIn(c *fiber.Ctx) error {
	var payload dto.SignInRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	session, err := h.service.SignIn(requestContext(c), payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrInvalidCredentials):
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("sign in failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to sign in")
		}
	}

	return utils.SendSuccess(c, "signed in", session)
}

func (h *AuthHandler) me(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	user, err := h.service.CurrentUser(requestContext(c), userID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to load current user")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load current user")
	}

	return utils.SendSuccess(c, "current user", user)
}
