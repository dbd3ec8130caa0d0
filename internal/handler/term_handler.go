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

// TermHandler lists terms and switches the active one.
type TermHandler struct {
	service service.TermService
	logger  zerolog.Logger
}

// NewTermHandler constructs the handler.
func NewTermHandler(service service.TermService, logger zerolog.Logger) *TermHandler {
	return &TermHandler{
		service: service,
		logger:  logger.With().Str("component", "term_handler").Logger(),
	}
}

// Register attaches term routes. Activation is admin only.
func (h *TermHandler) Register(router fiber.Router) {
	router.Get("", middleware.WithAuth(h.list, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Get("/active", middleware.WithAuth(h.active, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Post("/:id/activate", middleware.WithAuth(h.activate, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
}

func (h *TermHandler) list(c *fiber.Ctx) error {
	terms, err := h.service.List(requestContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list terms")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list terms")
	}
	return utils.SendSuccess(c, "terms", terms)
}

func (h *TermHandler) active(c *fiber.Ctx) error {
	term, err := h.service.Active(requestContext(c))
	if err != nil {
		if errors.Is(err, service.ErrNoActiveTerm) {
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to load active term")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load active term")
	}
	return utils.SendSuccess(c, "active term", dto.NewTermResponse(term))
}

func (h *TermHandler) activate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	term, err := h.service.Activate(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		if errors.Is(err, service.ErrTermNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("term_id", id).Msg("failed to activate term")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to activate term")
	}
	return utils.SendSuccess(c, "term activated", term)
}
