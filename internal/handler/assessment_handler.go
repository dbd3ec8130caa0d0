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

// AssessmentHandler records graded work.
type AssessmentHandler struct {
	service service.AssessmentService
	terms   service.TermService
	logger  zerolog.Logger
}

// NewAssessmentHandler constructs the handler.
func NewAssessmentHandler(service service.AssessmentService, terms service.TermService, logger zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		service: service,
		terms:   terms,
		logger:  logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register attaches assessment routes.
func (h *AssessmentHandler) Register(router fiber.Router) {
	router.Post("", middleware.WithAuth(h.create, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
}

func (h *AssessmentHandler) create(c *fiber.Ctx) error {
	var payload dto.AssessmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	ctx := requestContext(c)
	term, err := h.terms.Resolve(ctx, payload.TermID)
	if err != nil {
		if errors.Is(err, service.ErrTermNotFound) || errors.Is(err, service.ErrNoActiveTerm) {
			return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to resolve term")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to record assessment")
	}

	assessment, err := h.service.Record(ctx, payload, term, activityActorFromContext(c))
	if err != nil {
		switch {
		case isValidationError(err), errors.Is(err, service.ErrMarksExceedTotal):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrClassNotFound), errors.Is(err, service.ErrStudentNotFound):
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrAssessmentForbidden):
			return utils.SendError(c, fiber.StatusForbidden, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to record assessment")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to record assessment")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assessment recorded", assessment)
}
