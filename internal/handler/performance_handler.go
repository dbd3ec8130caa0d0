package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-school-api/internal/middleware"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/service"
	"github.com/noah-isme/gema-school-api/internal/utils"
)

// PerformanceHandler serves flag and status aggregates scoped to one term.
type PerformanceHandler struct {
	service service.PerformanceService
	terms   service.TermService
	logger  zerolog.Logger
}

// NewPerformanceHandler constructs the handler.
func NewPerformanceHandler(service service.PerformanceService, terms service.TermService, logger zerolog.Logger) *PerformanceHandler {
	return &PerformanceHandler{
		service: service,
		terms:   terms,
		logger:  logger.With().Str("component", "performance_handler").Logger(),
	}
}

// Register attaches performance routes.
func (h *PerformanceHandler) Register(router fiber.Router) {
	staff := middleware.AuthOptions{Role: middleware.AuthRoleStaff}
	router.Get("/students/:id", middleware.WithAuth(h.student, staff))
	router.Get("/classes/:id", middleware.WithAuth(h.class, staff))
	router.Get("/teachers/:id/classes", middleware.WithAuth(h.teacherClasses, staff))
	router.Get("/teachers/:id/flagged", middleware.WithAuth(h.teacherFlagged, staff))
	router.Get("/flags", middleware.WithAuth(h.flags, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
}

func (h *PerformanceHandler) student(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	term, err := h.resolveTerm(c)
	if err != nil {
		return h.sendError(c, err)
	}

	summary, err := h.service.StudentSummary(requestContext(c), id, term, activityActorFromContext(c))
	if err != nil {
		return h.sendError(c, err)
	}
	return utils.SendSuccess(c, "student performance", summary)
}

func (h *PerformanceHandler) class(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	term, err := h.resolveTerm(c)
	if err != nil {
		return h.sendError(c, err)
	}

	progress, err := h.service.ClassProgress(requestContext(c), id, term, activityActorFromContext(c))
	if err != nil {
		return h.sendError(c, err)
	}
	return utils.SendSuccess(c, "class progress", progress)
}

func (h *PerformanceHandler) teacherClasses(c *fiber.Ctx) error {
	teacherID, err := h.teacherParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	term, err := h.resolveTerm(c)
	if err != nil {
		return h.sendError(c, err)
	}

	classes, err := h.service.TeacherClasses(requestContext(c), teacherID, term, activityActorFromContext(c))
	if err != nil {
		return h.sendError(c, err)
	}
	return utils.SendSuccess(c, "teacher classes", classes)
}

func (h *PerformanceHandler) teacherFlagged(c *fiber.Ctx) error {
	teacherID, err := h.teacherParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	term, err := h.resolveTerm(c)
	if err != nil {
		return h.sendError(c, err)
	}

	report, err := h.service.TeacherFlagged(requestContext(c), teacherID, term, activityActorFromContext(c))
	if err != nil {
		return h.sendError(c, err)
	}
	return utils.SendSuccess(c, "flagged students", report)
}

func (h *PerformanceHandler) flags(c *fiber.Ctx) error {
	term, err := h.resolveTerm(c)
	if err != nil {
		return h.sendError(c, err)
	}

	report, err := h.service.FlagReport(requestContext(c), term)
	if err != nil {
		return h.sendError(c, err)
	}
	return utils.SendSuccess(c, "flag report", report)
}

// teacherParam accepts a numeric id or "me" for the signed-in teacher.
func (h *PerformanceHandler) teacherParam(c *fiber.Ctx) (uint, error) {
	if strings.EqualFold(strings.TrimSpace(c.Params("id")), "me") {
		teacherID := teacherIDFromContext(c)
		if teacherID == 0 {
			return 0, errors.New("no teacher profile is linked to this account")
		}
		return teacherID, nil
	}
	return parseUintParam(c, "id")
}

func (h *PerformanceHandler) resolveTerm(c *fiber.Ctx) (models.Term, error) {
	termID, err := optionalUintQuery(c, "term_id")
	if err != nil {
		return models.Term{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return h.terms.Resolve(requestContext(c), termID)
}

func (h *PerformanceHandler) sendError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return utils.SendError(c, fiberErr.Code, fiberErr.Message)
	case errors.Is(err, service.ErrTermNotFound),
		errors.Is(err, service.ErrNoActiveTerm),
		errors.Is(err, service.ErrStudentNotFound),
		errors.Is(err, service.ErrClassNotFound),
		errors.Is(err, service.ErrTeacherNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPerformanceForbidden):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Str("route", c.Path()).Msg("performance query failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load performance data")
	}
}
