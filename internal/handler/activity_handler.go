package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/middleware"
	"github.com/noah-isme/gema-school-api/internal/service"
	"github.com/noah-isme/gema-school-api/internal/utils"
)

// ActivityHandler exposes the audit trail.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches activity log routes to the router group.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("", middleware.WithAuth(h.list, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	if page <= 0 {
		page = 1
	}

	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page size")
	}
	if pageSize <= 0 {
		pageSize = 25
	} else if pageSize > 200 {
		pageSize = 200
	}

	actorIDInt, err := parseQueryInt(c, "actor_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid actor id")
	}
	entityID, err := parseQueryInt(c, "entity_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid entity id")
	}
	since, err := parseQueryTime(c, "since")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "since must be an RFC3339 timestamp")
	}
	until, err := parseQueryTime(c, "until")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "until must be an RFC3339 timestamp")
	}

	req := dto.AdminActivityListRequest{
		Page:          page,
		PageSize:      pageSize,
		Action:        c.Query("action"),
		EntityType:    c.Query("entity_type"),
		ImportID:      c.Query("import_id"),
		CorrelationID: c.Query("correlation_id"),
		Since:         since,
		Until:         until,
	}
	if actorIDInt > 0 {
		req.ActorID = uint(actorIDInt)
	}
	if entityID > 0 {
		req.EntityID = uint(entityID)
	}

	response, err := h.service.List(requestContext(c), req)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list activity logs")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list activity logs")
	}

	return utils.OK(c, response.Items, "activity logs", response.Pagination)
}
