package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/middleware"
	"github.com/noah-isme/gema-school-api/internal/service"
	"github.com/noah-isme/gema-school-api/internal/utils"
)

const progressPingInterval = 20 * time.Second

// ImportServices groups the import flows served by ImportHandler.
type ImportServices struct {
	Students   service.StudentImportService
	Teachers   service.TeacherImportService
	Curriculum service.CurriculumImportService
	Progress   service.ImportProgressBroker
}

// ImportHandler serves spreadsheet previews, commits and live progress.
type ImportHandler struct {
	services ImportServices
	maxBytes int64
	logger   zerolog.Logger
}

// NewImportHandler constructs the handler. maxUploadMB caps the spreadsheet size.
func NewImportHandler(services ImportServices, maxUploadMB int, logger zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		services: services,
		maxBytes: int64(maxUploadMB) << 20,
		logger:   logger.With().Str("component", "import_handler").Logger(),
	}
}

// Register attaches import routes.
func (h *ImportHandler) Register(router fiber.Router) {
	staff := middleware.AuthOptions{Role: middleware.AuthRoleStaff}
	admin := middleware.AuthOptions{Role: middleware.AuthRoleAdmin}

	router.Post("/students/preview", middleware.WithAuth(h.previewStudents, staff))
	router.Post("/students/commit", middleware.WithAuth(h.commitStudents, staff))
	router.Post("/teachers/preview", middleware.WithAuth(h.previewTeachers, admin))
	router.Post("/teachers/commit", middleware.WithAuth(h.commitTeachers, admin))
	router.Post("/curriculum/preview", middleware.WithAuth(h.previewCurriculum, admin))
	router.Post("/curriculum/commit", middleware.WithAuth(h.commitCurriculum, admin))

	if h.services.Progress != nil {
		router.Get("/:id/progress", middleware.WithAuth(requireUpgrade, staff), websocket.New(h.streamProgress))
	}
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *ImportHandler) previewStudents(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)
	table, err := readSpreadsheet(c, h.maxBytes)
	if err != nil {
		return sendImportError(c, logger, err, "failed to read student file")
	}

	preview, err := h.services.Students.Preview(requestContext(c), table, activityActorFromContext(c))
	if err != nil {
		return sendImportError(c, logger, err, "failed to validate students")
	}
	return utils.SendSuccess(c, "student import preview", preview)
}

func (h *ImportHandler) commitStudents(c *fiber.Ctx) error {
	var payload dto.StudentImportCommitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.services.Students.Commit(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return sendImportError(c, requestLogger(h.logger, c), err, "failed to import students")
	}
	return utils.SendSuccess(c, "student import finished", result)
}

func (h *ImportHandler) previewTeachers(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)
	table, err := readSpreadsheet(c, h.maxBytes)
	if err != nil {
		return sendImportError(c, logger, err, "failed to read teacher file")
	}

	preview, err := h.services.Teachers.Preview(requestContext(c), table)
	if err != nil {
		return sendImportError(c, logger, err, "failed to validate teachers")
	}
	return utils.SendSuccess(c, "teacher import preview", preview)
}

func (h *ImportHandler) commitTeachers(c *fiber.Ctx) error {
	var payload dto.TeacherImportCommitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.services.Teachers.Commit(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return sendImportError(c, requestLogger(h.logger, c), err, "failed to import teachers")
	}
	return utils.SendSuccess(c, "teacher import finished", result)
}

func (h *ImportHandler) previewCurriculum(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)
	table, err := readSpreadsheet(c, h.maxBytes)
	if err != nil {
		return sendImportError(c, logger, err, "failed to read curriculum file")
	}

	preview, err := h.services.Curriculum.Preview(requestContext(c), table)
	if err != nil {
		return sendImportError(c, logger, err, "failed to read curriculum rows")
	}
	return utils.SendSuccess(c, "curriculum import preview", preview)
}

func (h *ImportHandler) commitCurriculum(c *fiber.Ctx) error {
	var payload dto.CurriculumCommitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.services.Curriculum.Reconcile(requestContext(c), payload.Rows, activityActorFromContext(c))
	if err != nil {
		var insertErr *service.CurriculumInsertError
		if errors.As(err, &insertErr) {
			requestLogger(h.logger, c).Error().Err(err).Str("level", string(insertErr.Level)).Msg("curriculum import aborted")
			return utils.Fail(c, fiber.StatusInternalServerError, err.Error(), insertErr.Result)
		}
		return sendImportError(c, requestLogger(h.logger, c), err, "failed to import curriculum")
	}
	return utils.SendSuccess(c, "curriculum import finished", result)
}

// streamProgress replays the latest event for the import and then forwards
// new ones until the import is done or the client goes away.
func (h *ImportHandler) streamProgress(conn *websocket.Conn) {
	importID := conn.Params("id")
	if _, err := uuid.Parse(importID); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "import id must be a uuid"))
		_ = conn.Close()
		return
	}

	events, cleanup := h.services.Progress.Subscribe(importID)
	defer cleanup()
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if latest, ok := h.services.Progress.Latest(importID); ok {
		if err := conn.WriteJSON(latest); err != nil {
			return
		}
		if latest.Done {
			h.finish(conn)
			return
		}
	}

	ticker := time.NewTicker(progressPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Str("import_id", importID).Msg("failed to write progress event")
				return
			}
			if event.Done {
				h.finish(conn)
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (h *ImportHandler) finish(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "import finished"))
}
