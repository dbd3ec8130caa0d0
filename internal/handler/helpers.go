package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-school-api/internal/importer"
	"github.com/noah-isme/gema-school-api/internal/middleware"
	"github.com/noah-isme/gema-school-api/internal/service"
	"github.com/noah-isme/gema-school-api/internal/utils"
)

var errUploadTooLarge = errors.New("uploaded file is too large")

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseQueryTime(c *fiber.Ctx, key string) (*time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	parsed = parsed.UTC()
	return &parsed, nil
}

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(parsed), nil
}

// optionalUintQuery returns nil when the query parameter is absent.
func optionalUintQuery(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return nil, fmt.Errorf("invalid %s", key)
	}
	id := uint(parsed)
	return &id, nil
}

func uintLocal(c *fiber.Ctx, key string) uint {
	switch v := c.Locals(key).(type) {
	case uint:
		return v
	case int:
		if v > 0 {
			return uint(v)
		}
	}
	return 0
}

func userIDFromContext(c *fiber.Ctx) uint {
	return uintLocal(c, "user_id")
}

func teacherIDFromContext(c *fiber.Ctx) uint {
	return uintLocal(c, "teacher_id")
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func activityActorFromContext(c *fiber.Ctx) service.ActivityActor {
	return service.ActivityActor{
		ID:            userIDFromContext(c),
		Role:          userRoleFromContext(c),
		TeacherID:     teacherIDFromContext(c),
		CorrelationID: middleware.GetCorrelationID(c),
	}
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// readSpreadsheet loads the multipart "file" field and parses it.
func readSpreadsheet(c *fiber.Ctx, maxBytes int64) (importer.Table, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return importer.Table{}, fiber.NewError(fiber.StatusBadRequest, "file is required")
	}
	if maxBytes > 0 && header.Size > maxBytes {
		return importer.Table{}, errUploadTooLarge
	}

	file, err := header.Open()
	if err != nil {
		return importer.Table{}, err
	}
	defer file.Close()

	var reader io.Reader = file
	if maxBytes > 0 {
		reader = io.LimitReader(file, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return importer.Table{}, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return importer.Table{}, errUploadTooLarge
	}

	return importer.Parse(header.Filename, data)
}

// sendImportError maps parse and validation failures shared by every import route.
func sendImportError(c *fiber.Ctx, logger *zerolog.Logger, err error, fallback string) error {
	var missing *importer.MissingColumnsError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &missing):
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), fiber.Map{"missing_columns": missing.Missing})
	case errors.As(err, &fiberErr):
		return utils.Fail(c, fiberErr.Code, fiberErr.Message, nil)
	case errors.Is(err, errUploadTooLarge):
		return utils.Fail(c, fiber.StatusRequestEntityTooLarge, err.Error(), nil)
	case errors.Is(err, importer.ErrUnsupportedFileType),
		errors.Is(err, importer.ErrEmptySheet),
		errors.Is(err, service.ErrImportEmpty),
		errors.Is(err, service.ErrInvalidImportID),
		strings.HasPrefix(err.Error(), "invalid csv"),
		strings.HasPrefix(err.Error(), "invalid xlsx"):
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, err.Error(), nil)
	default:
		logger.Error().Err(err).Msg(fallback)
		return utils.Fail(c, fiber.StatusInternalServerError, fallback, nil)
	}
}
