package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/importer"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/repository"
)

// TeacherImportService validates and commits teacher spreadsheets.
type TeacherImportService interface {
	Preview(ctx context.Context, table importer.Table) (dto.TeacherImportPreview, error)
	Validate(ctx context.Context, rows []dto.TeacherImportRow) ([]dto.TeacherImportRow, error)
	Commit(ctx context.Context, payload dto.TeacherImportCommitRequest, actor ActivityActor) (dto.ImportCommitResult, error)
}

type teacherImportService struct {
	teachers  repository.TeacherRepository
	accounts  repository.AccountRepository
	identity  AccountProvisioner
	validator *validator.Validate
	progress  ProgressPublisher
	activity  ActivityRecorder
	options   ImportOptions
	logger    zerolog.Logger
}

// NewTeacherImportService constructs the teacher import service.
func NewTeacherImportService(teachers repository.TeacherRepository, accounts repository.AccountRepository, identity AccountProvisioner, validate *validator.Validate, progress ProgressPublisher, activity ActivityRecorder, options ImportOptions, logger zerolog.Logger) TeacherImportService {
	return &teacherImportService{
		teachers:  teachers,
		accounts:  accounts,
		identity:  identity,
		validator: validate,
		progress:  progress,
		activity:  activity,
		options:   options,
		logger:    logger.With().Str("component", "teacher_import_service").Logger(),
	}
}

func (s *teacherImportService) Preview(ctx context.Context, table importer.Table) (dto.TeacherImportPreview, error) {
	columns, err := importer.TeacherColumns.Resolve(table.Headers, importer.FieldName, importer.FieldEmail)
	if err != nil {
		return dto.TeacherImportPreview{}, err
	}
	if err := ensureRows(table); err != nil {
		return dto.TeacherImportPreview{}, err
	}

	rows := make([]dto.TeacherImportRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		rows = append(rows, dto.TeacherImportRow{
			Line:     row.Line,
			Name:     columns.Value(row.Cells, importer.FieldName),
			Email:    columns.Value(row.Cells, importer.FieldEmail),
			Subject:  columns.Value(row.Cells, importer.FieldSubject),
			Password: strings.TrimSpace(columns.Raw(row.Cells, importer.FieldPassword)),
		})
	}

	validated, err := s.Validate(ctx, rows)
	if err != nil {
		return dto.TeacherImportPreview{}, err
	}

	return dto.TeacherImportPreview{Rows: validated, Counts: countTeacherRows(validated)}, nil
}

// Validate checks required fields and email format, and marks rows whose
// email already belongs to a teacher or an account as duplicates. Duplicate
// teachers are never selectable.
func (s *teacherImportService) Validate(ctx context.Context, rows []dto.TeacherImportRow) ([]dto.TeacherImportRow, error) {
	emails := make([]string, 0, len(rows))
	for _, row := range rows {
		emails = append(emails, row.Email)
	}

	existingTeachers, err := s.teachers.ExistingEmails(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("load existing teachers: %w", err)
	}
	existingAccounts, err := s.accounts.ExistingEmails(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("load existing accounts: %w", err)
	}

	seen := make(map[string]bool, len(rows))
	validated := make([]dto.TeacherImportRow, 0, len(rows))
	for _, row := range rows {
		row.Name = strings.TrimSpace(row.Name)
		row.Email = strings.ToLower(strings.TrimSpace(row.Email))
		row.Subject = strings.TrimSpace(row.Subject)

		errs := make([]string, 0)
		if row.Name == "" {
			errs = append(errs, "name is required")
		}
		if row.Email == "" {
			errs = append(errs, "email is required")
		} else if s.validator.Var(row.Email, "email") != nil {
			errs = append(errs, "email is not valid")
		}
		if row.Password != "" && len(row.Password) < minPasswordLength {
			errs = append(errs, ErrWeakPassword.Error())
		}

		duplicate := row.Email != "" && (existingTeachers[row.Email] || existingAccounts[row.Email])
		if s.options.FlagFileDuplicates && row.Email != "" && seen[row.Email] {
			duplicate = true
		}
		if row.Email != "" {
			seen[row.Email] = true
		}

		row.Errors = errs
		row.ValidationStatus = statusFor(errs, duplicate)
		row.Selected = row.ValidationStatus == dto.ValidationNew
		validated = append(validated, row)
	}

	return validated, nil
}

// Commit creates an account and then a teacher profile for each selected new
// row, sequentially. A failed profile insert deletes the account it just created.
func (s *teacherImportService) Commit(ctx context.Context, payload dto.TeacherImportCommitRequest, actor ActivityActor) (dto.ImportCommitResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ImportCommitResult{}, err
	}
	importID, err := resolveImportID(payload.ImportID)
	if err != nil {
		return dto.ImportCommitResult{}, err
	}

	ctx = commitContext(ctx)
	tracer := otel.Tracer("github.com/noah-isme/gema-school-api/internal/service/teacher_import")
	ctx, span := tracer.Start(ctx, "imports.teachers.commit")
	span.SetAttributes(
		attribute.String("import.id", importID),
		attribute.Int("import.rows", len(payload.Rows)),
	)
	defer span.End()

	validated, err := s.Validate(ctx, payload.Rows)
	if err != nil {
		span.RecordError(err)
		return dto.ImportCommitResult{}, err
	}

	selected := make([]dto.TeacherImportRow, 0, len(validated))
	for i, row := range validated {
		if row.ValidationStatus != dto.ValidationNew || !payload.Rows[i].Selected {
			continue
		}
		selected = append(selected, row)
	}

	ledger := newImportLedger(importID, dto.ImportEntityTeachers, len(selected), len(validated)-len(selected), s.progress, s.logger)
	for _, row := range selected {
		outcome := dto.ImportRowOutcome{Line: row.Line, Label: row.Email}
		teacher, temporary, err := s.createTeacher(ctx, row)
		if err != nil {
			ledger.fail(ctx, outcome, err)
			continue
		}
		id := teacher.ID
		outcome.ID = &id
		outcome.TemporaryPassword = temporary
		ledger.succeed(ctx, outcome)
	}

	result := ledger.finish(ctx)
	span.SetAttributes(
		attribute.Int("import.succeeded", result.Succeeded),
		attribute.Int("import.failed", result.Failed),
	)
	s.logger.Info().
		Str("import_id", importID).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("teacher import committed")

	if s.activity != nil {
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:       actor.ID,
			ActorRole:     actor.Role,
			Action:        ActionTeachersImported,
			ImportID:      importID,
			EntityType:    dto.ImportEntityTeachers,
			CorrelationID: actor.CorrelationID,
			Metadata:      ledger.activityMetadata(),
		})
	}

	return result, nil
}

// createTeacher runs account creation then profile insert, undoing the
// account when the profile cannot be stored. The temporary password is
// returned only when one was generated.
func (s *teacherImportService) createTeacher(ctx context.Context, row dto.TeacherImportRow) (models.Teacher, string, error) {
	password := row.Password
	temporary := ""
	if password == "" {
		temporary = uuid.NewString()
		password = temporary
	}

	account, err := s.identity.CreateAccount(ctx, row.Email, password, map[string]interface{}{
		"role":                models.RoleTeacher,
		"name":                row.Name,
		"must_reset_password": temporary != "",
	})
	if err != nil {
		return models.Teacher{}, "", err
	}

	teacher := models.Teacher{
		AccountID: account.ID,
		Name:      row.Name,
		Email:     account.Email,
		Subject:   row.Subject,
	}
	if err := s.teachers.Create(ctx, &teacher); err != nil {
		if deleteErr := s.identity.DeleteAccount(ctx, account.ID); deleteErr != nil {
			s.logger.Error().
				Err(deleteErr).
				Uint("account_id", account.ID).
				Str("email", account.Email).
				Msg("failed to remove account after teacher profile insert failed")
			return models.Teacher{}, "", fmt.Errorf("teacher profile not saved and account %d could not be removed: %w", account.ID, err)
		}
		return models.Teacher{}, "", fmt.Errorf("teacher profile not saved: %w", err)
	}

	return teacher, temporary, nil
}

func countTeacherRows(rows []dto.TeacherImportRow) dto.ValidationCounts {
	statuses := make([]string, 0, len(rows))
	for _, row := range rows {
		statuses = append(statuses, row.ValidationStatus)
	}
	return tallyStatuses(statuses)
}
