package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/importer"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/repository"
)

// StudentImportService validates and commits student spreadsheets.
type StudentImportService interface {
	Preview(ctx context.Context, table importer.Table, actor ActivityActor) (dto.StudentImportPreview, error)
	Validate(ctx context.Context, rows []dto.StudentImportRow, actor ActivityActor) ([]dto.StudentImportRow, error)
	Commit(ctx context.Context, payload dto.StudentImportCommitRequest, actor ActivityActor) (dto.ImportCommitResult, error)
}

type studentImportService struct {
	students  repository.StudentRepository
	classes   repository.ClassRepository
	validator *validator.Validate
	progress  ProgressPublisher
	activity  ActivityRecorder
	options   ImportOptions
	logger    zerolog.Logger
}

// NewStudentImportService constructs the student import service.
func NewStudentImportService(students repository.StudentRepository, classes repository.ClassRepository, validate *validator.Validate, progress ProgressPublisher, activity ActivityRecorder, options ImportOptions, logger zerolog.Logger) StudentImportService {
	return &studentImportService{
		students:  students,
		classes:   classes,
		validator: validate,
		progress:  progress,
		activity:  activity,
		options:   options,
		logger:    logger.With().Str("component", "student_import_service").Logger(),
	}
}

func (s *studentImportService) Preview(ctx context.Context, table importer.Table, actor ActivityActor) (dto.StudentImportPreview, error) {
	columns, err := importer.StudentColumns.Resolve(table.Headers, importer.FieldName)
	if err != nil {
		return dto.StudentImportPreview{}, err
	}
	if err := ensureRows(table); err != nil {
		return dto.StudentImportPreview{}, err
	}

	rows := make([]dto.StudentImportRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		rows = append(rows, dto.StudentImportRow{
			Line:      row.Line,
			Name:      columns.Value(row.Cells, importer.FieldName),
			Email:     columns.Value(row.Cells, importer.FieldEmail),
			YearGroup: columns.Value(row.Cells, importer.FieldYearGroup),
			ClassName: columns.Value(row.Cells, importer.FieldClass),
		})
	}

	validated, err := s.Validate(ctx, rows, actor)
	if err != nil {
		return dto.StudentImportPreview{}, err
	}

	return dto.StudentImportPreview{Rows: validated, Counts: countStudentRows(validated)}, nil
}

// Validate assigns a validation status to every row. Duplicates are matched
// by name against stored students; new rows are selected by default.
func (s *studentImportService) Validate(ctx context.Context, rows []dto.StudentImportRow, actor ActivityActor) ([]dto.StudentImportRow, error) {
	validated, _, err := s.validate(ctx, rows, actor)
	return validated, err
}

// validate also returns the classes it resolved, keyed by lowercase name, so
// a commit enrols against the same lookup its rows were checked with.
func (s *studentImportService) validate(ctx context.Context, rows []dto.StudentImportRow, actor ActivityActor) ([]dto.StudentImportRow, map[string]models.Class, error) {
	names := make([]string, 0, len(rows))
	classNames := make([]string, 0)
	for _, row := range rows {
		names = append(names, row.Name)
		if strings.TrimSpace(row.ClassName) != "" {
			classNames = append(classNames, row.ClassName)
		}
	}

	existing, err := s.students.ExistingNames(ctx, names)
	if err != nil {
		return nil, nil, fmt.Errorf("load existing students: %w", err)
	}

	var owner *uint
	if !actor.IsAdmin() {
		owner = &actor.TeacherID
	}
	classes, err := s.classes.FindByNames(ctx, classNames, owner)
	if err != nil {
		return nil, nil, fmt.Errorf("load classes: %w", err)
	}

	seen := make(map[string]bool, len(rows))
	validated := make([]dto.StudentImportRow, 0, len(rows))
	for _, row := range rows {
		row.Name = strings.TrimSpace(row.Name)
		row.Email = strings.TrimSpace(row.Email)
		row.YearGroup = strings.TrimSpace(row.YearGroup)
		row.ClassName = strings.TrimSpace(row.ClassName)

		errs := make([]string, 0)
		if row.Name == "" {
			errs = append(errs, "name is required")
		}
		if row.Email != "" && s.validator.Var(row.Email, "email") != nil {
			errs = append(errs, "email is not valid")
		}
		if row.ClassName != "" {
			if _, ok := classes[strings.ToLower(row.ClassName)]; !ok {
				errs = append(errs, fmt.Sprintf("class %q not found", row.ClassName))
			}
		}

		key := strings.ToLower(row.Name)
		duplicate := key != "" && existing[key]
		if s.options.FlagFileDuplicates && key != "" && seen[key] {
			duplicate = true
		}
		if key != "" {
			seen[key] = true
		}

		row.Errors = errs
		row.ValidationStatus = statusFor(errs, duplicate)
		row.Selected = row.ValidationStatus == dto.ValidationNew
		validated = append(validated, row)
	}

	return validated, classes, nil
}

// Commit re-validates the submitted rows and inserts the selected ones one at
// a time. Duplicates are inserted when the operator selected them; error rows
// never are.
func (s *studentImportService) Commit(ctx context.Context, payload dto.StudentImportCommitRequest, actor ActivityActor) (dto.ImportCommitResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ImportCommitResult{}, err
	}
	importID, err := resolveImportID(payload.ImportID)
	if err != nil {
		return dto.ImportCommitResult{}, err
	}

	ctx = commitContext(ctx)
	tracer := otel.Tracer("github.com/noah-isme/gema-school-api/internal/service/student_import")
	ctx, span := tracer.Start(ctx, "imports.students.commit")
	span.SetAttributes(
		attribute.String("import.id", importID),
		attribute.Int("import.rows", len(payload.Rows)),
	)
	defer span.End()

	validated, classes, err := s.validate(ctx, payload.Rows, actor)
	if err != nil {
		span.RecordError(err)
		return dto.ImportCommitResult{}, err
	}

	selected := make([]dto.StudentImportRow, 0, len(validated))
	for i, row := range validated {
		if row.ValidationStatus == dto.ValidationError || !payload.Rows[i].Selected {
			continue
		}
		selected = append(selected, row)
	}

	ledger := newImportLedger(importID, dto.ImportEntityStudents, len(selected), len(validated)-len(selected), s.progress, s.logger)
	for _, row := range selected {
		outcome := dto.ImportRowOutcome{Line: row.Line, Label: row.Name}

		student := models.Student{Name: row.Name, Email: row.Email, YearGroup: row.YearGroup}
		if err := s.students.Create(ctx, &student); err != nil {
			ledger.fail(ctx, outcome, err)
			continue
		}
		id := student.ID
		outcome.ID = &id

		if row.ClassName != "" {
			class, ok := classes[strings.ToLower(row.ClassName)]
			if !ok || class.ID == 0 {
				ledger.fail(ctx, outcome, fmt.Errorf("student created but class %q not found", row.ClassName))
				continue
			}
			if err := s.classes.Enroll(ctx, class.ID, student.ID); err != nil {
				ledger.fail(ctx, outcome, fmt.Errorf("student created but enrolment failed: %w", err))
				continue
			}
		}

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
		Msg("student import committed")

	if s.activity != nil {
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:       actor.ID,
			ActorRole:     actor.Role,
			Action:        ActionStudentsImported,
			ImportID:      importID,
			EntityType:    dto.ImportEntityStudents,
			CorrelationID: actor.CorrelationID,
			Metadata:      ledger.activityMetadata(),
		})
	}

	return result, nil
}

func countStudentRows(rows []dto.StudentImportRow) dto.ValidationCounts {
	statuses := make([]string, 0, len(rows))
	for _, row := range rows {
		statuses = append(statuses, row.ValidationStatus)
	}
	return tallyStatuses(statuses)
}
