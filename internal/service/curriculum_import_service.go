package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/importer"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/observability"
	"github.com/noah-isme/gema-school-api/internal/repository"
)

// CurriculumInsertError reports the level whose bulk insert failed. Levels
// processed before it stay committed.
type CurriculumInsertError struct {
	Level  models.CurriculumLevel
	Result dto.CurriculumImportResult
	Err    error
}

func (e *CurriculumInsertError) Error() string {
	return e.Err.Error()
}

func (e *CurriculumInsertError) Unwrap() error {
	return e.Err
}

// CurriculumImportService reconciles qualification to subtopic hierarchies.
type CurriculumImportService interface {
	Preview(ctx context.Context, table importer.Table) (dto.CurriculumPreview, error)
	Reconcile(ctx context.Context, rows []dto.CurriculumRow, actor ActivityActor) (dto.CurriculumImportResult, error)
}

type curriculumImportService struct {
	repo      repository.CurriculumRepository
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
}

// NewCurriculumImportService constructs the curriculum reconciler.
func NewCurriculumImportService(repo repository.CurriculumRepository, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) CurriculumImportService {
	return &curriculumImportService{
		repo:      repo,
		validator: validate,
		activity:  activity,
		logger:    logger.With().Str("component", "curriculum_import_service").Logger(),
	}
}

type curriculumKey struct {
	parent uint
	name   string
}

// curriculumPath tracks one row while it descends the hierarchy.
type curriculumPath struct {
	row    dto.CurriculumRow
	names  []string
	parent uint
	// ended is set once a level is empty; deeper names are then ignored.
	ended   bool
	blocked bool
}

func curriculumNameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (s *curriculumImportService) Preview(_ context.Context, table importer.Table) (dto.CurriculumPreview, error) {
	columns, err := importer.CurriculumColumns.Resolve(table.Headers, importer.FieldQualification)
	if err != nil {
		return dto.CurriculumPreview{}, err
	}
	if err := ensureRows(table); err != nil {
		return dto.CurriculumPreview{}, err
	}

	rows := make([]dto.CurriculumRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		rows = append(rows, dto.CurriculumRow{
			Line:          row.Line,
			Qualification: columns.Value(row.Cells, importer.FieldQualification),
			Board:         columns.Value(row.Cells, importer.FieldBoard),
			Subject:       columns.Value(row.Cells, importer.FieldSubject),
			Topic:         columns.Value(row.Cells, importer.FieldTopic),
			Subtopic:      columns.Value(row.Cells, importer.FieldSubtopic),
		})
	}

	issues := make([]dto.CurriculumIssue, 0)
	for _, row := range rows {
		issues = append(issues, rowShapeIssues(row)...)
	}

	return dto.CurriculumPreview{Rows: rows, Issues: issues}, nil
}

// rowShapeIssues flags a missing qualification and names placed below an
// empty level.
func rowShapeIssues(row dto.CurriculumRow) []dto.CurriculumIssue {
	names := row.Names()
	if strings.TrimSpace(names[0]) == "" {
		return []dto.CurriculumIssue{{
			Line:     row.Line,
			Level:    string(models.LevelQualification),
			Severity: dto.IssueError,
			Message:  "qualification is required",
		}}
	}

	for depth := 1; depth < len(names); depth++ {
		if strings.TrimSpace(names[depth]) != "" {
			continue
		}
		for deeper := depth + 1; deeper < len(names); deeper++ {
			if strings.TrimSpace(names[deeper]) != "" {
				return []dto.CurriculumIssue{{
					Line:     row.Line,
					Level:    string(models.CurriculumLevels[deeper]),
					Severity: dto.IssueWarning,
					Message:  fmt.Sprintf("%s given without a %s, row skipped from %s down", models.CurriculumLevels[deeper], models.CurriculumLevels[depth], models.CurriculumLevels[deeper]),
				}}
			}
		}
		break
	}
	return nil
}

// Reconcile walks the hierarchy one level at a time. Each level preloads the
// nodes under the parents resolved so far, inserts the missing ones once per
// (parent, name) and feeds the merged ids to the next level.
func (s *curriculumImportService) Reconcile(ctx context.Context, rows []dto.CurriculumRow, actor ActivityActor) (dto.CurriculumImportResult, error) {
	if len(rows) == 0 {
		return dto.CurriculumImportResult{}, ErrImportEmpty
	}
	if err := s.validator.Struct(dto.CurriculumCommitRequest{Rows: rows}); err != nil {
		return dto.CurriculumImportResult{}, err
	}

	ctx = commitContext(ctx)
	tracer := otel.Tracer("github.com/noah-isme/gema-school-api/internal/service/curriculum_import")
	ctx, span := tracer.Start(ctx, "imports.curriculum.reconcile")
	span.SetAttributes(attribute.Int("import.rows", len(rows)))
	defer span.End()

	result := dto.CurriculumImportResult{
		RowsProcessed: len(rows),
		Levels:        make(map[string]dto.LevelSummary, len(models.CurriculumLevels)),
		Issues:        make([]dto.CurriculumIssue, 0),
	}

	paths := make([]*curriculumPath, 0, len(rows))
	for _, row := range rows {
		names := row.Names()
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		paths = append(paths, &curriculumPath{row: row, names: names})
	}

	for depth, level := range models.CurriculumLevels {
		summary, err := s.reconcileLevel(ctx, depth, level, paths, &result)
		result.Levels[string(level)] = summary
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "curriculum_insert_failed")
			s.logger.Error().Err(err).Str("level", string(level)).Msg("curriculum import aborted")
			s.recordActivity(ctx, actor, result, string(level))
			return result, &CurriculumInsertError{Level: level, Result: result, Err: err}
		}
	}

	s.logger.Info().
		Int("rows", result.RowsProcessed).
		Int("issues", len(result.Issues)).
		Msg("curriculum import reconciled")
	s.recordActivity(ctx, actor, result, "")

	return result, nil
}

func (s *curriculumImportService) reconcileLevel(ctx context.Context, depth int, level models.CurriculumLevel, paths []*curriculumPath, result *dto.CurriculumImportResult) (dto.LevelSummary, error) {
	summary := dto.LevelSummary{}

	active := make([]*curriculumPath, 0, len(paths))
	parentSet := make(map[uint]bool)
	for _, path := range paths {
		name := path.names[depth]
		switch {
		case path.blocked:
			if name != "" {
				summary.Skipped++
			}
			continue
		case name == "" && depth == 0:
			path.blocked = true
			result.Issues = append(result.Issues, dto.CurriculumIssue{
				Line:     path.row.Line,
				Level:    string(level),
				Severity: dto.IssueError,
				Message:  "qualification is required",
			})
			summary.Skipped++
			continue
		case name == "":
			path.ended = true
			continue
		case path.ended:
			path.blocked = true
			summary.Skipped++
			result.Issues = append(result.Issues, dto.CurriculumIssue{
				Line:     path.row.Line,
				Level:    string(level),
				Severity: dto.IssueWarning,
				Message:  fmt.Sprintf("%s %q has no %s, row skipped from %s down", level, name, models.CurriculumLevels[depth-1], level),
			})
			continue
		}
		active = append(active, path)
		parentSet[path.parent] = true
	}

	if len(active) == 0 {
		return summary, nil
	}

	parentIDs := make([]uint, 0, len(parentSet))
	for id := range parentSet {
		parentIDs = append(parentIDs, id)
	}

	existing, err := s.repo.ListEntries(ctx, level, parentIDs)
	if err != nil {
		return summary, err
	}
	lookup := make(map[curriculumKey]uint, len(existing))
	for _, entry := range existing {
		lookup[curriculumKey{parent: entry.ParentID, name: entry.NameKey}] = entry.ID
	}

	pending := make([]repository.CurriculumEntry, 0)
	queued := make(map[curriculumKey]bool)
	for _, path := range active {
		key := curriculumKey{parent: path.parent, name: curriculumNameKey(path.names[depth])}
		if _, ok := lookup[key]; ok {
			summary.Existing++
			continue
		}
		if queued[key] {
			continue
		}
		queued[key] = true
		pending = append(pending, repository.CurriculumEntry{
			ParentID: key.parent,
			Name:     path.names[depth],
			NameKey:  key.name,
		})
	}

	if len(pending) > 0 {
		created, err := s.repo.CreateEntries(ctx, level, pending)
		if err != nil {
			return summary, err
		}
		for _, entry := range created {
			lookup[curriculumKey{parent: entry.ParentID, name: entry.NameKey}] = entry.ID
		}
		summary.Created = len(created)
		observability.CurriculumInserted().WithLabelValues(string(level)).Add(float64(len(created)))
	}

	for _, path := range active {
		id, ok := lookup[curriculumKey{parent: path.parent, name: curriculumNameKey(path.names[depth])}]
		if !ok {
			path.blocked = true
			summary.Skipped++
			result.Issues = append(result.Issues, dto.CurriculumIssue{
				Line:     path.row.Line,
				Level:    string(level),
				Severity: dto.IssueWarning,
				Message:  fmt.Sprintf("%s %q could not be resolved, row skipped from %s down", level, path.names[depth], level),
			})
			continue
		}
		path.parent = id
	}

	return summary, nil
}

func (s *curriculumImportService) recordActivity(ctx context.Context, actor ActivityActor, result dto.CurriculumImportResult, failedLevel string) {
	if s.activity == nil {
		return
	}

	levels := make(map[string]interface{}, len(result.Levels))
	for level, summary := range result.Levels {
		levels[level] = map[string]interface{}{
			"created":  summary.Created,
			"existing": summary.Existing,
			"skipped":  summary.Skipped,
		}
	}
	metadata := map[string]interface{}{
		"rows":   result.RowsProcessed,
		"levels": levels,
		"issues": len(result.Issues),
	}
	if failedLevel != "" {
		metadata["failed_level"] = failedLevel
	}

	_, _ = s.activity.Record(ctx, ActivityEntry{
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		Action:        ActionCurriculumImported,
		EntityType:    dto.ImportEntityCurriculum,
		CorrelationID: actor.CorrelationID,
		Metadata:      metadata,
	})
}
