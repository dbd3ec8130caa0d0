package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/importer"
	"github.com/noah-isme/gema-school-api/internal/observability"
)

// ErrImportEmpty indicates an upload with a header row but no data rows.
var ErrImportEmpty = errors.New("import contains no rows")

// ErrInvalidImportID indicates a client supplied import id that is not a uuid.
var ErrInvalidImportID = errors.New("import id must be a uuid")

// ImportOptions tunes duplicate handling for flat imports.
type ImportOptions struct {
	FlagFileDuplicates bool
}

// importLedger accumulates per-row outcomes of a sequential commit and
// publishes progress after each row.
type importLedger struct {
	result   dto.ImportCommitResult
	progress ProgressPublisher
	logger   zerolog.Logger
}

func newImportLedger(importID, entity string, total, skipped int, progress ProgressPublisher, logger zerolog.Logger) *importLedger {
	return &importLedger{
		result: dto.ImportCommitResult{
			ImportID: importID,
			Entity:   entity,
			Total:    total,
			Skipped:  skipped,
			Rows:     make([]dto.ImportRowOutcome, 0, total),
		},
		progress: progress,
		logger:   logger,
	}
}

func (l *importLedger) succeed(ctx context.Context, outcome dto.ImportRowOutcome) {
	outcome.Success = true
	l.result.Succeeded++
	l.record(ctx, outcome, "succeeded")
}

func (l *importLedger) fail(ctx context.Context, outcome dto.ImportRowOutcome, err error) {
	outcome.Success = false
	outcome.Error = err.Error()
	l.result.Failed++
	l.logger.Warn().Err(err).Int("line", outcome.Line).Str("import_id", l.result.ImportID).Msg("import row failed")
	l.record(ctx, outcome, "failed")
}

func (l *importLedger) record(ctx context.Context, outcome dto.ImportRowOutcome, label string) {
	l.result.Rows = append(l.result.Rows, outcome)
	observability.ImportRows().WithLabelValues(l.result.Entity, label).Inc()
	l.publish(ctx, outcome.Line, false)
}

func (l *importLedger) finish(ctx context.Context) dto.ImportCommitResult {
	l.publish(ctx, 0, true)
	return l.result
}

func (l *importLedger) publish(ctx context.Context, line int, done bool) {
	if l.progress == nil {
		return
	}
	l.progress.Publish(ctx, dto.ImportProgressEvent{
		ImportID:  l.result.ImportID,
		Entity:    l.result.Entity,
		Processed: len(l.result.Rows),
		Total:     l.result.Total,
		Succeeded: l.result.Succeeded,
		Failed:    l.result.Failed,
		Line:      line,
		Done:      done,
	})
}

// activityMetadata summarises the ledger for the audit trail.
func (l *importLedger) activityMetadata() map[string]interface{} {
	failures := make([]map[string]interface{}, 0, l.result.Failed)
	for _, row := range l.result.Rows {
		if row.Success {
			continue
		}
		failures = append(failures, map[string]interface{}{
			"line":  row.Line,
			"label": row.Label,
			"error": row.Error,
		})
	}
	return map[string]interface{}{
		"import_id": l.result.ImportID,
		"total":     l.result.Total,
		"succeeded": l.result.Succeeded,
		"failed":    l.result.Failed,
		"skipped":   l.result.Skipped,
		"failures":  failures,
	}
}

func resolveImportID(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return uuid.NewString(), nil
	}
	parsed, err := uuid.Parse(requested)
	if err != nil {
		return "", ErrInvalidImportID
	}
	return parsed.String(), nil
}

// commitContext keeps request values but drops cancellation so a client
// disconnect cannot abandon a half-written import.
func commitContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func tallyStatuses(statuses []string) dto.ValidationCounts {
	counts := dto.ValidationCounts{Total: len(statuses)}
	for _, status := range statuses {
		switch status {
		case dto.ValidationNew:
			counts.New++
		case dto.ValidationDuplicate:
			counts.Duplicate++
		case dto.ValidationError:
			counts.Error++
		}
	}
	return counts
}

func statusFor(errs []string, duplicate bool) string {
	switch {
	case len(errs) > 0:
		return dto.ValidationError
	case duplicate:
		return dto.ValidationDuplicate
	default:
		return dto.ValidationNew
	}
}

func ensureRows(table importer.Table) error {
	if len(table.Rows) == 0 {
		return ErrImportEmpty
	}
	return nil
}
