package dto

import "time"

// Validation states assigned to every imported row.
const (
	ValidationNew       = "new"
	ValidationDuplicate = "duplicate"
	ValidationError     = "error"
)

// Entity names used in import results and progress events.
const (
	ImportEntityStudents   = "students"
	ImportEntityTeachers   = "teachers"
	ImportEntityCurriculum = "curriculum"
)

// StudentImportRow is one parsed student line.
type StudentImportRow struct {
	Line             int      `json:"line" validate:"min=1"`
	Name             string   `json:"name"`
	Email            string   `json:"email"`
	YearGroup        string   `json:"year_group"`
	ClassName        string   `json:"class_name"`
	ValidationStatus string   `json:"validation_status"`
	Errors           []string `json:"errors"`
	Selected         bool     `json:"selected"`
}

// TeacherImportRow is one parsed teacher line.
type TeacherImportRow struct {
	Line             int      `json:"line" validate:"min=1"`
	Name             string   `json:"name"`
	Email            string   `json:"email"`
	Subject          string   `json:"subject"`
	Password         string   `json:"password,omitempty"`
	ValidationStatus string   `json:"validation_status"`
	Errors           []string `json:"errors"`
	Selected         bool     `json:"selected"`
}

// ValidationCounts tallies row states in a preview.
type ValidationCounts struct {
	Total     int `json:"total"`
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Error     int `json:"error"`
}

// StudentImportPreview is the validated content of a student upload.
type StudentImportPreview struct {
	Rows   []StudentImportRow `json:"rows"`
	Counts ValidationCounts   `json:"counts"`
}

// TeacherImportPreview is the validated content of a teacher upload.
type TeacherImportPreview struct {
	Rows   []TeacherImportRow `json:"rows"`
	Counts ValidationCounts   `json:"counts"`
}

// StudentImportCommitRequest carries the operator-confirmed student rows.
type StudentImportCommitRequest struct {
	ImportID string             `json:"import_id" validate:"omitempty,uuid"`
	Rows     []StudentImportRow `json:"rows" validate:"required,min=1,dive"`
}

// TeacherImportCommitRequest carries the operator-confirmed teacher rows.
type TeacherImportCommitRequest struct {
	ImportID string             `json:"import_id" validate:"omitempty,uuid"`
	Rows     []TeacherImportRow `json:"rows" validate:"required,min=1,dive"`
}

// ImportRowOutcome records what happened to one row during commit.
type ImportRowOutcome struct {
	Line              int    `json:"line"`
	Label             string `json:"label"`
	Success           bool   `json:"success"`
	ID                *uint  `json:"id,omitempty"`
	Error             string `json:"error,omitempty"`
	TemporaryPassword string `json:"temporary_password,omitempty"`
}

// ImportCommitResult is the ledger of a sequential commit.
type ImportCommitResult struct {
	ImportID  string             `json:"import_id"`
	Entity    string             `json:"entity"`
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Skipped   int                `json:"skipped"`
	Rows      []ImportRowOutcome `json:"rows"`
}

// ImportProgressEvent is published after each committed row.
type ImportProgressEvent struct {
	ImportID  string    `json:"import_id"`
	Entity    string    `json:"entity"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Line      int       `json:"line,omitempty"`
	Done      bool      `json:"done"`
	At        time.Time `json:"at"`
}

// CurriculumRow is one spreadsheet line describing a hierarchy path.
type CurriculumRow struct {
	Line          int    `json:"line" validate:"min=1"`
	Qualification string `json:"qualification"`
	Board         string `json:"board"`
	Subject       string `json:"subject"`
	Topic         string `json:"topic"`
	Subtopic      string `json:"subtopic"`
}

// Names returns the row's level names in parent-to-child order.
func (r CurriculumRow) Names() []string {
	return []string{r.Qualification, r.Board, r.Subject, r.Topic, r.Subtopic}
}

// Issue severities for curriculum rows.
const (
	IssueError   = "error"
	IssueWarning = "warning"
)

// CurriculumIssue is a per-row problem found while reconciling.
type CurriculumIssue struct {
	Line     int    `json:"line"`
	Level    string `json:"level"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// CurriculumPreview is the parsed content of a curriculum upload.
type CurriculumPreview struct {
	Rows   []CurriculumRow   `json:"rows"`
	Issues []CurriculumIssue `json:"issues"`
}

// CurriculumCommitRequest carries rows to reconcile.
type CurriculumCommitRequest struct {
	Rows []CurriculumRow `json:"rows" validate:"required,min=1,dive"`
}

// LevelSummary counts reconciler outcomes for one hierarchy level.
type LevelSummary struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Skipped  int `json:"skipped"`
}

// CurriculumImportResult is the reconciler output.
type CurriculumImportResult struct {
	RowsProcessed int                     `json:"rows_processed"`
	Levels        map[string]LevelSummary `json:"levels"`
	Issues        []CurriculumIssue       `json:"issues"`
}
