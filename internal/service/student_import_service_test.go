package service

import (
	"context"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/importer"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/repository"
)

type recordingProgress struct {
	mu     sync.Mutex
	events []dto.ImportProgressEvent
}

func (r *recordingProgress) Publish(ctx context.Context, event dto.ImportProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func newStudentImportFixture(t *testing.T, options ImportOptions) (StudentImportService, *gorm.DB, *recordingProgress, *memoryActivityRepo) {
	t.Helper()
	db := setupServiceDB(t)
	progress := &recordingProgress{}
	activity := &memoryActivityRepo{}
	svc := NewStudentImportService(
		repository.NewStudentRepository(db),
		repository.NewClassRepository(db),
		validator.New(validator.WithRequiredStructEnabled()),
		progress,
		NewActivityService(activity, testLogger()),
		options,
		testLogger(),
	)
	return svc, db, progress, activity
}

func TestStudentImportPreviewFlagsStoredDuplicatesByName(t *testing.T) {
	svc, db, _, _ := newStudentImportFixture(t, ImportOptions{})
	require.NoError(t, db.Create(&models.Student{Name: "Jane Doe"}).Error)

	table, err := importer.Parse("students.csv", []byte("Student Name,School Year\nJane Doe,10\nJohn Smith,11\n,9\n"))
	require.NoError(t, err)

	preview, err := svc.Preview(context.Background(), table, ActivityActor{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, preview.Rows, 3)

	require.Equal(t, "Jane Doe", preview.Rows[0].Name)
	require.Equal(t, dto.ValidationDuplicate, preview.Rows[0].ValidationStatus)
	require.False(t, preview.Rows[0].Selected)

	require.Equal(t, dto.ValidationNew, preview.Rows[1].ValidationStatus)
	require.Equal(t, "11", preview.Rows[1].YearGroup)
	require.True(t, preview.Rows[1].Selected)

	require.Equal(t, dto.ValidationError, preview.Rows[2].ValidationStatus)
	require.Contains(t, preview.Rows[2].Errors, "name is required")
	require.Equal(t, 4, preview.Rows[2].Line)

	require.Equal(t, dto.ValidationCounts{Total: 3, New: 1, Duplicate: 1, Error: 1}, preview.Counts)
}

func TestStudentImportPreviewRequiresNameColumn(t *testing.T) {
	svc, _, _, _ := newStudentImportFixture(t, ImportOptions{})
	table, err := importer.Parse("students.csv", []byte("Email\njane@school.test\n"))
	require.NoError(t, err)

	_, err = svc.Preview(context.Background(), table, ActivityActor{Role: models.RoleAdmin})
	var missing *importer.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []string{importer.FieldName}, missing.Missing)
}

func TestStudentImportWithinFileDuplicatesFollowOption(t *testing.T) {
	rows := []dto.StudentImportRow{{Line: 2, Name: "Sam Lee"}, {Line: 3, Name: "sam lee"}}

	svc, _, _, _ := newStudentImportFixture(t, ImportOptions{})
	validated, err := svc.Validate(context.Background(), rows, ActivityActor{Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, dto.ValidationNew, validated[0].ValidationStatus)
	require.Equal(t, dto.ValidationNew, validated[1].ValidationStatus)

	flagging, _, _, _ := newStudentImportFixture(t, ImportOptions{FlagFileDuplicates: true})
	validated, err = flagging.Validate(context.Background(), rows, ActivityActor{Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, dto.ValidationNew, validated[0].ValidationStatus)
	require.Equal(t, dto.ValidationDuplicate, validated[1].ValidationStatus)
}

func TestStudentImportValidateRestrictsTeacherToOwnClasses(t *testing.T) {
	svc, db, _, _ := newStudentImportFixture(t, ImportOptions{})
	mine := models.Class{Name: "7B", TeacherID: 1}
	theirs := models.Class{Name: "7C", TeacherID: 2}
	require.NoError(t, db.Create(&mine).Error)
	require.NoError(t, db.Create(&theirs).Error)

	validated, err := svc.Validate(context.Background(), []dto.StudentImportRow{
		{Line: 2, Name: "Ana", ClassName: "7b"},
		{Line: 3, Name: "Ben", ClassName: "7C"},
	}, ActivityActor{ID: 5, Role: models.RoleTeacher, TeacherID: 1})
	require.NoError(t, err)
	require.Equal(t, dto.ValidationNew, validated[0].ValidationStatus)
	require.Equal(t, dto.ValidationError, validated[1].ValidationStatus)
}

func TestStudentImportCommitInsertsSelectedRowsSequentially(t *testing.T) {
	svc, db, progress, activity := newStudentImportFixture(t, ImportOptions{})
	require.NoError(t, db.Create(&models.Student{Name: "Jane Doe"}).Error)
	class := models.Class{Name: "8A", TeacherID: 1}
	require.NoError(t, db.Create(&class).Error)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Commit(ctx, dto.StudentImportCommitRequest{
		ImportID: "6f1c2b1e-8a51-4c1e-9a0e-5d1b3b1f0a11",
		Rows: []dto.StudentImportRow{
			{Line: 2, Name: "Jane Doe", Selected: true},
			{Line: 3, Name: "John Smith", ClassName: "8a", Selected: true},
			{Line: 4, Name: "", Selected: true},
			{Line: 5, Name: "Kim Park", Selected: false},
		},
	}, ActivityActor{ID: 1, Role: models.RoleAdmin, CorrelationID: "corr-9"})
	require.NoError(t, err, "a cancelled request must not abandon the import")

	require.Equal(t, "6f1c2b1e-8a51-4c1e-9a0e-5d1b3b1f0a11", result.ImportID)
	require.Equal(t, 2, result.Total)
	require.Equal(t, 2, result.Succeeded)
	require.Equal(t, 0, result.Failed)
	require.Equal(t, 2, result.Skipped)
	require.Equal(t, 3, result.Rows[1].Line)

	var count int64
	require.NoError(t, db.Model(&models.Student{}).Where("LOWER(name) = ?", "jane doe").Count(&count).Error)
	require.Equal(t, int64(2), count, "forced duplicate is inserted for students")

	var enrolled int64
	require.NoError(t, db.Model(&models.ClassStudent{}).Where("class_id = ?", class.ID).Count(&enrolled).Error)
	require.Equal(t, int64(1), enrolled)

	require.Len(t, progress.events, 3)
	require.Equal(t, 1, progress.events[0].Processed)
	require.True(t, progress.events[2].Done)
	require.Equal(t, 2, progress.events[2].Succeeded)

	require.Len(t, activity.entries, 1)
	require.Equal(t, ActionStudentsImported, activity.entries[0].Action)
	require.Equal(t, "corr-9", activity.entries[0].CorrelationID)
	require.Equal(t, result.ImportID, activity.entries[0].ImportID)
}

func TestStudentImportCommitRejectsBadImportID(t *testing.T) {
	svc, _, _, _ := newStudentImportFixture(t, ImportOptions{})
	_, err := svc.Commit(context.Background(), dto.StudentImportCommitRequest{
		ImportID: "not-a-uuid",
		Rows:     []dto.StudentImportRow{{Line: 2, Name: "A", Selected: true}},
	}, ActivityActor{Role: models.RoleAdmin})
	require.Error(t, err)
}

type countingClassRepo struct {
	repository.ClassRepository
	lookups  int
	enrolled []uint
}

func (r *countingClassRepo) FindByNames(ctx context.Context, names []string, teacherID *uint) (map[string]models.Class, error) {
	r.lookups++
	return r.ClassRepository.FindByNames(ctx, names, teacherID)
}

func (r *countingClassRepo) Enroll(ctx context.Context, classID, studentID uint) error {
	r.enrolled = append(r.enrolled, classID)
	return r.ClassRepository.Enroll(ctx, classID, studentID)
}

func TestStudentImportCommitEnrolsAgainstValidatedClasses(t *testing.T) {
	db := setupServiceDB(t)
	class := models.Class{Name: "9B", TeacherID: 1}
	require.NoError(t, db.Create(&class).Error)

	classes := &countingClassRepo{ClassRepository: repository.NewClassRepository(db)}
	svc := NewStudentImportService(
		repository.NewStudentRepository(db),
		classes,
		validator.New(validator.WithRequiredStructEnabled()),
		&recordingProgress{},
		NewActivityService(&memoryActivityRepo{}, testLogger()),
		ImportOptions{},
		testLogger(),
	)

	result, err := svc.Commit(context.Background(), dto.StudentImportCommitRequest{
		Rows: []dto.StudentImportRow{
			{Line: 2, Name: "Lena Ortiz", ClassName: "9b", Selected: true},
			{Line: 3, Name: "Omar Haddad", ClassName: "9B", Selected: true},
			{Line: 4, Name: "Nia Brooks", ClassName: "12Z", Selected: true},
		},
	}, ActivityActor{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)

	require.Equal(t, 1, classes.lookups)
	require.Equal(t, []uint{class.ID, class.ID}, classes.enrolled)
	require.Equal(t, 2, result.Succeeded)
	require.Equal(t, 1, result.Skipped, "unknown class is a validation error and never inserted")
}
