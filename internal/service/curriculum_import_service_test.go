package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/importer"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/repository"
)

type failingCurriculumRepo struct {
	repository.CurriculumRepository
	failLevel models.CurriculumLevel
	inserts   map[models.CurriculumLevel]int
}

func (f *failingCurriculumRepo) CreateEntries(ctx context.Context, level models.CurriculumLevel, entries []repository.CurriculumEntry) ([]repository.CurriculumEntry, error) {
	if f.inserts == nil {
		f.inserts = make(map[models.CurriculumLevel]int)
	}
	f.inserts[level]++
	if level == f.failLevel {
		return nil, errors.New("duplicate key value violates unique constraint \"idx_topics_parent_name\"")
	}
	return f.CurriculumRepository.CreateEntries(ctx, level, entries)
}

func newCurriculumFixture(t *testing.T, failLevel models.CurriculumLevel) (CurriculumImportService, *gorm.DB, *failingCurriculumRepo, *memoryActivityRepo) {
	t.Helper()
	db := setupServiceDB(t)
	repo := &failingCurriculumRepo{CurriculumRepository: repository.NewCurriculumRepository(db), failLevel: failLevel}
	activityRepo := &memoryActivityRepo{}
	activity := NewActivityService(activityRepo, testLogger())
	svc := NewCurriculumImportService(repo, validator.New(validator.WithRequiredStructEnabled()), activity, testLogger())
	return svc, db, repo, activityRepo
}

func gcseRows() []dto.CurriculumRow {
	return []dto.CurriculumRow{
		{Line: 2, Qualification: "GCSE", Board: "AQA", Subject: "Maths"},
		{Line: 3, Qualification: "gcse", Board: "aqa", Subject: "Physics"},
	}
}

func TestCurriculumReconcileCreatesEachNodeOnce(t *testing.T) {
	svc, db, _, activityRepo := newCurriculumFixture(t, "")

	result, err := svc.Reconcile(context.Background(), gcseRows(), ActivityActor{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, 2, result.RowsProcessed)
	require.Equal(t, dto.LevelSummary{Created: 1}, result.Levels["qualification"])
	require.Equal(t, dto.LevelSummary{Created: 1}, result.Levels["board"])
	require.Equal(t, dto.LevelSummary{Created: 2}, result.Levels["subject"])
	require.Equal(t, dto.LevelSummary{}, result.Levels["topic"])
	require.Empty(t, result.Issues)

	var qualifications []models.Qualification
	require.NoError(t, db.Find(&qualifications).Error)
	require.Len(t, qualifications, 1)
	require.Equal(t, "GCSE", qualifications[0].Name, "first spelling wins")

	var boards []models.Board
	require.NoError(t, db.Find(&boards).Error)
	require.Len(t, boards, 1)
	require.Equal(t, qualifications[0].ID, boards[0].QualificationID)

	var subjects []models.Subject
	require.NoError(t, db.Order("id").Find(&subjects).Error)
	require.Len(t, subjects, 2)
	for _, subject := range subjects {
		require.Equal(t, boards[0].ID, subject.BoardID)
	}

	require.Len(t, activityRepo.entries, 1)
	require.Equal(t, ActionCurriculumImported, activityRepo.entries[0].Action)
}

func TestCurriculumReconcileIsIdempotent(t *testing.T) {
	svc, db, repo, _ := newCurriculumFixture(t, "")
	ctx := context.Background()

	_, err := svc.Reconcile(ctx, gcseRows(), ActivityActor{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	inserts := repo.inserts[models.LevelSubject]

	result, err := svc.Reconcile(ctx, gcseRows(), ActivityActor{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, dto.LevelSummary{Existing: 2}, result.Levels["qualification"])
	require.Equal(t, dto.LevelSummary{Existing: 2}, result.Levels["board"])
	require.Equal(t, dto.LevelSummary{Existing: 2}, result.Levels["subject"])
	require.Equal(t, inserts, repo.inserts[models.LevelSubject], "no insert issued on the second run")

	var subjects int64
	require.NoError(t, db.Model(&models.Subject{}).Count(&subjects).Error)
	require.Equal(t, int64(2), subjects)
}

func TestCurriculumReconcileScopesNamesByParent(t *testing.T) {
	svc, db, _, _ := newCurriculumFixture(t, "")

	result, err := svc.Reconcile(context.Background(), []dto.CurriculumRow{
		{Line: 2, Qualification: "GCSE", Board: "AQA", Subject: "Maths", Topic: "Algebra"},
		{Line: 3, Qualification: "A-Level", Board: "AQA", Subject: "Maths", Topic: "Algebra"},
	}, ActivityActor{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, 2, result.Levels["board"].Created)
	require.Equal(t, 2, result.Levels["subject"].Created)
	require.Equal(t, 2, result.Levels["topic"].Created)

	var topics []models.Topic
	require.NoError(t, db.Find(&topics).Error)
	require.Len(t, topics, 2)
	require.NotEqual(t, topics[0].SubjectID, topics[1].SubjectID)
}

func TestCurriculumReconcileWarnsOnBrokenPaths(t *testing.T) {
	svc, db, _, _ := newCurriculumFixture(t, "")

	result, err := svc.Reconcile(context.Background(), []dto.CurriculumRow{
		{Line: 2, Qualification: "GCSE", Board: "AQA", Subject: "Maths"},
		{Line: 3, Qualification: "GCSE", Subject: "Biology", Topic: "Cells"},
		{Line: 4, Board: "OCR", Subject: "Chemistry"},
	}, ActivityActor{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)

	require.Equal(t, dto.LevelSummary{Created: 1, Existing: 0, Skipped: 1}, result.Levels["qualification"])
	require.Equal(t, 1, result.Levels["board"].Skipped)
	require.Equal(t, 2, result.Levels["subject"].Skipped)
	require.Equal(t, 1, result.Levels["topic"].Skipped)

	require.Len(t, result.Issues, 2)
	require.Equal(t, 3, result.Issues[1].Line)
	require.Equal(t, dto.IssueWarning, result.Issues[1].Severity)
	require.Equal(t, "subject", result.Issues[1].Level)
	require.Equal(t, 4, result.Issues[0].Line)
	require.Equal(t, dto.IssueError, result.Issues[0].Severity)

	var subjects int64
	require.NoError(t, db.Model(&models.Subject{}).Count(&subjects).Error)
	require.Equal(t, int64(1), subjects)
}

func TestCurriculumReconcileAbortsOnInsertFailure(t *testing.T) {
	svc, db, repo, activityRepo := newCurriculumFixture(t, models.LevelTopic)

	result, err := svc.Reconcile(context.Background(), []dto.CurriculumRow{
		{Line: 2, Qualification: "GCSE", Board: "AQA", Subject: "Maths", Topic: "Algebra", Subtopic: "Quadratics"},
	}, ActivityActor{ID: 1, Role: models.RoleAdmin})

	var insertErr *CurriculumInsertError
	require.ErrorAs(t, err, &insertErr)
	require.Equal(t, models.LevelTopic, insertErr.Level)
	require.Contains(t, err.Error(), "idx_topics_parent_name")
	require.Equal(t, 1, result.Levels["subject"].Created)
	require.Zero(t, repo.inserts[models.LevelSubtopic], "deeper levels are not attempted")

	var subjects int64
	require.NoError(t, db.Model(&models.Subject{}).Count(&subjects).Error)
	require.Equal(t, int64(1), subjects, "earlier levels stay committed")

	require.Len(t, activityRepo.entries, 1)
	require.Equal(t, "topic", activityRepo.entries[0].Metadata["failed_level"])
}

func TestCurriculumReconcileRejectsEmptyInput(t *testing.T) {
	svc, _, _, _ := newCurriculumFixture(t, "")
	_, err := svc.Reconcile(context.Background(), nil, ActivityActor{ID: 1, Role: models.RoleAdmin})
	require.ErrorIs(t, err, ErrImportEmpty)
}

func TestCurriculumPreviewMapsHeadersAndFlagsShape(t *testing.T) {
	svc, db, _, _ := newCurriculumFixture(t, "")

	table, err := importer.Parse("curriculum.csv", []byte(strings.Join([]string{
		"Qualification,Exam Board,Subject Name,Unit,Sub Topic",
		"GCSE,AQA,Maths,Algebra,Quadratics",
		"GCSE,,Maths,,",
		",AQA,,,",
	}, "\n")))
	require.NoError(t, err)

	preview, err := svc.Preview(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, preview.Rows, 3)
	require.Equal(t, "Quadratics", preview.Rows[0].Subtopic)
	require.Equal(t, "Algebra", preview.Rows[0].Topic)
	require.Len(t, preview.Issues, 2)
	require.Equal(t, dto.IssueWarning, preview.Issues[0].Severity)
	require.Equal(t, dto.IssueError, preview.Issues[1].Severity)

	var qualifications int64
	require.NoError(t, db.Model(&models.Qualification{}).Count(&qualifications).Error)
	require.Zero(t, qualifications, "preview never writes")
}
