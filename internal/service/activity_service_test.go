package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/repository"
)

type memoryActivityRepo struct {
	entries []models.ActivityLog
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

func TestActivityServiceRecordMasksPasswords(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	entry, err := svc.Record(context.Background(), ActivityEntry{
		ActorID:       1,
		ActorRole:     "Admin",
		Action:        ActionTeachersImported,
		EntityType:    dto.ImportEntityTeachers,
		CorrelationID: "corr-1",
		Metadata: map[string]interface{}{
			"temporary_password": "hunter22",
			"email":              "ada@school.test",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "***", entry.Metadata["temporary_password"])
	require.Equal(t, "ada@school.test", entry.Metadata["email"])
	require.Equal(t, "admin", entry.ActorRole)
	require.Equal(t, "corr-1", entry.CorrelationID)
}

func TestActivityServiceRecordRequiresAction(t *testing.T) {
	svc := NewActivityService(&memoryActivityRepo{}, testLogger())

	_, err := svc.Record(context.Background(), ActivityEntry{EntityType: "term"})
	require.Error(t, err)
}

func TestActivityServiceListPaginates(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())
	for i := 0; i < 3; i++ {
		_, err := svc.Record(context.Background(), ActivityEntry{ActorID: 1, Action: ActionTermActivated, EntityType: "term"})
		require.NoError(t, err)
	}

	list, err := svc.List(context.Background(), dto.AdminActivityListRequest{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), list.Pagination.TotalItems)
	require.Equal(t, 2, list.Pagination.TotalPages)
}

func ptrUint(v uint) *uint {
	return &v
}
