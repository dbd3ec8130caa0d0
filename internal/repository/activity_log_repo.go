package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/models"
)

// ActivityLogFilter narrows audit queries. Zero values match everything.
type ActivityLogFilter struct {
	Page          int
	PageSize      int
	ActorID       *uint
	Action        string
	EntityType    string
	EntityID      *uint
	ImportID      string
	CorrelationID string
	Since         *time.Time
	Until         *time.Time
}

func (f ActivityLogFilter) scope(db *gorm.DB) *gorm.DB {
	equals := []struct {
		column string
		value  string
	}{
		{"action", f.Action},
		{"entity_type", f.EntityType},
		{"import_id", f.ImportID},
		{"correlation_id", f.CorrelationID},
	}
	for _, eq := range equals {
		if eq.value != "" {
			db = db.Where(eq.column+" = ?", eq.value)
		}
	}
	if f.ActorID != nil {
		db = db.Where("actor_id = ?", *f.ActorID)
	}
	if f.EntityID != nil {
		db = db.Where("entity_id = ?", *f.EntityID)
	}
	if f.Since != nil {
		db = db.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		db = db.Where("created_at < ?", *f.Until)
	}
	return db
}

// ActivityLogRepository persists the import, grading and term audit trail.
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error)
}

type activityLogRepository struct {
	db *gorm.DB
}

// NewActivityLogRepository constructs the activity log repository.
func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// List returns the newest entries first. Entries written in the same
// instant keep insertion order through the id tiebreak.
func (r *activityLogRepository) List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.ActivityLog{}).Scopes(filter.scope)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]models.ActivityLog, 0)
	if total == 0 {
		return entries, 0, nil
	}

	query := base.Order("created_at DESC").Order("id DESC")
	if filter.PageSize > 0 {
		page := max(filter.Page, 1)
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
