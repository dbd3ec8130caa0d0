package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/performance"
)

// AssessmentRepository stores grades and reads them back as aggregator records.
type AssessmentRepository interface {
	Create(ctx context.Context, assessment *models.Assessment) error
	RecordsForStudent(ctx context.Context, studentID, termID uint) ([]performance.Record, error)
	RecordsForClass(ctx context.Context, classID, termID uint) ([]performance.Record, error)
	RecordsForClasses(ctx context.Context, classIDs []uint, termID uint) ([]performance.Record, error)
	RecordsForTerm(ctx context.Context, termID uint) ([]performance.Record, error)
}

type assessmentRepository struct {
	db *gorm.DB
}

// NewAssessmentRepository constructs the assessment repository.
func NewAssessmentRepository(db *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: db}
}

func (r *assessmentRepository) Create(ctx context.Context, assessment *models.Assessment) error {
	return r.db.WithContext(ctx).Create(assessment).Error
}

func (r *assessmentRepository) RecordsForStudent(ctx context.Context, studentID, termID uint) ([]performance.Record, error) {
	return r.scan(r.records(ctx, termID).Where("student_id = ?", studentID))
}

func (r *assessmentRepository) RecordsForClass(ctx context.Context, classID, termID uint) ([]performance.Record, error) {
	return r.scan(r.records(ctx, termID).Where("class_id = ?", classID))
}

func (r *assessmentRepository) RecordsForClasses(ctx context.Context, classIDs []uint, termID uint) ([]performance.Record, error) {
	if len(classIDs) == 0 {
		return []performance.Record{}, nil
	}
	return r.scan(r.records(ctx, termID).Where("class_id IN ?", classIDs))
}

func (r *assessmentRepository) RecordsForTerm(ctx context.Context, termID uint) ([]performance.Record, error) {
	return r.scan(r.records(ctx, termID))
}

func (r *assessmentRepository) records(ctx context.Context, termID uint) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Assessment{}).
		Select("student_id, class_id, term_id, percentage, is_low_point").
		Where("term_id = ?", termID).
		Order("student_id ASC, id ASC")
}

func (r *assessmentRepository) scan(query *gorm.DB) ([]performance.Record, error) {
	records := make([]performance.Record, 0)
	if err := query.Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
