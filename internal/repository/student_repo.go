package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/models"
)

// StudentRepository persists student records.
type StudentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	GetByID(ctx context.Context, id uint) (models.Student, error)
	ListByIDs(ctx context.Context, ids []uint) ([]models.Student, error)
	ExistingNames(ctx context.Context, names []string) (map[string]bool, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs the student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) Create(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}
	return student, nil
}

func (r *studentRepository) ListByIDs(ctx context.Context, ids []uint) ([]models.Student, error) {
	if len(ids) == 0 {
		return []models.Student{}, nil
	}
	var students []models.Student
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC, id ASC").Find(&students).Error
	return students, err
}

// ExistingNames reports which names already belong to a student, lowercased.
func (r *studentRepository) ExistingNames(ctx context.Context, names []string) (map[string]bool, error) {
	return existingLowerValues(ctx, r.db, &models.Student{}, "name", names)
}
