package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/models"
)

// TeacherRepository persists teacher profiles.
type TeacherRepository interface {
	Create(ctx context.Context, teacher *models.Teacher) error
	GetByID(ctx context.Context, id uint) (models.Teacher, error)
	GetByAccountID(ctx context.Context, accountID uint) (models.Teacher, error)
	ExistingEmails(ctx context.Context, emails []string) (map[string]bool, error)
}

type teacherRepository struct {
	db *gorm.DB
}

// NewTeacherRepository constructs the teacher repository.
func NewTeacherRepository(db *gorm.DB) TeacherRepository {
	return &teacherRepository{db: db}
}

func (r *teacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	return r.db.WithContext(ctx).Create(teacher).Error
}

func (r *teacherRepository) GetByID(ctx context.Context, id uint) (models.Teacher, error) {
	var teacher models.Teacher
	if err := r.db.WithContext(ctx).First(&teacher, id).Error; err != nil {
		return models.Teacher{}, err
	}
	return teacher, nil
}

func (r *teacherRepository) GetByAccountID(ctx context.Context, accountID uint) (models.Teacher, error) {
	var teacher models.Teacher
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&teacher).Error; err != nil {
		return models.Teacher{}, err
	}
	return teacher, nil
}

func (r *teacherRepository) ExistingEmails(ctx context.Context, emails []string) (map[string]bool, error) {
	return existingLowerValues(ctx, r.db, &models.Teacher{}, "email", emails)
}
