package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-school-api/internal/models"
)

// ClassRepository exposes classes and their enrolments.
type ClassRepository interface {
	GetByID(ctx context.Context, id uint) (models.Class, error)
	ListByTeacher(ctx context.Context, teacherID uint) ([]models.Class, error)
	ListByIDs(ctx context.Context, ids []uint) ([]models.Class, error)
	FindByNames(ctx context.Context, names []string, teacherID *uint) (map[string]models.Class, error)
	ListStudents(ctx context.Context, classID uint) ([]models.Student, error)
	CountStudents(ctx context.Context, classIDs []uint) (map[uint]int, error)
	Enroll(ctx context.Context, classID, studentID uint) error
	TeachesStudent(ctx context.Context, teacherID, studentID uint) (bool, error)
}

type classRepository struct {
	db *gorm.DB
}

// NewClassRepository constructs the class repository.
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &classRepository{db: db}
}

func (r *classRepository) GetByID(ctx context.Context, id uint) (models.Class, error) {
	var class models.Class
	if err := r.db.WithContext(ctx).First(&class, id).Error; err != nil {
		return models.Class{}, err
	}
	return class, nil
}

func (r *classRepository) ListByTeacher(ctx context.Context, teacherID uint) ([]models.Class, error) {
	var classes []models.Class
	err := r.db.WithContext(ctx).
		Where("teacher_id = ?", teacherID).
		Order("name ASC, id ASC").
		Find(&classes).Error
	return classes, err
}

func (r *classRepository) ListByIDs(ctx context.Context, ids []uint) ([]models.Class, error) {
	if len(ids) == 0 {
		return []models.Class{}, nil
	}
	var classes []models.Class
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC, id ASC").Find(&classes).Error
	return classes, err
}

// FindByNames resolves class names case-insensitively. A non-nil teacherID
// limits the lookup to that teacher's classes.
func (r *classRepository) FindByNames(ctx context.Context, names []string, teacherID *uint) (map[string]models.Class, error) {
	keys := uniqueLower(names)
	result := make(map[string]models.Class, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	query := r.db.WithContext(ctx).Where("LOWER(name) IN ?", keys)
	if teacherID != nil {
		query = query.Where("teacher_id = ?", *teacherID)
	}

	var classes []models.Class
	if err := query.Order("id ASC").Find(&classes).Error; err != nil {
		return nil, err
	}

	for _, class := range classes {
		key := strings.ToLower(class.Name)
		if _, ok := result[key]; !ok {
			result[key] = class
		}
	}
	return result, nil
}

func (r *classRepository) ListStudents(ctx context.Context, classID uint) ([]models.Student, error) {
	var students []models.Student
	err := r.db.WithContext(ctx).
		Model(&models.Student{}).
		Joins("JOIN class_students ON class_students.student_id = students.id").
		Where("class_students.class_id = ?", classID).
		Order("students.name ASC, students.id ASC").
		Find(&students).Error
	return students, err
}

func (r *classRepository) CountStudents(ctx context.Context, classIDs []uint) (map[uint]int, error) {
	counts := make(map[uint]int, len(classIDs))
	if len(classIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ClassID uint
		Total   int
	}
	err := r.db.WithContext(ctx).
		Model(&models.ClassStudent{}).
		Select("class_id, COUNT(*) AS total").
		Where("class_id IN ?", classIDs).
		Group("class_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.ClassID] = row.Total
	}
	return counts, nil
}

func (r *classRepository) Enroll(ctx context.Context, classID, studentID uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ClassStudent{ClassID: classID, StudentID: studentID}).Error
}

// TeachesStudent reports whether the student is enrolled in, or has been
// graded in, any class owned by the teacher.
func (r *classRepository) TeachesStudent(ctx context.Context, teacherID, studentID uint) (bool, error) {
	db := r.db.WithContext(ctx)
	enrolled := db.Model(&models.ClassStudent{}).Select("class_id").Where("student_id = ?", studentID)
	graded := db.Model(&models.Assessment{}).Select("class_id").Where("student_id = ?", studentID)

	var count int64
	err := db.Model(&models.Class{}).
		Where("teacher_id = ?", teacherID).
		Where("id IN (?) OR id IN (?)", enrolled, graded).
		Count(&count).Error
	return count > 0, err
}
