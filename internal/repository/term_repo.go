package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/models"
)

// TermRepository persists academic terms.
type TermRepository interface {
	List(ctx context.Context) ([]models.Term, error)
	GetByID(ctx context.Context, id uint) (models.Term, error)
	GetActive(ctx context.Context) (models.Term, error)
	Activate(ctx context.Context, id uint) (models.Term, error)
}

type termRepository struct {
	db *gorm.DB
}

// NewTermRepository constructs the term repository.
func NewTermRepository(db *gorm.DB) TermRepository {
	return &termRepository{db: db}
}

func (r *termRepository) List(ctx context.Context) ([]models.Term, error) {
	var terms []models.Term
	err := r.db.WithContext(ctx).Order("starts_on DESC, id DESC").Find(&terms).Error
	return terms, err
}

func (r *termRepository) GetByID(ctx context.Context, id uint) (models.Term, error) {
	var term models.Term
	if err := r.db.WithContext(ctx).First(&term, id).Error; err != nil {
		return models.Term{}, err
	}
	return term, nil
}

func (r *termRepository) GetActive(ctx context.Context) (models.Term, error) {
	var term models.Term
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("starts_on DESC, id DESC").
		First(&term).Error
	if err != nil {
		return models.Term{}, err
	}
	return term, nil
}

// Activate flips the active flag so only the given term stays active.
func (r *termRepository) Activate(ctx context.Context, id uint) (models.Term, error) {
	var term models.Term
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&term, id).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Term{}).Where("id <> ?", id).Update("is_active", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&term).Update("is_active", true).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return models.Term{}, err
	}
	term.IsActive = true
	return term, nil
}
