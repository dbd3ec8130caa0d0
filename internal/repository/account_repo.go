package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/models"
)

// AccountRepository persists login identities.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uint) (models.Account, error)
	GetByEmail(ctx context.Context, email string) (models.Account, error)
	ExistingEmails(ctx context.Context, emails []string) (map[string]bool, error)
	Delete(ctx context.Context, id uint) error
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository constructs the account repository.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepository) GetByID(ctx context.Context, id uint) (models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		return models.Account{}, err
	}
	return account, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&account).Error
	if err != nil {
		return models.Account{}, err
	}
	return account, nil
}

func (r *accountRepository) ExistingEmails(ctx context.Context, emails []string) (map[string]bool, error) {
	return existingLowerValues(ctx, r.db, &models.Account{}, "email", emails)
}

func (r *accountRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Account{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
