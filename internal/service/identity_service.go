package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/repository"
)

const minPasswordLength = 6

// ErrInvalidCredentials indicates an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrEmailTaken indicates an account already uses the email.
var ErrEmailTaken = errors.New("email already registered")

// ErrWeakPassword indicates a password shorter than the minimum length.
var ErrWeakPassword = errors.New("password must be at least 6 characters")

// ErrAccountNotFound indicates the account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// AccountProvisioner creates and removes login identities.
type AccountProvisioner interface {
	CreateAccount(ctx context.Context, email, password string, metadata map[string]interface{}) (models.Account, error)
	DeleteAccount(ctx context.Context, id uint) error
}

// IdentityService manages local accounts and JWT sessions.
type IdentityService interface {
	AccountProvisioner
	SignIn(ctx context.Context, payload dto.SignInRequest) (dto.SessionResponse, error)
	CurrentUser(ctx context.Context, id uint) (dto.CurrentUserResponse, error)
}

// IdentityConfig carries the session signing settings.
type IdentityConfig struct {
	Secret   string
	TokenTTL time.Duration
	Issuer   string
}

type identityService struct {
	accounts  repository.AccountRepository
	teachers  repository.TeacherRepository
	validator *validator.Validate
	config    IdentityConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// NewIdentityService constructs the identity service.
func NewIdentityService(accounts repository.AccountRepository, teachers repository.TeacherRepository, validate *validator.Validate, cfg IdentityConfig, logger zerolog.Logger) IdentityService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	return &identityService{
		accounts:  accounts,
		teachers:  teachers,
		validator: validate,
		config:    cfg,
		logger:    logger.With().Str("component", "identity_service").Logger(),
		now:       time.Now,
	}
}

// CreateAccount stores a new identity. The role is read from metadata["role"]
// and defaults to teacher.
func (s *identityService) CreateAccount(ctx context.Context, email, password string, metadata map[string]interface{}) (models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validator.Var(email, "required,email"); err != nil {
		return models.Account{}, err
	}
	if len(password) < minPasswordLength {
		return models.Account{}, ErrWeakPassword
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return models.Account{}, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}

	meta := datatypes.JSONMap{}
	for key, value := range metadata {
		meta[key] = value
	}
	role, _ := meta["role"].(string)
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = models.RoleTeacher
	}
	meta["role"] = role

	account := models.Account{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Metadata:     meta,
	}
	if err := s.accounts.Create(ctx, &account); err != nil {
		return models.Account{}, err
	}

	s.logger.Info().Uint("account_id", account.ID).Str("role", role).Msg("account created")
	return account, nil
}

func (s *identityService) DeleteAccount(ctx context.Context, id uint) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	s.logger.Info().Uint("account_id", id).Msg("account deleted")
	return nil
}

func (s *identityService) SignIn(ctx context.Context, payload dto.SignInRequest) (dto.SessionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionResponse{}, err
	}

	account, err := s.accounts.GetByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SessionResponse{}, ErrInvalidCredentials
		}
		return dto.SessionResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(payload.Password)); err != nil {
		return dto.SessionResponse{}, ErrInvalidCredentials
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.TokenTTL)
	claims := jwt.MapClaims{
		"sub":   strconv.FormatUint(uint64(account.ID), 10),
		"role":  account.Role,
		"email": account.Email,
		"iat":   issuedAt.Unix(),
		"exp":   expiresAt.Unix(),
	}
	if s.config.Issuer != "" {
		claims["iss"] = s.config.Issuer
	}

	if account.Role == models.RoleTeacher && s.teachers != nil {
		teacher, err := s.teachers.GetByAccountID(ctx, account.ID)
		if err == nil {
			claims["teacher_id"] = teacher.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SessionResponse{}, err
		}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return dto.SessionResponse{}, fmt.Errorf("sign session token: %w", err)
	}

	return dto.SessionResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      dto.NewCurrentUserResponse(account),
	}, nil
}

func (s *identityService) CurrentUser(ctx context.Context, id uint) (dto.CurrentUserResponse, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CurrentUserResponse{}, ErrAccountNotFound
		}
		return dto.CurrentUserResponse{}, err
	}
	return dto.NewCurrentUserResponse(account), nil
}
