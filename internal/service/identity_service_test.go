package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/repository"
)

func newIdentityFixture(t *testing.T) (IdentityService, repository.TeacherRepository) {
	t.Helper()
	db := setupServiceDB(t)
	teachers := repository.NewTeacherRepository(db)
	svc := NewIdentityService(
		repository.NewAccountRepository(db),
		teachers,
		validator.New(validator.WithRequiredStructEnabled()),
		IdentityConfig{Secret: "secret", TokenTTL: time.Hour},
		testLogger(),
	)
	return svc, teachers
}

func TestIdentityServiceSignInIssuesTeacherClaims(t *testing.T) {
	svc, teachers := newIdentityFixture(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, " Ada@School.test ", "s3cret!", map[string]interface{}{"name": "Ada"})
	require.NoError(t, err)
	require.Equal(t, "ada@school.test", account.Email)
	require.Equal(t, models.RoleTeacher, account.Role)

	teacher := models.Teacher{AccountID: account.ID, Name: "Ada", Email: account.Email}
	require.NoError(t, teachers.Create(ctx, &teacher))

	session, err := svc.SignIn(ctx, dto.SignInRequest{Email: "ada@school.test", Password: "s3cret!"})
	require.NoError(t, err)
	require.Equal(t, account.ID, session.User.ID)

	parsed, err := jwt.Parse(session.Token, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, "teacher", claims["role"])
	require.Equal(t, float64(teacher.ID), claims["teacher_id"])

	current, err := svc.CurrentUser(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada", current.Metadata["name"])
	require.Equal(t, "teacher", current.Metadata["role"])
}

func TestIdentityServiceRejectsBadCredentials(t *testing.T) {
	svc, _ := newIdentityFixture(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, "admin@school.test", "correct-horse", map[string]interface{}{"role": "admin"})
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, dto.SignInRequest{Email: "admin@school.test", Password: "wrong-horse"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignIn(ctx, dto.SignInRequest{Email: "nobody@school.test", Password: "whatever"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.CreateAccount(ctx, "ADMIN@school.test", "another-pass", nil)
	require.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.CreateAccount(ctx, "short@school.test", "abc", nil)
	require.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.CreateAccount(ctx, "not-an-email", "long-enough", nil)
	require.Error(t, err)
}

func TestIdentityServiceDeleteAccount(t *testing.T) {
	svc, _ := newIdentityFixture(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "temp@school.test", "temporary", nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(ctx, account.ID))
	require.ErrorIs(t, svc.DeleteAccount(ctx, account.ID), ErrAccountNotFound)

	_, err = svc.CurrentUser(ctx, account.ID)
	require.ErrorIs(t, err, ErrAccountNotFound)
}
