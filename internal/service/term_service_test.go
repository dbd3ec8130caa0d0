package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/repository"
)

func TestTermServiceResolvePrefersExplicitTerm(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewTermService(repository.NewTermRepository(db), nil, testLogger())
	ctx := context.Background()

	_, err := svc.Resolve(ctx, nil)
	require.ErrorIs(t, err, ErrNoActiveTerm)

	past := models.Term{Name: "Autumn"}
	current := models.Term{Name: "Spring", IsActive: true}
	require.NoError(t, db.Create(&past).Error)
	require.NoError(t, db.Create(&current).Error)

	term, err := svc.Resolve(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, current.ID, term.ID)

	term, err = svc.Resolve(ctx, &past.ID)
	require.NoError(t, err)
	require.Equal(t, past.ID, term.ID)

	_, err = svc.Resolve(ctx, ptrUint(404))
	require.ErrorIs(t, err, ErrTermNotFound)
}

func TestTermServiceActivateRecordsActivity(t *testing.T) {
	db := setupServiceDB(t)
	activity := &memoryActivityRepo{}
	svc := NewTermService(repository.NewTermRepository(db), NewActivityService(activity, testLogger()), testLogger())
	ctx := context.Background()

	term := models.Term{Name: "Summer"}
	require.NoError(t, db.Create(&term).Error)

	response, err := svc.Activate(ctx, term.ID, ActivityActor{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	require.True(t, response.IsActive)
	require.Len(t, activity.entries, 1)
	require.Equal(t, ActionTermActivated, activity.entries[0].Action)

	_, err = svc.Activate(ctx, 999, ActivityActor{ID: 1, Role: models.RoleAdmin})
	require.ErrorIs(t, err, ErrTermNotFound)
}
