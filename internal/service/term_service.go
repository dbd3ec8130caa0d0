package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/repository"
)

// ErrTermNotFound indicates the requested term does not exist.
var ErrTermNotFound = errors.New("term not found")

// ErrNoActiveTerm indicates no term is currently marked active.
var ErrNoActiveTerm = errors.New("no active term")

// TermService resolves the academic term every aggregate is scoped to.
type TermService interface {
	Active(ctx context.Context) (models.Term, error)
	Resolve(ctx context.Context, termID *uint) (models.Term, error)
	List(ctx context.Context) ([]dto.TermResponse, error)
	Activate(ctx context.Context, id uint, actor ActivityActor) (dto.TermResponse, error)
}

type termService struct {
	repo     repository.TermRepository
	activity ActivityRecorder
	logger   zerolog.Logger
}

// NewTermService constructs the term service.
func NewTermService(repo repository.TermRepository, activity ActivityRecorder, logger zerolog.Logger) TermService {
	return &termService{
		repo:     repo,
		activity: activity,
		logger:   logger.With().Str("component", "term_service").Logger(),
	}
}

func (s *termService) Active(ctx context.Context) (models.Term, error) {
	term, err := s.repo.GetActive(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Term{}, ErrNoActiveTerm
		}
		return models.Term{}, err
	}
	return term, nil
}

// Resolve returns the explicitly requested term, or the active one when termID is nil.
func (s *termService) Resolve(ctx context.Context, termID *uint) (models.Term, error) {
	if termID == nil {
		return s.Active(ctx)
	}

	term, err := s.repo.GetByID(ctx, *termID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Term{}, ErrTermNotFound
		}
		return models.Term{}, err
	}
	return term, nil
}

func (s *termService) List(ctx context.Context) ([]dto.TermResponse, error) {
	terms, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.TermResponse, 0, len(terms))
	for _, term := range terms {
		responses = append(responses, dto.NewTermResponse(term))
	}
	return responses, nil
}

func (s *termService) Activate(ctx context.Context, id uint, actor ActivityActor) (dto.TermResponse, error) {
	term, err := s.repo.Activate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TermResponse{}, ErrTermNotFound
		}
		return dto.TermResponse{}, err
	}

	s.logger.Info().Uint("term_id", term.ID).Uint("actor_id", actor.ID).Msg("term activated")

	if s.activity != nil {
		entityID := term.ID
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:       actor.ID,
			ActorRole:     actor.Role,
			Action:        ActionTermActivated,
			EntityType:    "term",
			EntityID:      &entityID,
			CorrelationID: actor.CorrelationID,
			Metadata:      map[string]interface{}{"name": term.Name},
		})
	}

	return dto.NewTermResponse(term), nil
}
