package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/repository"
)

// ErrMarksExceedTotal indicates marks larger than the available total.
var ErrMarksExceedTotal = errors.New("marks exceed total marks")

// ErrAssessmentForbidden indicates a teacher grading a class they do not teach.
var ErrAssessmentForbidden = errors.New("class is taught by another teacher")

// AssessmentService records graded work.
type AssessmentService interface {
	Record(ctx context.Context, payload dto.AssessmentCreateRequest, term models.Term, actor ActivityActor) (dto.AssessmentResponse, error)
}

type assessmentService struct {
	repo        repository.AssessmentRepository
	classes     repository.ClassRepository
	students    repository.StudentRepository
	validator   *validator.Validate
	activity    ActivityRecorder
	performance PerformanceService
	logger      zerolog.Logger
}

// NewAssessmentService constructs the assessment service.
func NewAssessmentService(repo repository.AssessmentRepository, classes repository.ClassRepository, students repository.StudentRepository, validate *validator.Validate, activity ActivityRecorder, performance PerformanceService, logger zerolog.Logger) AssessmentService {
	return &assessmentService{
		repo:        repo,
		classes:     classes,
		students:    students,
		validator:   validate,
		activity:    activity,
		performance: performance,
		logger:      logger.With().Str("component", "assessment_service").Logger(),
	}
}

func (s *assessmentService) Record(ctx context.Context, payload dto.AssessmentCreateRequest, term models.Term, actor ActivityActor) (dto.AssessmentResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-school-api/internal/service/assessment")
	ctx, span := tracer.Start(ctx, "assessment.record")
	span.SetAttributes(
		attribute.Int64("assessment.student_id", int64(payload.StudentID)),
		attribute.Int64("assessment.class_id", int64(payload.ClassID)),
		attribute.Int64("assessment.term_id", int64(term.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.AssessmentResponse{}, err
	}

	if payload.Marks > payload.TotalMarks+1e-9 {
		span.RecordError(ErrMarksExceedTotal)
		span.SetStatus(codes.Error, "marks_exceed_total")
		return dto.AssessmentResponse{}, ErrMarksExceedTotal
	}

	class, err := s.classes.GetByID(ctx, payload.ClassID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "class_not_found")
			return dto.AssessmentResponse{}, ErrClassNotFound
		}
		span.SetStatus(codes.Error, "class_lookup_failed")
		return dto.AssessmentResponse{}, err
	}

	if !actor.IsAdmin() && class.TeacherID != actor.TeacherID {
		span.SetStatus(codes.Error, "forbidden")
		return dto.AssessmentResponse{}, ErrAssessmentForbidden
	}

	if _, err := s.students.GetByID(ctx, payload.StudentID); err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "student_not_found")
			return dto.AssessmentResponse{}, ErrStudentNotFound
		}
		span.SetStatus(codes.Error, "student_lookup_failed")
		return dto.AssessmentResponse{}, err
	}

	assessment := models.Assessment{
		StudentID:  payload.StudentID,
		ClassID:    class.ID,
		TermID:     term.ID,
		Title:      strings.TrimSpace(payload.Title),
		Marks:      payload.Marks,
		TotalMarks: payload.TotalMarks,
		Percentage: payload.Marks / payload.TotalMarks * 100,
		IsLowPoint: payload.IsLowPoint,
		RecordedBy: actor.ID,
	}

	if err := s.repo.Create(ctx, &assessment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assessment_create_failed")
		return dto.AssessmentResponse{}, err
	}

	if s.performance != nil {
		s.performance.Invalidate(ctx, CacheTarget{
			StudentID: assessment.StudentID,
			ClassID:   assessment.ClassID,
			TeacherID: class.TeacherID,
			TermID:    assessment.TermID,
		})
	}

	if s.activity != nil {
		entityID := assessment.ID
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:       actor.ID,
			ActorRole:     actor.Role,
			Action:        ActionAssessmentRecorded,
			EntityType:    "assessment",
			EntityID:      &entityID,
			CorrelationID: actor.CorrelationID,
			Metadata: map[string]interface{}{
				"student_id":   assessment.StudentID,
				"class_id":     assessment.ClassID,
				"term_id":      assessment.TermID,
				"percentage":   assessment.Percentage,
				"is_low_point": assessment.IsLowPoint,
			},
		})
	}

	return dto.NewAssessmentResponse(assessment), nil
}
