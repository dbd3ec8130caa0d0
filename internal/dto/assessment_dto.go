package dto

import (
	"time"

	"github.com/noah-isme/gema-school-api/internal/models"
)

// AssessmentCreateRequest records one graded piece of work.
type AssessmentCreateRequest struct {
	StudentID  uint    `json:"student_id" validate:"required"`
	ClassID    uint    `json:"class_id" validate:"required"`
	TermID     *uint   `json:"term_id"`
	Title      string  `json:"title" validate:"omitempty,max=255"`
	Marks      float64 `json:"marks" validate:"gte=0"`
	TotalMarks float64 `json:"total_marks" validate:"gt=0"`
	IsLowPoint bool    `json:"is_low_point"`
}

// AssessmentResponse serializes a stored assessment.
type AssessmentResponse struct {
	ID         uint      `json:"id"`
	StudentID  uint      `json:"student_id"`
	ClassID    uint      `json:"class_id"`
	TermID     uint      `json:"term_id"`
	Title      string    `json:"title"`
	Marks      float64   `json:"marks"`
	TotalMarks float64   `json:"total_marks"`
	Percentage float64   `json:"percentage"`
	IsLowPoint bool      `json:"is_low_point"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewAssessmentResponse converts an assessment model.
func NewAssessmentResponse(item models.Assessment) AssessmentResponse {
	return AssessmentResponse{
		ID:         item.ID,
		StudentID:  item.StudentID,
		ClassID:    item.ClassID,
		TermID:     item.TermID,
		Title:      item.Title,
		Marks:      item.Marks,
		TotalMarks: item.TotalMarks,
		Percentage: item.Percentage,
		IsLowPoint: item.IsLowPoint,
		CreatedAt:  item.CreatedAt,
	}
}
