package models

import "time"

// Assessment is a single graded piece of work for a student in a class and term.
type Assessment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	StudentID  uint      `gorm:"not null;index:idx_assessments_student_term" json:"student_id"`
	ClassID    uint      `gorm:"not null;index:idx_assessments_class_term" json:"class_id"`
	TermID     uint      `gorm:"not null;index:idx_assessments_student_term;index:idx_assessments_class_term" json:"term_id"`
	Title      string    `gorm:"size:255" json:"title"`
	Marks      float64   `gorm:"not null" json:"marks"`
	TotalMarks float64   `gorm:"not null" json:"total_marks"`
	Percentage float64   `gorm:"not null" json:"percentage"`
	IsLowPoint bool      `gorm:"not null;default:false" json:"is_low_point"`
	RecordedBy uint      `json:"recorded_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Student    Student   `json:"-"`
	Class      Class     `json:"-"`
}
