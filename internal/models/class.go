package models

import "time"

// Class is a teaching group owned by one teacher.
type Class struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	TeacherID uint      `gorm:"not null;index" json:"teacher_id"`
	SubjectID *uint     `json:"subject_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Teacher   Teacher   `json:"-"`
}

// ClassStudent enrols a student in a class.
type ClassStudent struct {
	ClassID   uint      `gorm:"primaryKey" json:"class_id"`
	StudentID uint      `gorm:"primaryKey" json:"student_id"`
	CreatedAt time.Time `json:"created_at"`
}
