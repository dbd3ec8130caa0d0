package models

import "time"

// Qualification is the root of the curriculum hierarchy, e.g. GCSE or A-Level.
type Qualification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	NameKey   string    `gorm:"size:255;not null;uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Board is an exam board offering a qualification.
type Board struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	NameKey         string    `gorm:"size:255;not null;uniqueIndex:idx_boards_parent_name" json:"-"`
	QualificationID uint      `gorm:"not null;index;uniqueIndex:idx_boards_parent_name" json:"qualification_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// Subject belongs to a single board.
type Subject struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	NameKey   string    `gorm:"size:255;not null;uniqueIndex:idx_subjects_parent_name" json:"-"`
	BoardID   uint      `gorm:"not null;index;uniqueIndex:idx_subjects_parent_name" json:"board_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Topic belongs to a single subject.
type Topic struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	NameKey   string    `gorm:"size:255;not null;uniqueIndex:idx_topics_parent_name" json:"-"`
	SubjectID uint      `gorm:"not null;index;uniqueIndex:idx_topics_parent_name" json:"subject_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Subtopic belongs to a single topic.
type Subtopic struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	NameKey   string    `gorm:"size:255;not null;uniqueIndex:idx_subtopics_parent_name" json:"-"`
	TopicID   uint      `gorm:"not null;index;uniqueIndex:idx_subtopics_parent_name" json:"topic_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CurriculumLevel names one tier of the curriculum hierarchy.
type CurriculumLevel string

const (
	LevelQualification CurriculumLevel = "qualification"
	LevelBoard         CurriculumLevel = "board"
	LevelSubject       CurriculumLevel = "subject"
	LevelTopic         CurriculumLevel = "topic"
	LevelSubtopic      CurriculumLevel = "subtopic"
)

// CurriculumLevels lists the hierarchy in parent-to-child order.
var CurriculumLevels = []CurriculumLevel{
	LevelQualification,
	LevelBoard,
	LevelSubject,
	LevelTopic,
	LevelSubtopic,
}
