package models

import "time"

// Student represents a learner enrolled in one or more classes.
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null;index" json:"name"`
	Email     string    `gorm:"size:255" json:"email"`
	YearGroup string    `gorm:"size:64" json:"year_group"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
