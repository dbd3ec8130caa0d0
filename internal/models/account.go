package models

import (
	"time"

	"gorm.io/datatypes"
)

// Account roles carried in account metadata and session claims.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
)

// Account is a login identity. Role and profile hints live in Metadata.
type Account struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	Email        string            `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string            `gorm:"size:255;not null" json:"-"`
	Role         string            `gorm:"size:32;not null;index" json:"role"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
