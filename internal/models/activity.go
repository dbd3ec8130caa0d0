package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog is the audit trail for imports, grade entry and term changes.
type ActivityLog struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	ActorID       uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole     string            `gorm:"size:32;not null" json:"actor_role"`
	Action        string            `gorm:"size:64;not null;index" json:"action"`
	EntityType    string            `gorm:"size:64;not null;index:idx_activity_entity" json:"entity_type"`
	EntityID      *uint             `gorm:"index:idx_activity_entity" json:"entity_id"`
	ImportID      string            `gorm:"size:36;index" json:"import_id,omitempty"`
	CorrelationID string            `gorm:"size:64" json:"correlation_id,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
}
