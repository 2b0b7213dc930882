package models

import (
	"time"

	"gorm.io/datatypes"
)

// HistoryEntry records a significant change to a tracked entity.
type HistoryEntry struct {
	ID          uint           `gorm:"primaryKey;autoIncrement"`
	EntityType  string         `gorm:"size:32;not null;index:idx_history_entity"`
	EntityID    string         `gorm:"size:64;not null;index:idx_history_entity"`
	Action      string         `gorm:"size:32;not null"`
	Description string         `gorm:"type:text"`
	OldValue    datatypes.JSON `gorm:"type:json"`
	NewValue    datatypes.JSON `gorm:"type:json"`
	ActorID     string         `gorm:"size:64"`
	CreatedAt   time.Time      `gorm:"index"`
}

// Notification is a per-user message stored for in-app delivery.
type Notification struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"`
	UserID     string         `gorm:"size:64;not null;index"`
	Title      string         `gorm:"size:255"`
	Body       string         `gorm:"type:text"`
	Kind       string         `gorm:"size:16;default:info"`
	EventType  string         `gorm:"size:64"`
	EntityType string         `gorm:"size:32"`
	EntityID   string         `gorm:"size:64"`
	Payload    datatypes.JSON `gorm:"type:json"`
	Read       bool           `gorm:"not null;index"`
	CreatedAt  time.Time
}

// PreventivePlan periodically schedules a template against an asset.
type PreventivePlan struct {
	ID                 string  `gorm:"primaryKey;size:36"`
	Title              string  `gorm:"size:255;not null"`
	TemplateID         string  `gorm:"size:36;not null;index"`
	AssetID            string  `gorm:"size:64;not null;index"`
	Schedule           string  `gorm:"size:64;not null"`
	Priority           int     `gorm:"default:2"`
	AssignedTechnician *string `gorm:"size:64"`
	AssignedTeam       *string `gorm:"size:64"`
	NextDue            time.Time `gorm:"index"`
	Active             bool      `gorm:"not null;index"`
	LastRunAt          *time.Time
	CreatedBy          string `gorm:"size:64"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
