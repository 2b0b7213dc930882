package models

import (
	"time"

	"gorm.io/datatypes"
)

// Template status values.
const (
	TemplateDraft     = "Draft"
	TemplateValidated = "Validated"
	TemplateArchived  = "Archived"
)

// Check point field types.
const (
	FieldText     = "Text"
	FieldNumber   = "Number"
	FieldBoolean  = "Boolean"
	FieldSelect   = "Select"
	FieldTextarea = "Textarea"
	FieldDate     = "Date"
	FieldTime     = "Time"
	FieldDateTime = "DateTime"
)

// Boolean answer literals.
const (
	BooleanYes = "OUI"
	BooleanNo  = "NON"
)

// ChecklistTemplate is the ordered definition of a maintenance intervention.
type ChecklistTemplate struct {
	ID                  string `gorm:"primaryKey;size:36"`
	Name                string `gorm:"size:255;not null"`
	Description         string `gorm:"type:text"`
	Status              string `gorm:"size:16;default:Draft;index"`
	EstimatedHours      int    `gorm:"default:1"`
	RequiredTechnicians int    `gorm:"default:1"`
	CreatedBy           string `gorm:"size:64"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ValidatedAt         *time.Time

	Operations []Operation `gorm:"foreignKey:TemplateID"`
}

// Operation is one step of a template. Order is unique within the template.
type Operation struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	TemplateID string `gorm:"size:36;not null;uniqueIndex:idx_operation_order"`
	Name       string `gorm:"size:255;not null"`
	Order      int    `gorm:"column:position;not null;uniqueIndex:idx_operation_order"`

	CheckPoints []CheckPoint `gorm:"foreignKey:OperationID"`
}

// CheckPoint is a single field to fill in during execution.
type CheckPoint struct {
	ID               uint                        `gorm:"primaryKey;autoIncrement"`
	OperationID      uint                        `gorm:"not null;uniqueIndex:idx_checkpoint_order"`
	TemplateID       string                      `gorm:"size:36;not null;index"`
	Label            string                      `gorm:"size:255;not null"`
	Help             string                      `gorm:"type:text"`
	FieldType        string                      `gorm:"size:16;default:Text"`
	Options          datatypes.JSONSlice[string] `gorm:"type:json"`
	Order            int                         `gorm:"column:position;not null;uniqueIndex:idx_checkpoint_order"`
	Required         bool                        `gorm:"not null"`
	DependsOnPointID *uint                       `gorm:"index"`
	DisplayCondition string                      `gorm:"size:100"`
	CanPhoto         bool                        `gorm:"not null"`
	CanAudio         bool                        `gorm:"not null"`
	CanVideo         bool                        `gorm:"not null"`
	CanFiles         bool                        `gorm:"not null"`
	AllowedFileTypes datatypes.JSONSlice[string] `gorm:"type:json"`
	MaxFileSizeMB    int                         `gorm:"default:10"`
	CanRequestRepair bool                        `gorm:"not null"`
}

// ArchivedAnswer keeps the value of an answer removed by a forced structural deletion.
type ArchivedAnswer struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	ReportID        string `gorm:"size:36;index"`
	CheckPointID    uint   `gorm:"index"`
	CheckPointLabel string `gorm:"size:255"`
	OperationName   string `gorm:"size:255"`
	Value           string `gorm:"type:text"`
	AnsweredBy      string `gorm:"size:64"`
	AnsweredAt      time.Time
	ArchivedBy      string `gorm:"size:64"`
	Reason          string `gorm:"size:255"`
	ArchivedAt      time.Time
}
