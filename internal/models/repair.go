package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Repair request status values.
const (
	RepairPending    = "Pending"
	RepairValidated  = "Validated"
	RepairInProgress = "InProgress"
	RepairDone       = "Done"
	RepairRejected   = "Rejected"
	RepairDeferred   = "Deferred"
)

// RepairRequest is a corrective follow-up raised from a check point during execution.
type RepairRequest struct {
	ID                string          `gorm:"primaryKey;size:36"`
	Number            string          `gorm:"size:20;not null;uniqueIndex"`
	WorkOrderID       string          `gorm:"size:36;not null;index"`
	CheckPointID      uint            `gorm:"not null;index"`
	OriginAnswerID    *uint           `gorm:"index"`
	Title             string          `gorm:"size:255;not null"`
	Description       string          `gorm:"type:text"`
	Priority          int             `gorm:"default:2"`
	Status            string          `gorm:"size:16;default:Pending;index"`
	CreatedBy         string          `gorm:"size:64"`
	ValidatedBy       *string         `gorm:"size:64"`
	AssignedTo        *string         `gorm:"size:64;index"`
	BlocksClosure     bool            `gorm:"not null"`
	EstimatedCost     decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	ActualCost        decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	DueDate           *time.Time
	ValidatedAt       *time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	TechnicianComment string `gorm:"type:text"`
	ManagerComment    string `gorm:"type:text"`
	ResolutionNote    string `gorm:"type:text"`
	DeferReason       string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SequenceCounter is a named monotonically increasing counter.
type SequenceCounter struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     int64  `gorm:"not null"`
	UpdatedAt time.Time
}
