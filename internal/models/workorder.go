package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Work order types.
const (
	WorkOrderPreventive = "Preventive"
	WorkOrderCorrective = "Corrective"
	WorkOrderPredictive = "Predictive"
	WorkOrderInspection = "Inspection"
	WorkOrderAudit      = "Audit"
	WorkOrderOther      = "Other"
)

// WorkflowStatus is one entry of the configurable work-order status set.
type WorkflowStatus struct {
	Name        string `gorm:"primaryKey;size:32"`
	Phase       string `gorm:"size:16;not null;index"`
	Final       bool   `gorm:"not null"`
	Color       string `gorm:"size:7;default:#808080"`
	Description string `gorm:"size:255"`
}

// WorkOrder schedules a validated template against an asset.
type WorkOrder struct {
	ID                 string          `gorm:"primaryKey;size:36"`
	Title              string          `gorm:"size:255;not null"`
	Description        string          `gorm:"type:text"`
	Type               string          `gorm:"size:16;default:Other"`
	TemplateID         string          `gorm:"size:36;not null;index"`
	AssetID            string          `gorm:"size:64;not null;index"`
	PlanID             *string         `gorm:"size:36;index"`
	CreatedBy          string          `gorm:"size:64"`
	AssignedTechnician *string         `gorm:"size:64;index"`
	AssignedTeam       *string         `gorm:"size:64;index"`
	Status             string          `gorm:"size:32;not null;index"`
	Priority           int             `gorm:"default:2"`
	ScheduledStart     time.Time       `gorm:"index"`
	ActualStart        *time.Time
	ActualEnd          *time.Time
	LaborCost          decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	PartsCost          decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
