package models

import "time"

// Execution report status values.
const (
	ReportDraft      = "Draft"
	ReportInProgress = "InProgress"
	ReportFinalized  = "Finalized"
	ReportArchived   = "Archived"
)

// Media kinds.
const (
	MediaPhoto    = "Photo"
	MediaAudio    = "Audio"
	MediaVideo    = "Video"
	MediaDocument = "Document"
)

// ExecutionReport is the single checklist run of a work order.
type ExecutionReport struct {
	ID            string `gorm:"primaryKey;size:36"`
	WorkOrderID   string `gorm:"size:36;not null;uniqueIndex"`
	Status        string `gorm:"size:16;default:Draft;index"`
	StartedAt     *time.Time
	FinishedAt    *time.Time
	GlobalComment string `gorm:"type:text"`
	CreatedBy     string `gorm:"size:64"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Answers []Answer `gorm:"foreignKey:ReportID"`
}

// Answer is the recorded value of one check point in a report.
type Answer struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	ReportID     string `gorm:"size:36;not null;uniqueIndex:idx_answer_report_point"`
	CheckPointID uint   `gorm:"not null;uniqueIndex:idx_answer_report_point"`
	Value        string `gorm:"type:text"`
	AnsweredBy   string `gorm:"size:64"`
	AnsweredAt   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Media []MediaAttachment `gorm:"foreignKey:AnswerID"`
}

// MediaAttachment is evidence attached to an answer. The binary lives in the blob store.
type MediaAttachment struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	AnswerID     uint   `gorm:"not null;index"`
	Kind         string `gorm:"size:16;not null"`
	StorageKey   string `gorm:"size:255;not null;uniqueIndex"`
	OriginalName string `gorm:"size:255"`
	SizeBytes    int64
	SHA256       string `gorm:"size:64"`
	Caption      string `gorm:"size:255"`
	UploadedBy   string `gorm:"size:64"`
	UploadedAt   time.Time
}
