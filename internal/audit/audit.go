// Package audit records the modification history of tracked entities.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yazid-hub/GMOA/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tracked entity types.
const (
	EntityTemplate   = "template"
	EntityCheckPoint = "check_point"
	EntityOperation  = "operation"
	EntityWorkOrder  = "work_order"
	EntityReport     = "report"
	EntityRepair     = "repair_request"
	EntityPlan       = "plan"
)

// Entry describes one change. Old and New are stored as JSON.
type Entry struct {
	EntityType  string
	EntityID    string
	Action      string
	Description string
	ActorID     string
	Old         any
	New         any
}

// Record writes an entry using db, which is normally the caller's transaction.
func Record(db *gorm.DB, e Entry, at time.Time) error {
	oldVal, err := toJSON(e.Old)
	if err != nil {
		return fmt.Errorf("audit: marshal old value: %w", err)
	}
	newVal, err := toJSON(e.New)
	if err != nil {
		return fmt.Errorf("audit: marshal new value: %w", err)
	}
	h := models.HistoryEntry{
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      e.Action,
		Description: e.Description,
		OldValue:    oldVal,
		NewValue:    newVal,
		ActorID:     e.ActorID,
		CreatedAt:   at,
	}
	if err := db.Create(&h).Error; err != nil {
		return fmt.Errorf("audit: record %s %s %s: %w", e.EntityType, e.EntityID, e.Action, err)
	}
	return nil
}

// StatusChange is a shorthand for a status transition entry.
func StatusChange(entityType, entityID, actorID, from, to string) Entry {
	return Entry{
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      "status",
		Description: fmt.Sprintf("%s -> %s", from, to),
		ActorID:     actorID,
		Old:         map[string]string{"status": from},
		New:         map[string]string{"status": to},
	}
}

// List returns the history of one entity, oldest first.
func List(db *gorm.DB, entityType, entityID string) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	err := db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC, id ASC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("audit: list %s %s: %w", entityType, entityID, err)
	}
	return entries, nil
}

func toJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return datatypes.JSON("null"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
