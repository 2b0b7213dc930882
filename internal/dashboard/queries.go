package dashboard

import (
	"fmt"

	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/models"
	"gorm.io/gorm"
)

// StatusCount is the number of rows in one status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// PhaseCount groups work order counts under their configured phase.
type PhaseCount struct {
	Phase    string        `json:"phase"`
	Total    int64         `json:"total"`
	Statuses []StatusCount `json:"statuses"`
}

func countByStatus(db *gorm.DB, model any) ([]StatusCount, error) {
	var rows []StatusCount
	if err := db.Model(model).
		Select("status, count(*) as count").
		Group("status").
		Order("status ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// WorkOrderSummary returns work order counts grouped by workflow phase, in
// the order the phases are configured. Statuses no longer configured are
// reported under the phase "unknown".
func WorkOrderSummary(db *gorm.DB, workflow config.WorkflowConfig) ([]PhaseCount, error) {
	rows, err := countByStatus(db, &models.WorkOrder{})
	if err != nil {
		return nil, fmt.Errorf("dashboard: work order summary: %w", err)
	}

	var out []PhaseCount
	index := make(map[string]int)
	phase := func(name string) *PhaseCount {
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, PhaseCount{Phase: name, Statuses: []StatusCount{}})
		}
		return &out[i]
	}
	for _, s := range workflow.Statuses {
		phase(s.Phase)
	}
	for _, r := range rows {
		name := workflow.PhaseOf(r.Status)
		if name == "" {
			name = "unknown"
		}
		pc := phase(name)
		pc.Total += r.Count
		pc.Statuses = append(pc.Statuses, r)
	}
	return out, nil
}

// RepairSummary returns repair request counts per status.
func RepairSummary(db *gorm.DB) ([]StatusCount, error) {
	rows, err := countByStatus(db, &models.RepairRequest{})
	if err != nil {
		return nil, fmt.Errorf("dashboard: repair summary: %w", err)
	}
	return rows, nil
}
