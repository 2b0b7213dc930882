package checklist

import (
	"fmt"

	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
	"gorm.io/gorm"
)

// checkDependency verifies that point may depend on parent: the parent must
// exist in the same template and the edge must not close a cycle.
func checkDependency(tx *gorm.DB, templateID string, pointID, parentID uint) error {
	if pointID != 0 && pointID == parentID {
		return &gmaoerr.CyclicDependencyError{CheckPointID: pointID, DependsOnID: parentID}
	}
	var parent models.CheckPoint
	if err := tx.Where("id = ?", parentID).First(&parent).Error; err != nil {
		return notFound(err, "check point", fmt.Sprint(parentID))
	}
	if parent.TemplateID != templateID {
		return gmaoerr.Invalid("depends_on", "check point %d belongs to another template", parentID)
	}
	if pointID == 0 {
		return nil
	}
	cyclic, err := hasCycle(tx, pointID, parentID)
	if err != nil {
		return err
	}
	if cyclic {
		return &gmaoerr.CyclicDependencyError{CheckPointID: pointID, DependsOnID: parentID}
	}
	return nil
}

// hasCycle checks if adding pointID → parentID would create a cycle by
// walking the dependency edges up from parentID.
func hasCycle(tx *gorm.DB, pointID, parentID uint) (bool, error) {
	visited := make(map[uint]bool)
	return reachable(tx, parentID, pointID, visited)
}

// reachable follows depends_on edges from current and reports whether target is met.
func reachable(tx *gorm.DB, current, target uint, visited map[uint]bool) (bool, error) {
	if current == target {
		return true, nil
	}
	if visited[current] {
		return false, nil
	}
	visited[current] = true

	var p models.CheckPoint
	if err := tx.Select("id", "depends_on_point_id").Where("id = ?", current).First(&p).Error; err != nil {
		return false, fmt.Errorf("checklist: walk dependency %d: %w", current, err)
	}
	if p.DependsOnPointID == nil {
		return false, nil
	}
	return reachable(tx, *p.DependsOnPointID, target, visited)
}

// dependents returns the IDs of points depending on any of ids, excluding ids themselves.
func dependents(tx *gorm.DB, ids []uint) ([]uint, error) {
	var out []uint
	err := tx.Model(&models.CheckPoint{}).
		Where("depends_on_point_id IN ? AND id NOT IN ?", ids, ids).
		Pluck("id", &out).Error
	if err != nil {
		return nil, fmt.Errorf("checklist: list dependents: %w", err)
	}
	return out, nil
}
