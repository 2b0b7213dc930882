package checklist

import (
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
)

// Visibility resolves which check points of a template are visible for a
// set of answers keyed by check point ID.
type Visibility struct {
	points  map[uint]*models.CheckPoint
	answers map[uint]string
	memo    map[uint]bool
	busy    map[uint]bool
}

// NewVisibility prepares a resolver over tpl, which must have its operations
// and check points loaded.
func NewVisibility(tpl *models.ChecklistTemplate, answers map[uint]string) *Visibility {
	v := &Visibility{
		points:  make(map[uint]*models.CheckPoint),
		answers: answers,
		memo:    make(map[uint]bool),
		busy:    make(map[uint]bool),
	}
	for i := range tpl.Operations {
		op := &tpl.Operations[i]
		for j := range op.CheckPoints {
			v.points[op.CheckPoints[j].ID] = &op.CheckPoints[j]
		}
	}
	return v
}

// Visible reports whether the point is shown. A point without a parent is
// always visible. A child is visible only if its parent is visible, answered,
// and the answer satisfies the display condition.
func (v *Visibility) Visible(id uint) bool {
	if res, ok := v.memo[id]; ok {
		return res
	}
	p, ok := v.points[id]
	if !ok || v.busy[id] {
		return false
	}
	v.busy[id] = true
	res := v.resolve(p)
	delete(v.busy, id)
	v.memo[id] = res
	return res
}

func (v *Visibility) resolve(p *models.CheckPoint) bool {
	if p.DependsOnPointID == nil {
		return true
	}
	parent := *p.DependsOnPointID
	if !v.Visible(parent) {
		return false
	}
	val, answered := v.answers[parent]
	if !answered {
		return false
	}
	cond, err := ParseCondition(p.DisplayCondition)
	if err != nil {
		return false
	}
	return cond.Match(val)
}

// MissingRequired lists, in template order, every required visible check
// point that has no answer.
func MissingRequired(tpl *models.ChecklistTemplate, answers map[uint]string) []gmaoerr.MissingAnswer {
	vis := NewVisibility(tpl, answers)
	var missing []gmaoerr.MissingAnswer
	for _, op := range tpl.Operations {
		for _, p := range op.CheckPoints {
			if !p.Required || !vis.Visible(p.ID) {
				continue
			}
			if val, ok := answers[p.ID]; ok && val != "" {
				continue
			}
			missing = append(missing, gmaoerr.MissingAnswer{
				OperationID:    op.ID,
				OperationName:  op.Name,
				CheckPointID:   p.ID,
				CheckPointName: p.Label,
			})
		}
	}
	return missing
}

// FindPoint returns the check point with the given ID and its operation.
func FindPoint(tpl *models.ChecklistTemplate, id uint) (*models.CheckPoint, *models.Operation) {
	for i := range tpl.Operations {
		op := &tpl.Operations[i]
		for j := range op.CheckPoints {
			if op.CheckPoints[j].ID == id {
				return &op.CheckPoints[j], op
			}
		}
	}
	return nil, nil
}
