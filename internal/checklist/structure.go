package checklist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yazid-hub/GMOA/internal/audit"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CheckPointOpts holds the editable fields of a check point.
type CheckPointOpts struct {
	Label            string `validate:"required,max=255"`
	Help             string
	FieldType        string `validate:"omitempty,oneof=Text Number Boolean Select Textarea Date Time DateTime"`
	Options          []string
	Required         bool
	DependsOnPointID *uint
	DisplayCondition string `validate:"max=100"`
	CanPhoto         bool
	CanAudio         bool
	CanVideo         bool
	CanFiles         bool
	AllowedFileTypes []string
	MaxFileSizeMB    int `validate:"gte=0,lte=2048"`
	CanRequestRepair bool
}

func (o CheckPointOpts) apply(p *models.CheckPoint) {
	p.Label = o.Label
	p.Help = o.Help
	p.FieldType = o.FieldType
	if p.FieldType == "" {
		p.FieldType = models.FieldText
	}
	p.Options = datatypes.JSONSlice[string](cleanList(o.Options))
	p.Required = o.Required
	p.DependsOnPointID = o.DependsOnPointID
	p.DisplayCondition = strings.TrimSpace(o.DisplayCondition)
	p.CanPhoto = o.CanPhoto
	p.CanAudio = o.CanAudio
	p.CanVideo = o.CanVideo
	p.CanFiles = o.CanFiles
	p.AllowedFileTypes = datatypes.JSONSlice[string](NormalizeFileTypes(o.AllowedFileTypes))
	p.MaxFileSizeMB = o.MaxFileSizeMB
	if p.MaxFileSizeMB == 0 {
		p.MaxFileSizeMB = 10
	}
	p.CanRequestRepair = o.CanRequestRepair
}

func (o CheckPointOpts) check() error {
	if err := gmaoerr.CheckStruct(o); err != nil {
		return err
	}
	if o.DisplayCondition != "" && o.DependsOnPointID == nil {
		return gmaoerr.Invalid("display_condition", "a display condition needs a parent check point")
	}
	if _, err := ParseCondition(o.DisplayCondition); err != nil {
		return gmaoerr.Invalid("display_condition", "%v", err)
	}
	return nil
}

// AddOperation appends an operation to a Draft template.
func (s *Service) AddOperation(ctx context.Context, actor auth.Actor, templateID, name string) (*models.Operation, error) {
	if err := s.gate.RequireManageTemplates(actor, "add operation"); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, gmaoerr.Invalid("name", "operation name is required")
	}
	var op models.Operation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadDraft(tx, templateID, "add operation"); err != nil {
			return err
		}
		next, err := nextOrder(tx.Model(&models.Operation{}).Where("template_id = ?", templateID))
		if err != nil {
			return err
		}
		op = models.Operation{TemplateID: templateID, Name: name, Order: next}
		if err := tx.Create(&op).Error; err != nil {
			return fmt.Errorf("checklist: create operation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// RenameOperation changes the name of an operation of a Draft template.
func (s *Service) RenameOperation(ctx context.Context, actor auth.Actor, opID uint, name string) error {
	if err := s.gate.RequireManageTemplates(actor, "rename operation"); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return gmaoerr.Invalid("name", "operation name is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		op, err := loadOperation(tx, opID)
		if err != nil {
			return err
		}
		if _, err := loadDraft(tx, op.TemplateID, "rename operation"); err != nil {
			return err
		}
		if err := tx.Model(&models.Operation{}).Where("id = ?", opID).Update("name", name).Error; err != nil {
			return fmt.Errorf("checklist: rename operation %d: %w", opID, err)
		}
		return nil
	})
}

// AddCheckPoint appends a check point to an operation of a Draft template.
func (s *Service) AddCheckPoint(ctx context.Context, actor auth.Actor, opID uint, opts CheckPointOpts) (*models.CheckPoint, error) {
	if err := s.gate.RequireManageTemplates(actor, "add check point"); err != nil {
		return nil, err
	}
	if err := opts.check(); err != nil {
		return nil, err
	}
	var p models.CheckPoint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		op, err := loadOperation(tx, opID)
		if err != nil {
			return err
		}
		if _, err := loadDraft(tx, op.TemplateID, "add check point"); err != nil {
			return err
		}
		if opts.DependsOnPointID != nil {
			if err := checkDependency(tx, op.TemplateID, 0, *opts.DependsOnPointID); err != nil {
				return err
			}
		}
		next, err := nextOrder(tx.Model(&models.CheckPoint{}).Where("operation_id = ?", opID))
		if err != nil {
			return err
		}
		p = models.CheckPoint{OperationID: opID, TemplateID: op.TemplateID, Order: next}
		opts.apply(&p)
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("checklist: create check point: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateCheckPoint replaces the editable fields of a check point of a Draft template.
func (s *Service) UpdateCheckPoint(ctx context.Context, actor auth.Actor, pointID uint, opts CheckPointOpts) (*models.CheckPoint, error) {
	if err := s.gate.RequireManageTemplates(actor, "update check point"); err != nil {
		return nil, err
	}
	if err := opts.check(); err != nil {
		return nil, err
	}
	var p models.CheckPoint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", pointID).First(&p).Error; err != nil {
			return notFound(err, "check point", fmt.Sprint(pointID))
		}
		if _, err := loadDraft(tx, p.TemplateID, "update check point"); err != nil {
			return err
		}
		if opts.DependsOnPointID != nil {
			if err := checkDependency(tx, p.TemplateID, p.ID, *opts.DependsOnPointID); err != nil {
				return err
			}
		}
		opts.apply(&p)
		if err := tx.Save(&p).Error; err != nil {
			return fmt.Errorf("checklist: update check point %d: %w", pointID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RemoveCheckPoint deletes a check point and renumbers its siblings.
//
// On a Draft template without answers this is a plain delete. Once the
// template is Validated, or answers reference the point, removal requires
// force, which is only honored when forced deletion is enabled; the answers
// are then copied to the archive before being deleted. Removal is always
// refused while other points depend on this one.
func (s *Service) RemoveCheckPoint(ctx context.Context, actor auth.Actor, pointID uint, force bool) error {
	if err := s.gate.RequireManageTemplates(actor, "remove check point"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.CheckPoint
		if err := tx.Where("id = ?", pointID).First(&p).Error; err != nil {
			return notFound(err, "check point", fmt.Sprint(pointID))
		}
		op, err := loadOperation(tx, p.OperationID)
		if err != nil {
			return err
		}
		if err := s.removePoints(tx, actor, op, []models.CheckPoint{p}, force, "remove check point"); err != nil {
			return err
		}
		return renumber(tx, &models.CheckPoint{}, "operation_id", p.OperationID)
	})
}

// RemoveOperation deletes an operation with all its check points, under the
// same policy as RemoveCheckPoint, and renumbers the remaining operations.
func (s *Service) RemoveOperation(ctx context.Context, actor auth.Actor, opID uint, force bool) error {
	if err := s.gate.RequireManageTemplates(actor, "remove operation"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		op, err := loadOperation(tx, opID)
		if err != nil {
			return err
		}
		var points []models.CheckPoint
		if err := tx.Where("operation_id = ?", opID).Find(&points).Error; err != nil {
			return fmt.Errorf("checklist: list check points of operation %d: %w", opID, err)
		}
		if err := s.removePoints(tx, actor, op, points, force, "remove operation"); err != nil {
			return err
		}
		if err := tx.Where("id = ?", opID).Delete(&models.Operation{}).Error; err != nil {
			return fmt.Errorf("checklist: delete operation %d: %w", opID, err)
		}
		return renumber(tx, &models.Operation{}, "template_id", op.TemplateID)
	})
}

func (s *Service) removePoints(tx *gorm.DB, actor auth.Actor, op *models.Operation, points []models.CheckPoint, force bool, action string) error {
	ids := make([]uint, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	if len(ids) > 0 {
		deps, err := dependents(tx, ids)
		if err != nil {
			return err
		}
		if len(deps) > 0 {
			return gmaoerr.Invalid("depends_on", "check point(s) %v depend on the removed point(s)", deps)
		}
	}

	var tpl models.ChecklistTemplate
	if err := tx.Where("id = ?", op.TemplateID).First(&tpl).Error; err != nil {
		return notFound(err, "template", op.TemplateID)
	}
	var answered int64
	if len(ids) > 0 {
		if err := tx.Model(&models.Answer{}).Where("check_point_id IN ?", ids).Count(&answered).Error; err != nil {
			return fmt.Errorf("checklist: count answers: %w", err)
		}
	}

	forced := tpl.Status != models.TemplateDraft || answered > 0
	if forced {
		if !force {
			status := tpl.Status
			if answered > 0 {
				status = fmt.Sprintf("%s with %d answer(s)", tpl.Status, answered)
			}
			return gmaoerr.InvalidState("template", tpl.ID, status, action)
		}
		if !s.features.AllowForcedDeletion {
			return &gmaoerr.PermissionDeniedError{ActorID: actor.ID, Action: "force delete", Reason: "forced deletion is disabled"}
		}
		archived, err := archiveAnswers(tx, op, points, actor.ID, s.clock.Now())
		if err != nil {
			return err
		}
		s.log.Warn("forced structural deletion",
			zap.String("template", tpl.ID), zap.Uint("operation", op.ID),
			zap.Int("points", len(points)), zap.Int("archived_answers", archived),
			zap.String("actor", actor.ID))
	}

	if len(ids) > 0 {
		if err := tx.Where("id IN ?", ids).Delete(&models.CheckPoint{}).Error; err != nil {
			return fmt.Errorf("checklist: delete check points: %w", err)
		}
	}
	if !forced {
		return nil
	}
	return audit.Record(tx, audit.Entry{
		EntityType: audit.EntityOperation, EntityID: fmt.Sprint(op.ID), Action: "force_delete",
		Description: fmt.Sprintf("%s: %d check point(s) from %q", action, len(points), op.Name),
		ActorID:     actor.ID, Old: points,
	}, s.clock.Now())
}

// archiveAnswers copies the answers of points to the archive and deletes
// them along with their media metadata.
func archiveAnswers(tx *gorm.DB, op *models.Operation, points []models.CheckPoint, actorID string, now time.Time) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	labels := make(map[uint]string, len(points))
	ids := make([]uint, len(points))
	for i, p := range points {
		labels[p.ID] = p.Label
		ids[i] = p.ID
	}
	var answers []models.Answer
	if err := tx.Where("check_point_id IN ?", ids).Find(&answers).Error; err != nil {
		return 0, fmt.Errorf("checklist: load answers to archive: %w", err)
	}
	if len(answers) == 0 {
		return 0, nil
	}

	archived := make([]models.ArchivedAnswer, len(answers))
	answerIDs := make([]uint, len(answers))
	for i, a := range answers {
		answerIDs[i] = a.ID
		archived[i] = models.ArchivedAnswer{
			ReportID:        a.ReportID,
			CheckPointID:    a.CheckPointID,
			CheckPointLabel: labels[a.CheckPointID],
			OperationName:   op.Name,
			Value:           a.Value,
			AnsweredBy:      a.AnsweredBy,
			AnsweredAt:      a.AnsweredAt,
			ArchivedBy:      actorID,
			Reason:          "forced structural deletion",
			ArchivedAt:      now,
		}
	}
	if err := tx.Create(&archived).Error; err != nil {
		return 0, fmt.Errorf("checklist: archive answers: %w", err)
	}
	if err := tx.Where("answer_id IN ?", answerIDs).Delete(&models.MediaAttachment{}).Error; err != nil {
		return 0, fmt.Errorf("checklist: delete media of archived answers: %w", err)
	}
	if err := tx.Where("id IN ?", answerIDs).Delete(&models.Answer{}).Error; err != nil {
		return 0, fmt.Errorf("checklist: delete archived answers: %w", err)
	}
	return len(answers), nil
}

// ReorderOperations sets the operation order of a Draft template. ids must
// list every operation exactly once.
func (s *Service) ReorderOperations(ctx context.Context, actor auth.Actor, templateID string, ids []uint) error {
	if err := s.gate.RequireManageTemplates(actor, "reorder operations"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadDraft(tx, templateID, "reorder operations"); err != nil {
			return err
		}
		var current []uint
		if err := tx.Model(&models.Operation{}).Where("template_id = ?", templateID).Pluck("id", &current).Error; err != nil {
			return fmt.Errorf("checklist: list operations: %w", err)
		}
		return reorder(tx, &models.Operation{}, current, ids)
	})
}

// ReorderCheckPoints sets the check point order of an operation of a Draft template.
func (s *Service) ReorderCheckPoints(ctx context.Context, actor auth.Actor, opID uint, ids []uint) error {
	if err := s.gate.RequireManageTemplates(actor, "reorder check points"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		op, err := loadOperation(tx, opID)
		if err != nil {
			return err
		}
		if _, err := loadDraft(tx, op.TemplateID, "reorder check points"); err != nil {
			return err
		}
		var current []uint
		if err := tx.Model(&models.CheckPoint{}).Where("operation_id = ?", opID).Pluck("id", &current).Error; err != nil {
			return fmt.Errorf("checklist: list check points: %w", err)
		}
		return reorder(tx, &models.CheckPoint{}, current, ids)
	})
}

// reorder assigns positions 1..n following ids. Positions are first moved to
// negative values so the unique (parent, position) index never collides.
func reorder(tx *gorm.DB, model any, current, ids []uint) error {
	if len(current) != len(ids) {
		return gmaoerr.Invalid("order", "expected %d ids, got %d", len(current), len(ids))
	}
	want := make(map[uint]bool, len(current))
	for _, id := range current {
		want[id] = true
	}
	for _, id := range ids {
		if !want[id] {
			return gmaoerr.Invalid("order", "id %d is unknown or repeated", id)
		}
		delete(want, id)
	}
	for i, id := range ids {
		if err := tx.Model(model).Where("id = ?", id).Update("position", -(i + 1)).Error; err != nil {
			return fmt.Errorf("checklist: reorder %d: %w", id, err)
		}
	}
	for i, id := range ids {
		if err := tx.Model(model).Where("id = ?", id).Update("position", i+1).Error; err != nil {
			return fmt.Errorf("checklist: reorder %d: %w", id, err)
		}
	}
	return nil
}

// renumber closes gaps left by a removal so positions stay 1..n. Rows are
// moved down in ascending order, so each target slot is already free.
func renumber(tx *gorm.DB, model any, scope string, scopeID any) error {
	var rows []struct {
		ID       uint
		Position int
	}
	err := tx.Model(model).Select("id", "position").Where(scope+" = ?", scopeID).
		Order("position ASC").Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("checklist: load positions: %w", err)
	}
	for i, r := range rows {
		if r.Position == i+1 {
			continue
		}
		if err := tx.Model(model).Where("id = ?", r.ID).Update("position", i+1).Error; err != nil {
			return fmt.Errorf("checklist: renumber %d: %w", r.ID, err)
		}
	}
	return nil
}

// nextOrder returns max(position)+1 for the scoped query.
func nextOrder(q *gorm.DB) (int, error) {
	var max int
	if err := q.Select("COALESCE(MAX(position), 0)").Scan(&max).Error; err != nil {
		return 0, fmt.Errorf("checklist: next order: %w", err)
	}
	return max + 1, nil
}

func loadOperation(tx *gorm.DB, id uint) (*models.Operation, error) {
	var op models.Operation
	if err := tx.Where("id = ?", id).First(&op).Error; err != nil {
		return nil, notFound(err, "operation", fmt.Sprint(id))
	}
	return &op, nil
}

// loadDraft loads a template and fails with a StateError unless it is Draft.
func loadDraft(tx *gorm.DB, id, op string) (*models.ChecklistTemplate, error) {
	var tpl models.ChecklistTemplate
	if err := tx.Where("id = ?", id).First(&tpl).Error; err != nil {
		return nil, notFound(err, "template", id)
	}
	if tpl.Status != models.TemplateDraft {
		return nil, gmaoerr.InvalidState("template", id, tpl.Status, op)
	}
	return &tpl, nil
}
