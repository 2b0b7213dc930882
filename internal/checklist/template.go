// Package checklist manages checklist templates, their operations and check
// points, and evaluates field types and conditional visibility.
package checklist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/yazid-hub/GMOA/internal/audit"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/clock"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/logging"
	"github.com/yazid-hub/GMOA/internal/metrics"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service mutates checklist templates on behalf of an actor.
type Service struct {
	db       *gorm.DB
	gate     *auth.Gate
	clock    clock.Clock
	features config.FeatureConfig
	log      *zap.Logger
}

// NewService creates a template service.
func NewService(db *gorm.DB, gate *auth.Gate, clk clock.Clock, features config.FeatureConfig, log *zap.Logger) *Service {
	return &Service{db: db, gate: gate, clock: clk, features: features, log: logging.OrNop(log)}
}

// CreateOpts holds parameters for creating a template.
type CreateOpts struct {
	Name                string `validate:"required,max=255"`
	Description         string
	EstimatedHours      int `validate:"gte=0,lte=1000"`
	RequiredTechnicians int `validate:"gte=0,lte=100"`
}

// Create creates a Draft template.
func (s *Service) Create(ctx context.Context, actor auth.Actor, opts CreateOpts) (*models.ChecklistTemplate, error) {
	if err := s.gate.RequireManageTemplates(actor, "create template"); err != nil {
		return nil, err
	}
	if err := gmaoerr.CheckStruct(opts); err != nil {
		return nil, err
	}

	tpl := models.ChecklistTemplate{
		ID:                  uuid.NewString(),
		Name:                opts.Name,
		Description:         opts.Description,
		Status:              models.TemplateDraft,
		EstimatedHours:      opts.EstimatedHours,
		RequiredTechnicians: opts.RequiredTechnicians,
		CreatedBy:           actor.ID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tpl).Error; err != nil {
			return fmt.Errorf("checklist: create template: %w", err)
		}
		return audit.Record(tx, audit.Entry{
			EntityType: audit.EntityTemplate, EntityID: tpl.ID, Action: "create",
			Description: tpl.Name, ActorID: actor.ID,
		}, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Get loads a template with its operations and check points in order.
func (s *Service) Get(ctx context.Context, id string) (*models.ChecklistTemplate, error) {
	return Load(s.db.WithContext(ctx), id)
}

// Load loads a template with its operations and check points in order.
// It works on any handle, including an open transaction.
func Load(db *gorm.DB, id string) (*models.ChecklistTemplate, error) {
	var tpl models.ChecklistTemplate
	err := db.
		Preload("Operations", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Operations.CheckPoints", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).First(&tpl).Error
	if err != nil {
		return nil, notFound(err, "template", id)
	}
	return &tpl, nil
}

// List returns templates, optionally filtered by status, newest first.
func (s *Service) List(ctx context.Context, status string) ([]models.ChecklistTemplate, error) {
	q := s.db.WithContext(ctx).Model(&models.ChecklistTemplate{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var tpls []models.ChecklistTemplate
	if err := q.Order("created_at DESC").Find(&tpls).Error; err != nil {
		return nil, fmt.Errorf("checklist: list templates: %w", err)
	}
	return tpls, nil
}

// Validate freezes a Draft template. Every problem found is reported together.
func (s *Service) Validate(ctx context.Context, actor auth.Actor, id string) (err error) {
	ctx, span := observability.Start(ctx, "checklist.Validate", attribute.String("template.id", id))
	defer func() { observability.End(span, err) }()

	if err := s.gate.RequireManageTemplates(actor, "validate template"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tpl, err := Load(tx, id)
		if err != nil {
			return err
		}
		if tpl.Status != models.TemplateDraft {
			return gmaoerr.InvalidState("template", id, tpl.Status, "validate")
		}
		if err := checkStructure(tpl); err != nil {
			return err
		}
		now := s.clock.Now()
		if err := transition(tx, id, models.TemplateDraft, models.TemplateValidated, map[string]any{"validated_at": now}); err != nil {
			return err
		}
		metrics.TemplateTransitions.WithLabelValues(models.TemplateValidated).Inc()
		return audit.Record(tx, audit.StatusChange(audit.EntityTemplate, id, actor.ID, models.TemplateDraft, models.TemplateValidated), now)
	})
}

// Archive retires a Validated template. Existing work orders keep referencing it.
func (s *Service) Archive(ctx context.Context, actor auth.Actor, id string) error {
	if err := s.gate.RequireManageTemplates(actor, "archive template"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tpl models.ChecklistTemplate
		if err := tx.Where("id = ?", id).First(&tpl).Error; err != nil {
			return notFound(err, "template", id)
		}
		if tpl.Status != models.TemplateValidated {
			return gmaoerr.InvalidState("template", id, tpl.Status, "archive")
		}
		if err := transition(tx, id, models.TemplateValidated, models.TemplateArchived, nil); err != nil {
			return err
		}
		metrics.TemplateTransitions.WithLabelValues(models.TemplateArchived).Inc()
		return audit.Record(tx, audit.StatusChange(audit.EntityTemplate, id, actor.ID, models.TemplateValidated, models.TemplateArchived), s.clock.Now())
	})
}

// Delete removes a template and its structure. It is refused while any work
// order references the template.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	if err := s.gate.RequireManageTemplates(actor, "delete template"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tpl models.ChecklistTemplate
		if err := tx.Where("id = ?", id).First(&tpl).Error; err != nil {
			return notFound(err, "template", id)
		}
		var refs int64
		if err := tx.Model(&models.WorkOrder{}).Where("template_id = ?", id).Count(&refs).Error; err != nil {
			return fmt.Errorf("checklist: count work orders of %s: %w", id, err)
		}
		if refs > 0 {
			return gmaoerr.InvalidState("template", id, fmt.Sprintf("referenced by %d work order(s)", refs), "delete")
		}
		if err := tx.Where("template_id = ?", id).Delete(&models.CheckPoint{}).Error; err != nil {
			return fmt.Errorf("checklist: delete check points of %s: %w", id, err)
		}
		if err := tx.Where("template_id = ?", id).Delete(&models.Operation{}).Error; err != nil {
			return fmt.Errorf("checklist: delete operations of %s: %w", id, err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.ChecklistTemplate{}).Error; err != nil {
			return fmt.Errorf("checklist: delete template %s: %w", id, err)
		}
		return audit.Record(tx, audit.Entry{
			EntityType: audit.EntityTemplate, EntityID: id, Action: "delete",
			Description: tpl.Name, ActorID: actor.ID, Old: tpl,
		}, s.clock.Now())
	})
}

// checkStructure returns the joined list of structural problems preventing validation.
func checkStructure(tpl *models.ChecklistTemplate) error {
	var errs []error
	points := 0
	inTemplate := make(map[uint]bool)
	for _, op := range tpl.Operations {
		for _, p := range op.CheckPoints {
			inTemplate[p.ID] = true
		}
	}
	for _, op := range tpl.Operations {
		if len(op.CheckPoints) == 0 {
			errs = append(errs, gmaoerr.Invalid("operations", "operation %q has no check points", op.Name))
		}
		for _, p := range op.CheckPoints {
			points++
			if p.FieldType == models.FieldSelect && len(p.Options) == 0 {
				errs = append(errs, gmaoerr.Invalid("options", "select check point %q has no options", p.Label))
			}
			if p.DependsOnPointID == nil {
				if p.DisplayCondition != "" {
					errs = append(errs, gmaoerr.Invalid("display_condition", "check point %q has a condition but no parent", p.Label))
				}
				continue
			}
			if !inTemplate[*p.DependsOnPointID] {
				errs = append(errs, gmaoerr.Invalid("depends_on", "check point %q depends on a point outside the template", p.Label))
			}
			if _, err := ParseCondition(p.DisplayCondition); err != nil {
				errs = append(errs, gmaoerr.Invalid("display_condition", "check point %q: %v", p.Label, err))
			}
		}
	}
	if points == 0 {
		errs = append(errs, gmaoerr.Invalid("check_points", "template has no check points"))
	}
	return errors.Join(errs...)
}

// transition moves a template from one status to another, failing if the
// row changed underneath.
func transition(tx *gorm.DB, id, from, to string, extra map[string]any) error {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.ChecklistTemplate{}).Where("id = ? AND status = ?", id, from).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("checklist: set template %s to %s: %w", id, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return &gmaoerr.ConflictError{Entity: "template", Key: id, Reason: "status changed concurrently"}
	}
	return nil
}

// notFound translates gorm.ErrRecordNotFound into a NotFoundError.
func notFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gmaoerr.NotFound(entity, id)
	}
	return fmt.Errorf("checklist: get %s %s: %w", entity, id, err)
}
