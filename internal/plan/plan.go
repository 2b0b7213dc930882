// Package plan schedules preventive maintenance: each plan pairs a template
// and an asset with a cron schedule, and Run turns due plans into work
// orders. Run is invoked from outside; nothing here ticks on its own.
package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yazid-hub/GMOA/internal/audit"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/clock"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/logging"
	"github.com/yazid-hub/GMOA/internal/metrics"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/workorder"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service manages preventive plans.
type Service struct {
	db     *gorm.DB
	gate   *auth.Gate
	orders *workorder.Service
	clock  clock.Clock
	log    *zap.Logger
}

// NewService creates a plan service that schedules through orders.
func NewService(db *gorm.DB, gate *auth.Gate, orders *workorder.Service, clk clock.Clock, log *zap.Logger) *Service {
	return &Service{db: db, gate: gate, orders: orders, clock: clk, log: logging.OrNop(log)}
}

// CreateOpts holds parameters for a preventive plan.
type CreateOpts struct {
	Title              string `validate:"required,max=255"`
	TemplateID         string `validate:"required"`
	AssetID            string `validate:"required"`
	Schedule           string `validate:"required,max=64"`
	Priority           int    `validate:"omitempty,min=1,max=4"`
	AssignedTechnician *string
	AssignedTeam       *string
	// FirstDue overrides the first occurrence computed from Schedule.
	FirstDue *time.Time
}

// Create registers an active plan.
func (s *Service) Create(ctx context.Context, actor auth.Actor, opts CreateOpts) (*models.PreventivePlan, error) {
	if err := s.gate.RequireManageWorkOrders(actor, "create plan"); err != nil {
		return nil, err
	}
	if err := gmaoerr.CheckStruct(opts); err != nil {
		return nil, err
	}
	sched, err := ParseSchedule(opts.Schedule)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	p := &models.PreventivePlan{
		ID:                 uuid.NewString(),
		Title:              opts.Title,
		TemplateID:         opts.TemplateID,
		AssetID:            opts.AssetID,
		Schedule:           opts.Schedule,
		Priority:           opts.Priority,
		AssignedTechnician: opts.AssignedTechnician,
		AssignedTeam:       opts.AssignedTeam,
		NextDue:            sched.Next(now),
		Active:             true,
		CreatedBy:          actor.ID,
	}
	if opts.FirstDue != nil {
		p.NextDue = *opts.FirstDue
	}
	if p.Priority == 0 {
		p.Priority = 2
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tpl models.ChecklistTemplate
		if err := tx.Where("id = ?", p.TemplateID).First(&tpl).Error; err != nil {
			return notFound(err, "template", p.TemplateID)
		}
		if tpl.Status != models.TemplateValidated {
			return gmaoerr.InvalidState("template", tpl.ID, tpl.Status, "plan")
		}
		var count int64
		if err := tx.Model(&models.Asset{}).Where("id = ?", p.AssetID).Count(&count).Error; err != nil {
			return fmt.Errorf("plan: check asset %s: %w", p.AssetID, err)
		}
		if count == 0 {
			return gmaoerr.NotFound("asset", p.AssetID)
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("plan: create: %w", err)
		}
		return audit.Record(tx, audit.Entry{
			EntityType: audit.EntityPlan, EntityID: p.ID, Action: "create",
			Description: p.Title + " (" + p.Schedule + ")", ActorID: actor.ID,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Get loads a plan.
func (s *Service) Get(ctx context.Context, id string) (*models.PreventivePlan, error) {
	var p models.PreventivePlan
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err, "plan", id)
	}
	return &p, nil
}

// List returns plans ordered by next due date.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]models.PreventivePlan, error) {
	q := s.db.WithContext(ctx).Order("next_due ASC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var out []models.PreventivePlan
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("plan: list: %w", err)
	}
	return out, nil
}

// SetActive pauses or resumes a plan.
func (s *Service) SetActive(ctx context.Context, actor auth.Actor, id string, active bool) error {
	if err := s.gate.RequireManageWorkOrders(actor, "update plan"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PreventivePlan{}).Where("id = ?", id).Update("active", active)
		if res.Error != nil {
			return fmt.Errorf("plan: set active %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return gmaoerr.NotFound("plan", id)
		}
		return audit.Record(tx, audit.Entry{
			EntityType: audit.EntityPlan, EntityID: id, Action: "active", ActorID: actor.ID,
			New: map[string]any{"active": active},
		}, s.clock.Now())
	})
}

// Run creates one preventive work order for every active plan due at or
// before now and advances its due date past now. Occurrences missed while
// nobody ran the job are collapsed into that single order. A failing plan
// does not stop the others; all failures are returned joined.
func (s *Service) Run(ctx context.Context, actor auth.Actor) ([]models.WorkOrder, error) {
	if err := s.gate.RequireManageWorkOrders(actor, "run plans"); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var due []models.PreventivePlan
	err := s.db.WithContext(ctx).
		Where("active = ? AND next_due <= ?", true, now).
		Order("next_due ASC").Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("plan: due plans: %w", err)
	}

	var created []models.WorkOrder
	var errs []error
	for i := range due {
		wo, err := s.runOne(ctx, actor, &due[i], now)
		if err != nil {
			s.log.Warn("preventive plan failed", zap.String("plan", due[i].ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("plan %s: %w", due[i].ID, err))
			continue
		}
		if wo == nil {
			continue
		}
		s.orders.Created(ctx, wo)
		metrics.PlanRuns.Inc()
		created = append(created, *wo)
	}
	return created, errors.Join(errs...)
}

// runOne schedules a single plan. It returns nil, nil when another run
// already advanced the plan.
func (s *Service) runOne(ctx context.Context, actor auth.Actor, p *models.PreventivePlan, now time.Time) (*models.WorkOrder, error) {
	sched, err := ParseSchedule(p.Schedule)
	if err != nil {
		return nil, err
	}
	next := sched.Next(now)
	var wo *models.WorkOrder
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PreventivePlan{}).
			Where("id = ? AND next_due = ?", p.ID, p.NextDue).
			Updates(map[string]any{"next_due": next, "last_run_at": now})
		if res.Error != nil {
			return fmt.Errorf("advance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		planID := p.ID
		wo, err = s.orders.CreateIn(tx, actor, workorder.CreateOpts{
			Title:              p.Title,
			Type:               models.WorkOrderPreventive,
			TemplateID:         p.TemplateID,
			AssetID:            p.AssetID,
			ScheduledStart:     p.NextDue,
			Priority:           p.Priority,
			AssignedTechnician: p.AssignedTechnician,
			AssignedTeam:       p.AssignedTeam,
			PlanID:             &planID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return wo, nil
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gmaoerr.NotFound(entity, id)
	}
	return fmt.Errorf("plan: get %s %s: %w", entity, id, err)
}
