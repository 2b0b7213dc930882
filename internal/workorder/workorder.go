// Package workorder drives the work-order lifecycle: scheduling a validated
// template against an asset, starting execution and closing or cancelling.
package workorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yazid-hub/GMOA/internal/audit"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/clock"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/logging"
	"github.com/yazid-hub/GMOA/internal/metrics"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service manages work orders on behalf of an actor.
type Service struct {
	db       *gorm.DB
	gate     *auth.Gate
	clock    clock.Clock
	workflow config.WorkflowConfig
	notifier *notify.Notifier
	log      *zap.Logger
}

// NewService creates a work-order service. notifier may be nil.
func NewService(db *gorm.DB, gate *auth.Gate, clk clock.Clock, workflow config.WorkflowConfig, notifier *notify.Notifier, log *zap.Logger) *Service {
	return &Service{db: db, gate: gate, clock: clk, workflow: workflow, notifier: notifier, log: logging.OrNop(log)}
}

// CreateOpts holds parameters for scheduling a work order.
type CreateOpts struct {
	Title              string `validate:"required,max=255"`
	Description        string
	Type               string `validate:"omitempty,oneof=Preventive Corrective Predictive Inspection Audit Other"`
	TemplateID         string `validate:"required"`
	AssetID            string `validate:"required"`
	ScheduledStart     time.Time
	Priority           int `validate:"omitempty,min=1,max=4"`
	AssignedTechnician *string
	AssignedTeam       *string
	PlanID             *string
}

// Create schedules a work order in the configured initial status.
func (s *Service) Create(ctx context.Context, actor auth.Actor, opts CreateOpts) (*models.WorkOrder, error) {
	var wo *models.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		wo, err = s.CreateIn(tx, actor, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Created(ctx, wo)
	return wo, nil
}

// CreateIn schedules a work order inside tx. The caller reports it with
// Created once tx commits.
func (s *Service) CreateIn(tx *gorm.DB, actor auth.Actor, opts CreateOpts) (*models.WorkOrder, error) {
	if err := s.gate.RequireManageWorkOrders(actor, "create work order"); err != nil {
		return nil, err
	}
	if err := gmaoerr.CheckStruct(opts); err != nil {
		return nil, err
	}

	var tpl models.ChecklistTemplate
	if err := tx.Where("id = ?", opts.TemplateID).First(&tpl).Error; err != nil {
		return nil, notFound(err, "template", opts.TemplateID)
	}
	if tpl.Status != models.TemplateValidated {
		return nil, gmaoerr.InvalidState("template", tpl.ID, tpl.Status, "schedule a work order")
	}
	var asset models.Asset
	if err := tx.Where("id = ?", opts.AssetID).First(&asset).Error; err != nil {
		return nil, notFound(err, "asset", opts.AssetID)
	}
	if err := checkAssignees(tx, opts.AssignedTechnician, opts.AssignedTeam); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	wo := &models.WorkOrder{
		ID:                 uuid.NewString(),
		Title:              opts.Title,
		Description:        opts.Description,
		Type:               opts.Type,
		TemplateID:         tpl.ID,
		AssetID:            asset.ID,
		PlanID:             opts.PlanID,
		CreatedBy:          actor.ID,
		AssignedTechnician: emptyToNil(opts.AssignedTechnician),
		AssignedTeam:       emptyToNil(opts.AssignedTeam),
		Status:             s.workflow.StatusFor(config.PhaseNew),
		Priority:           opts.Priority,
		ScheduledStart:     opts.ScheduledStart,
		LaborCost:          decimal.Zero,
		PartsCost:          decimal.Zero,
	}
	if wo.Type == "" {
		wo.Type = models.WorkOrderOther
	}
	if wo.Priority == 0 {
		wo.Priority = 2
	}
	if wo.ScheduledStart.IsZero() {
		wo.ScheduledStart = now
	}
	if err := tx.Create(wo).Error; err != nil {
		return nil, fmt.Errorf("workorder: create: %w", err)
	}
	err := audit.Record(tx, audit.Entry{
		EntityType: audit.EntityWorkOrder, EntityID: wo.ID, Action: "create",
		Description: wo.Title, ActorID: actor.ID,
		New: map[string]any{"status": wo.Status, "template": tpl.ID, "asset": asset.ID},
	}, now)
	if err != nil {
		return nil, err
	}
	return wo, nil
}

// Created counts a committed work order and tells its assignees.
func (s *Service) Created(ctx context.Context, wo *models.WorkOrder) {
	metrics.WorkOrderTransitions.WithLabelValues(wo.Status).Inc()
	s.Announce(ctx, wo)
}

// Announce tells the assignees of wo about it.
func (s *Service) Announce(ctx context.Context, wo *models.WorkOrder) {
	if wo.AssignedTechnician == nil && wo.AssignedTeam == nil {
		return
	}
	s.notifier.Publish(ctx, notify.Event{
		Type: "work_order.assigned", EntityType: audit.EntityWorkOrder, EntityID: wo.ID,
		Title: "Nouvel ordre de travail: " + wo.Title, Kind: notify.KindInfo,
		Recipients: recipients(wo.AssignedTechnician), Team: deref(wo.AssignedTeam),
		Fields: map[string]string{"asset": wo.AssetID, "scheduled": wo.ScheduledStart.Format("2006-01-02 15:04")},
	})
}

// Get loads a work order.
func (s *Service) Get(ctx context.Context, id string) (*models.WorkOrder, error) {
	return load(s.db.WithContext(ctx), id)
}

// Detail is a work order with its report and repair requests.
type Detail struct {
	WorkOrder *models.WorkOrder       `json:"work_order"`
	Report    *models.ExecutionReport `json:"report,omitempty"`
	Repairs   []models.RepairRequest  `json:"repairs"`
	Final     bool                    `json:"final"`
}

// GetDetail loads a work order with its report, answers and repair requests.
func (s *Service) GetDetail(ctx context.Context, id string) (*Detail, error) {
	q := s.db.WithContext(ctx)
	wo, err := load(q, id)
	if err != nil {
		return nil, err
	}
	d := &Detail{WorkOrder: wo, Final: s.workflow.IsFinal(wo.Status), Repairs: []models.RepairRequest{}}
	var rep models.ExecutionReport
	err = q.Preload("Answers.Media").Where("work_order_id = ?", id).First(&rep).Error
	switch {
	case err == nil:
		d.Report = &rep
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("workorder: report of %s: %w", id, err)
	}
	if err := q.Where("work_order_id = ?", id).Order("number ASC").Find(&d.Repairs).Error; err != nil {
		return nil, fmt.Errorf("workorder: repairs of %s: %w", id, err)
	}
	return d, nil
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status     string
	AssetID    string
	Technician string
	Team       string
	From, To   time.Time // scheduled start window
	Limit      int
}

// List returns work orders by scheduled start, most recent first.
func (s *Service) List(ctx context.Context, f Filter) ([]models.WorkOrder, error) {
	q := s.db.WithContext(ctx).Order("scheduled_start DESC, id ASC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.AssetID != "" {
		q = q.Where("asset_id = ?", f.AssetID)
	}
	if f.Technician != "" {
		q = q.Where("assigned_technician = ?", f.Technician)
	}
	if f.Team != "" {
		q = q.Where("assigned_team = ?", f.Team)
	}
	if !f.From.IsZero() {
		q = q.Where("scheduled_start >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("scheduled_start < ?", f.To)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.WorkOrder
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("workorder: list: %w", err)
	}
	return out, nil
}

func load(q *gorm.DB, id string) (*models.WorkOrder, error) {
	var wo models.WorkOrder
	if err := q.Where("id = ?", id).First(&wo).Error; err != nil {
		return nil, notFound(err, "work order", id)
	}
	return &wo, nil
}

func checkAssignees(tx *gorm.DB, technician, team *string) error {
	if technician != nil && *technician != "" {
		var user models.User
		if err := tx.Where("id = ?", *technician).First(&user).Error; err != nil {
			return notFound(err, "user", *technician)
		}
		if !user.Active {
			return gmaoerr.Invalid("assigned_technician", "user %s is inactive", user.ID)
		}
	}
	if team != nil && *team != "" {
		var count int64
		if err := tx.Model(&models.Team{}).Where("id = ?", *team).Count(&count).Error; err != nil {
			return fmt.Errorf("workorder: check team %s: %w", *team, err)
		}
		if count == 0 {
			return gmaoerr.NotFound("team", *team)
		}
	}
	return nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func recipients(ids ...*string) []string {
	var out []string
	for _, id := range ids {
		if id != nil && *id != "" {
			out = append(out, *id)
		}
	}
	return out
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gmaoerr.NotFound(entity, id)
	}
	return fmt.Errorf("workorder: get %s %s: %w", entity, id, err)
}
