// Package repair runs the repair request sub-workflow: numbered corrective
// follow-ups raised from a check point that can block work-order closure.
package repair

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yazid-hub/GMOA/internal/audit"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/clock"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/db"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/logging"
	"github.com/yazid-hub/GMOA/internal/metrics"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/notify"
	"github.com/yazid-hub/GMOA/internal/observability"
	"github.com/yazid-hub/GMOA/internal/sequence"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Blocking lists the statuses in which a blocksClosure request prevents
// finalizing its work order.
var Blocking = []string{models.RepairPending, models.RepairValidated, models.RepairInProgress}

// Terminal lists the statuses a request never leaves.
var Terminal = []string{models.RepairDone, models.RepairRejected}

var managers = []auth.Role{auth.RoleManager, auth.RoleAdmin}

// Service drives repair requests on behalf of an actor.
type Service struct {
	db       *gorm.DB
	gate     *auth.Gate
	seq      sequence.Generator
	clock    clock.Clock
	workflow config.WorkflowConfig
	features config.FeatureConfig
	retries  int
	notifier *notify.Notifier
	log      *zap.Logger
}

// NewService creates a repair request service. notifier may be nil.
func NewService(gdb *gorm.DB, gate *auth.Gate, seq sequence.Generator, clk clock.Clock, cfg *config.Config, notifier *notify.Notifier, log *zap.Logger) *Service {
	retries := cfg.Sequence.Retries
	if retries < 1 {
		retries = 1
	}
	return &Service{
		db:       gdb,
		gate:     gate,
		seq:      seq,
		clock:    clk,
		workflow: cfg.Workflow,
		features: cfg.Features,
		retries:  retries,
		notifier: notifier,
		log:      logging.OrNop(log),
	}
}

// CreateOpts holds parameters for raising a repair request.
type CreateOpts struct {
	WorkOrderID   string `validate:"required"`
	CheckPointID  uint   `validate:"required"`
	Title         string `validate:"required,max=255"`
	Description   string
	Priority      int   `validate:"omitempty,min=1,max=4"`
	BlocksClosure *bool // defaults to true
	EstimatedCost decimal.Decimal
	DueDate       *time.Time
	Comment       string
}

// Number formats a repair request number.
func Number(year int, seq int64) string {
	return fmt.Sprintf("DR-%d-%03d", year, seq)
}

// Create raises a Pending repair request against a check point of the work
// order's template. The number comes from a per-year counter; a collision on
// the unique number is retried with the next value.
func (s *Service) Create(ctx context.Context, actor auth.Actor, opts CreateOpts) (r *models.RepairRequest, err error) {
	ctx, span := observability.Start(ctx, "repair.Create",
		attribute.String("work_order.id", opts.WorkOrderID), attribute.Int("check_point.id", int(opts.CheckPointID)))
	defer func() { observability.End(span, err) }()

	q := s.db.WithContext(ctx)
	var wo models.WorkOrder
	if err := q.Where("id = ?", opts.WorkOrderID).First(&wo).Error; err != nil {
		return nil, notFound(err, "work order", opts.WorkOrderID)
	}
	if err := s.gate.RequireExecute(ctx, actor, &wo, "request repair"); err != nil {
		return nil, err
	}
	if !s.features.RepairRequests {
		return nil, gmaoerr.Invalid("repair_requests", "repair requests are disabled")
	}
	if err := gmaoerr.CheckStruct(opts); err != nil {
		return nil, err
	}
	if opts.EstimatedCost.IsNegative() {
		return nil, gmaoerr.Invalid("estimated_cost", "must not be negative")
	}
	if s.workflow.IsFinal(wo.Status) {
		return nil, gmaoerr.InvalidState("work order", wo.ID, wo.Status, "request repair")
	}
	var point models.CheckPoint
	if err := q.Where("id = ?", opts.CheckPointID).First(&point).Error; err != nil {
		return nil, notFound(err, "check point", fmt.Sprint(opts.CheckPointID))
	}
	if point.TemplateID != wo.TemplateID {
		return nil, gmaoerr.Invalid("check_point", "check point %d is not part of the work order template", point.ID)
	}
	if !point.CanRequestRepair {
		return nil, gmaoerr.Invalid("check_point", "check point %d does not accept repair requests", point.ID)
	}

	priority := opts.Priority
	if priority == 0 {
		priority = 2
	}
	blocks := true
	if opts.BlocksClosure != nil {
		blocks = *opts.BlocksClosure
	}
	now := s.clock.Now()
	year := now.Year()

	for attempt := 1; ; attempt++ {
		r = &models.RepairRequest{
			ID:                uuid.NewString(),
			WorkOrderID:       wo.ID,
			CheckPointID:      point.ID,
			Title:             opts.Title,
			Description:       opts.Description,
			Priority:          priority,
			Status:            models.RepairPending,
			CreatedBy:         actor.ID,
			BlocksClosure:     blocks,
			EstimatedCost:     opts.EstimatedCost,
			ActualCost:        decimal.Zero,
			DueDate:           opts.DueDate,
			TechnicianComment: opts.Comment,
			CreatedAt:         now,
		}
		err = q.Transaction(func(tx *gorm.DB) error {
			origin, err := originAnswer(tx, wo.ID, point.ID)
			if err != nil {
				return err
			}
			r.OriginAnswerID = origin
			n, err := s.seq.Next(ctx, tx, sequence.YearKey("repair", year))
			if err != nil {
				return err
			}
			r.Number = Number(year, n)
			if err := tx.Create(r).Error; err != nil {
				return fmt.Errorf("repair: create %s: %w", r.Number, err)
			}
			return audit.Record(tx, audit.Entry{
				EntityType: audit.EntityRepair, EntityID: r.ID, Action: "create",
				Description: r.Number + " " + r.Title, ActorID: actor.ID,
				New: map[string]any{"number": r.Number, "work_order": wo.ID, "blocks_closure": blocks},
			}, now)
		})
		if err == nil {
			break
		}
		if !db.IsDuplicateKey(err) {
			return nil, err
		}
		if attempt >= s.retries {
			return nil, &gmaoerr.ConflictError{Entity: "repair request", Key: r.Number, Reason: fmt.Sprintf("number still taken after %d attempts", attempt)}
		}
		s.log.Warn("repair number collision, retrying", zap.String("number", r.Number), zap.Int("attempt", attempt))
		if err := s.skipTakenNumbers(ctx, year); err != nil {
			return nil, err
		}
	}

	metrics.RepairTransitions.WithLabelValues(models.RepairPending).Inc()
	kind := notify.KindInfo
	if blocks {
		kind = notify.KindWarning
	}
	s.notifier.Publish(ctx, notify.Event{
		Type: "repair.created", EntityType: audit.EntityRepair, EntityID: r.ID,
		Title: "Demande de réparation " + r.Number, Body: r.Title, Kind: kind,
		Roles:  managers,
		Fields: map[string]string{"work_order": wo.ID, "asset": wo.AssetID, "priority": fmt.Sprint(priority)},
	})
	return r, nil
}

// skipTakenNumbers moves the year counter past the highest number already
// stored. A transactional counter rolls back with the failed insert, so
// without this a retry would draw the same number again.
func (s *Service) skipTakenNumbers(ctx context.Context, year int) error {
	f, ok := s.seq.(sequence.Floorer)
	if !ok {
		return nil
	}
	highest, err := highestNumber(s.db.WithContext(ctx), year)
	if err != nil {
		return err
	}
	return f.AtLeast(ctx, sequence.YearKey("repair", year), highest)
}

// highestNumber returns the largest sequence suffix used by the year's
// repair request numbers, or 0.
func highestNumber(q *gorm.DB, year int) (int64, error) {
	prefix := fmt.Sprintf("DR-%d-", year)
	var numbers []string
	if err := q.Model(&models.RepairRequest{}).Where("number LIKE ?", prefix+"%").Pluck("number", &numbers).Error; err != nil {
		return 0, fmt.Errorf("repair: scan numbers for %d: %w", year, err)
	}
	var highest int64
	for _, n := range numbers {
		v, err := strconv.ParseInt(strings.TrimPrefix(n, prefix), 10, 64)
		if err != nil {
			continue
		}
		highest = max(highest, v)
	}
	return highest, nil
}

// originAnswer finds the answer of the work order's report for the point.
func originAnswer(tx *gorm.DB, workOrderID string, pointID uint) (*uint, error) {
	var ids []uint
	err := tx.Model(&models.Answer{}).
		Joins("JOIN execution_reports ON execution_reports.id = answers.report_id").
		Where("execution_reports.work_order_id = ? AND answers.check_point_id = ?", workOrderID, pointID).
		Limit(1).Pluck("answers.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("repair: origin answer: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}

// Get loads a repair request by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.RepairRequest, error) {
	var r models.RepairRequest
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, notFound(err, "repair request", id)
	}
	return &r, nil
}

// GetByNumber loads a repair request by its DR number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*models.RepairRequest, error) {
	var r models.RepairRequest
	if err := s.db.WithContext(ctx).Where("number = ?", number).First(&r).Error; err != nil {
		return nil, notFound(err, "repair request", number)
	}
	return &r, nil
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	WorkOrderID string
	Status      string
	AssignedTo  string
}

// List returns repair requests, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]models.RepairRequest, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, number DESC")
	if f.WorkOrderID != "" {
		q = q.Where("work_order_id = ?", f.WorkOrderID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.AssignedTo != "" {
		q = q.Where("assigned_to = ?", f.AssignedTo)
	}
	var out []models.RepairRequest
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("repair: list: %w", err)
	}
	return out, nil
}

// ListOverdue returns the open requests whose due date is before now.
func (s *Service) ListOverdue(ctx context.Context) ([]models.RepairRequest, error) {
	var out []models.RepairRequest
	err := s.db.WithContext(ctx).
		Where("due_date IS NOT NULL AND due_date < ? AND status NOT IN ?", s.clock.Now(), Terminal).
		Order("due_date ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("repair: list overdue: %w", err)
	}
	return out, nil
}

// OpenBlocking returns the requests that currently block closing the work order.
func OpenBlocking(tx *gorm.DB, workOrderID string) ([]models.RepairRequest, error) {
	var out []models.RepairRequest
	err := tx.Where("work_order_id = ? AND blocks_closure = ? AND status IN ?", workOrderID, true, Blocking).
		Order("number ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("repair: blocking for %s: %w", workOrderID, err)
	}
	return out, nil
}

// IsOverdue reports whether r has a due date in the past and is still open.
func IsOverdue(r *models.RepairRequest, now time.Time) bool {
	if r.DueDate == nil {
		return false
	}
	for _, st := range Terminal {
		if r.Status == st {
			return false
		}
	}
	return now.After(*r.DueDate)
}

// Duration is the time between start and completion, if both are known.
func Duration(r *models.RepairRequest) (time.Duration, bool) {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0, false
	}
	return r.CompletedAt.Sub(*r.StartedAt), true
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gmaoerr.NotFound(entity, id)
	}
	return fmt.Errorf("repair: get %s %s: %w", entity, id, err)
}
