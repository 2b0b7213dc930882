// Package report runs the execution report of a work order: the atomic
// report and answer upserts, autosave and missing-answer computation.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yazid-hub/GMOA/internal/audit"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/checklist"
	"github.com/yazid-hub/GMOA/internal/clock"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/logging"
	"github.com/yazid-hub/GMOA/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service records answers on behalf of an actor.
type Service struct {
	db       *gorm.DB
	gate     *auth.Gate
	clock    clock.Clock
	workflow config.WorkflowConfig
	log      *zap.Logger
}

// NewService creates a report service.
func NewService(db *gorm.DB, gate *auth.Gate, clk clock.Clock, workflow config.WorkflowConfig, log *zap.Logger) *Service {
	return &Service{db: db, gate: gate, clock: clk, workflow: workflow, log: logging.OrNop(log)}
}

// Ensure returns the report of a work order, creating it if needed. The
// insert is keyed on the unique work_order_id, so concurrent callers end up
// with the same row.
func Ensure(tx *gorm.DB, workOrderID, actorID string) (*models.ExecutionReport, error) {
	candidate := models.ExecutionReport{
		ID:          uuid.NewString(),
		WorkOrderID: workOrderID,
		Status:      models.ReportDraft,
		CreatedBy:   actorID,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "work_order_id"}},
		DoNothing: true,
	}).Create(&candidate).Error
	if err != nil {
		return nil, fmt.Errorf("report: ensure for %s: %w", workOrderID, err)
	}
	var rep models.ExecutionReport
	if err := tx.Where("work_order_id = ?", workOrderID).First(&rep).Error; err != nil {
		return nil, fmt.Errorf("report: load for %s: %w", workOrderID, err)
	}
	return &rep, nil
}

// MarkStarted moves a Draft report to InProgress. It is a no-op otherwise.
func MarkStarted(tx *gorm.DB, reportID string, now time.Time) error {
	err := tx.Model(&models.ExecutionReport{}).
		Where("id = ? AND status = ?", reportID, models.ReportDraft).
		Updates(map[string]any{"status": models.ReportInProgress, "started_at": now}).Error
	if err != nil {
		return fmt.Errorf("report: start %s: %w", reportID, err)
	}
	return nil
}

// MarkFinalized freezes a mutable report.
func MarkFinalized(tx *gorm.DB, reportID string, now time.Time) error {
	res := tx.Model(&models.ExecutionReport{}).
		Where("id = ? AND status IN ?", reportID, []string{models.ReportDraft, models.ReportInProgress}).
		Updates(map[string]any{"status": models.ReportFinalized, "finished_at": now})
	if res.Error != nil {
		return fmt.Errorf("report: finalize %s: %w", reportID, res.Error)
	}
	if res.RowsAffected == 0 {
		return &gmaoerr.ConflictError{Entity: "report", Key: reportID, Reason: "no longer mutable"}
	}
	return nil
}

// Values returns the answers of a report keyed by check point.
func Values(tx *gorm.DB, reportID string) (map[uint]string, error) {
	var answers []models.Answer
	if err := tx.Select("check_point_id", "value").Where("report_id = ?", reportID).Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("report: load answers of %s: %w", reportID, err)
	}
	values := make(map[uint]string, len(answers))
	for _, a := range answers {
		values[a.CheckPointID] = a.Value
	}
	return values, nil
}

// MissingFor lists the required visible check points of the work order's
// template that the report leaves unanswered.
func MissingFor(tx *gorm.DB, rep *models.ExecutionReport, templateID string) ([]gmaoerr.MissingAnswer, error) {
	tpl, err := checklist.Load(tx, templateID)
	if err != nil {
		return nil, err
	}
	values, err := Values(tx, rep.ID)
	if err != nil {
		return nil, err
	}
	return checklist.MissingRequired(tpl, values), nil
}

// Mutable reports whether answers may still change.
func Mutable(rep *models.ExecutionReport) bool {
	return rep.Status == models.ReportDraft || rep.Status == models.ReportInProgress
}

// Get loads a report with its answers and media.
func (s *Service) Get(ctx context.Context, id string) (*models.ExecutionReport, error) {
	var rep models.ExecutionReport
	err := s.db.WithContext(ctx).Preload("Answers.Media").Where("id = ?", id).First(&rep).Error
	if err != nil {
		return nil, notFound(err, "report", id)
	}
	return &rep, nil
}

// ForWorkOrder loads the report of a work order.
func (s *Service) ForWorkOrder(ctx context.Context, workOrderID string) (*models.ExecutionReport, error) {
	var rep models.ExecutionReport
	err := s.db.WithContext(ctx).Preload("Answers.Media").Where("work_order_id = ?", workOrderID).First(&rep).Error
	if err != nil {
		return nil, notFound(err, "report for work order", workOrderID)
	}
	return &rep, nil
}

// LoadDraft returns the current values of a report keyed by check point.
func (s *Service) LoadDraft(ctx context.Context, reportID string) (map[uint]string, error) {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.ExecutionReport{}).Where("id = ?", reportID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("report: check %s: %w", reportID, err)
	}
	if count == 0 {
		return nil, gmaoerr.NotFound("report", reportID)
	}
	return Values(db, reportID)
}

// Missing lists the required visible check points still unanswered.
func (s *Service) Missing(ctx context.Context, reportID string) ([]gmaoerr.MissingAnswer, error) {
	db := s.db.WithContext(ctx)
	rep, wo, err := loadWithOrder(db, reportID)
	if err != nil {
		return nil, err
	}
	return MissingFor(db, rep, wo.TemplateID)
}

// SetGlobalComment replaces the free-text comment of a mutable report.
func (s *Service) SetGlobalComment(ctx context.Context, actor auth.Actor, reportID, comment string) error {
	if err := s.authorize(ctx, actor, reportID, "comment"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rep, _, err := s.loadMutable(tx, reportID, "comment")
		if err != nil {
			return err
		}
		if err := tx.Model(&models.ExecutionReport{}).Where("id = ?", rep.ID).Update("global_comment", comment).Error; err != nil {
			return fmt.Errorf("report: set comment on %s: %w", rep.ID, err)
		}
		return nil
	})
}

// Archive moves a Finalized report to Archived.
func (s *Service) Archive(ctx context.Context, actor auth.Actor, reportID string) error {
	if err := s.gate.RequireManageWorkOrders(actor, "archive report"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rep models.ExecutionReport
		if err := tx.Where("id = ?", reportID).First(&rep).Error; err != nil {
			return notFound(err, "report", reportID)
		}
		if rep.Status != models.ReportFinalized {
			return gmaoerr.InvalidState("report", reportID, rep.Status, "archive")
		}
		res := tx.Model(&models.ExecutionReport{}).
			Where("id = ? AND status = ?", reportID, models.ReportFinalized).
			Update("status", models.ReportArchived)
		if res.Error != nil {
			return fmt.Errorf("report: archive %s: %w", reportID, res.Error)
		}
		if res.RowsAffected == 0 {
			return &gmaoerr.ConflictError{Entity: "report", Key: reportID, Reason: "status changed concurrently"}
		}
		return audit.Record(tx, audit.StatusChange(audit.EntityReport, reportID, actor.ID, models.ReportFinalized, models.ReportArchived), s.clock.Now())
	})
}

// authorize checks the actor may execute the report's work order. Team
// membership is resolved outside any transaction.
func (s *Service) authorize(ctx context.Context, actor auth.Actor, reportID, op string) error {
	_, wo, err := loadWithOrder(s.db.WithContext(ctx), reportID)
	if err != nil {
		return err
	}
	return s.gate.RequireExecute(ctx, actor, wo, op)
}

// loadMutable loads the report and its work order and checks that neither
// is frozen.
func (s *Service) loadMutable(tx *gorm.DB, reportID, op string) (*models.ExecutionReport, *models.WorkOrder, error) {
	rep, wo, err := loadWithOrder(tx, reportID)
	if err != nil {
		return nil, nil, err
	}
	if s.workflow.IsFinal(wo.Status) {
		return nil, nil, gmaoerr.InvalidState("work order", wo.ID, wo.Status, op)
	}
	if !Mutable(rep) {
		return nil, nil, gmaoerr.InvalidState("report", rep.ID, rep.Status, op)
	}
	return rep, wo, nil
}

func loadWithOrder(tx *gorm.DB, reportID string) (*models.ExecutionReport, *models.WorkOrder, error) {
	var rep models.ExecutionReport
	if err := tx.Where("id = ?", reportID).First(&rep).Error; err != nil {
		return nil, nil, notFound(err, "report", reportID)
	}
	var wo models.WorkOrder
	if err := tx.Where("id = ?", rep.WorkOrderID).First(&wo).Error; err != nil {
		return nil, nil, notFound(err, "work order", rep.WorkOrderID)
	}
	return &rep, &wo, nil
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gmaoerr.NotFound(entity, id)
	}
	return fmt.Errorf("report: get %s %s: %w", entity, id, err)
}
