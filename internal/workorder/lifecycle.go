package workorder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yazid-hub/GMOA/internal/audit"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/metrics"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/notify"
	"github.com/yazid-hub/GMOA/internal/observability"
	"github.com/yazid-hub/GMOA/internal/repair"
	"github.com/yazid-hub/GMOA/internal/report"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// authorizeExecute loads the order and checks canExecute. Team membership
// is resolved before any transaction opens.
func (s *Service) authorizeExecute(ctx context.Context, actor auth.Actor, id, op string) error {
	wo, err := load(s.db.WithContext(ctx), id)
	if err != nil {
		return err
	}
	return s.gate.RequireExecute(ctx, actor, wo, op)
}

// loadOpen reloads the order inside tx and rejects final statuses.
func (s *Service) loadOpen(tx *gorm.DB, id, op string) (*models.WorkOrder, error) {
	wo, err := load(tx, id)
	if err != nil {
		return nil, err
	}
	if s.workflow.IsFinal(wo.Status) {
		return nil, gmaoerr.InvalidState("work order", wo.ID, wo.Status, op)
	}
	return wo, nil
}

// setStatus moves the order from its current status to `to`. The update is
// conditional on the status read so a concurrent transition wins cleanly.
func setStatus(tx *gorm.DB, wo *models.WorkOrder, to string, extra map[string]any) error {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.WorkOrder{}).Where("id = ? AND status = ?", wo.ID, wo.Status).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("workorder: %s -> %s: %w", wo.ID, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return &gmaoerr.ConflictError{Entity: "work order", Key: wo.ID, Reason: "status changed concurrently"}
	}
	return nil
}

// Start opens execution: the report is created if missing, actualStart is
// set and the order moves to the in-progress status. Starting an order that
// is already in progress returns its report and changes nothing.
func (s *Service) Start(ctx context.Context, actor auth.Actor, id string) (rep *models.ExecutionReport, err error) {
	ctx, span := observability.Start(ctx, "workorder.Start", attribute.String("work_order.id", id))
	defer func() { observability.End(span, err) }()

	if err := s.authorizeExecute(ctx, actor, id, "start work order"); err != nil {
		return nil, err
	}
	var started bool
	var wo *models.WorkOrder
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		wo, err = s.loadOpen(tx, id, "start")
		if err != nil {
			return err
		}
		now := s.clock.Now()
		inProgress := s.workflow.StatusFor(config.PhaseInProgress)
		if s.workflow.PhaseOf(wo.Status) == config.PhaseNew {
			res := tx.Model(&models.WorkOrder{}).
				Where("id = ? AND status = ? AND actual_start IS NULL", wo.ID, wo.Status).
				Updates(map[string]any{"status": inProgress, "actual_start": now})
			if res.Error != nil {
				return fmt.Errorf("workorder: start %s: %w", wo.ID, res.Error)
			}
			if res.RowsAffected == 1 {
				started = true
				if err := audit.Record(tx, audit.StatusChange(audit.EntityWorkOrder, wo.ID, actor.ID, wo.Status, inProgress), now); err != nil {
					return err
				}
			}
		}
		rep, err = report.Ensure(tx, wo.ID, actor.ID)
		if err != nil {
			return err
		}
		if err := report.MarkStarted(tx, rep.ID, now); err != nil {
			return err
		}
		return tx.Where("id = ?", rep.ID).First(rep).Error
	})
	if err != nil {
		return nil, err
	}
	if started {
		metrics.WorkOrderTransitions.WithLabelValues(s.workflow.StatusFor(config.PhaseInProgress)).Inc()
		s.log.Info("work order started", zap.String("id", id), zap.String("actor", actor.ID))
	}
	return rep, nil
}

// Finalize closes an in-progress order. Open blocking repair requests and
// missing required visible answers are all reported together, joined, and
// nothing is written in that case.
func (s *Service) Finalize(ctx context.Context, actor auth.Actor, id string) (err error) {
	ctx, span := observability.Start(ctx, "workorder.Finalize", attribute.String("work_order.id", id))
	defer func() { observability.End(span, err) }()

	if err := s.authorizeExecute(ctx, actor, id, "finalize work order"); err != nil {
		return err
	}
	closed := s.workflow.StatusFor(config.PhaseClosed)
	var wo *models.WorkOrder
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		wo, err = s.loadOpen(tx, id, "finalize")
		if err != nil {
			return err
		}
		if s.workflow.PhaseOf(wo.Status) != config.PhaseInProgress {
			return gmaoerr.InvalidState("work order", wo.ID, wo.Status, "finalize")
		}
		rep, err := report.Ensure(tx, wo.ID, actor.ID)
		if err != nil {
			return err
		}

		var problems []error
		blocking, err := repair.OpenBlocking(tx, wo.ID)
		if err != nil {
			return err
		}
		if len(blocking) > 0 {
			numbers := make([]string, len(blocking))
			for i, r := range blocking {
				numbers[i] = r.Number
			}
			problems = append(problems, &gmaoerr.BlockingRepairRequestsError{WorkOrderID: wo.ID, Numbers: numbers})
			metrics.FinalizeRejections.WithLabelValues("blocking_repairs").Inc()
		}
		missing, err := report.MissingFor(tx, rep, wo.TemplateID)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			problems = append(problems, &gmaoerr.MissingRequiredAnswersError{Missing: missing})
			metrics.FinalizeRejections.WithLabelValues("missing_answers").Inc()
		}
		if len(problems) > 0 {
			return errors.Join(problems...)
		}

		now := s.clock.Now()
		if err := setStatus(tx, wo, closed, map[string]any{"actual_end": now}); err != nil {
			return err
		}
		if err := report.MarkFinalized(tx, rep.ID, now); err != nil {
			return err
		}
		return audit.Record(tx, audit.StatusChange(audit.EntityWorkOrder, wo.ID, actor.ID, wo.Status, closed), now)
	})
	if err != nil {
		return err
	}

	metrics.WorkOrderTransitions.WithLabelValues(closed).Inc()
	s.notifier.Publish(ctx, notify.Event{
		Type: "work_order.closed", EntityType: audit.EntityWorkOrder, EntityID: wo.ID,
		Title: "Ordre de travail clôturé: " + wo.Title, Kind: notify.KindSuccess,
		Recipients: recipients(&wo.CreatedBy), Roles: []auth.Role{auth.RoleManager},
		Fields: map[string]string{"asset": wo.AssetID, "closed_by": actor.ID},
	})
	return nil
}

// Cancel moves a non-final order to the cancelled status.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id, reason string) error {
	if err := s.gate.RequireManageWorkOrders(actor, "cancel work order"); err != nil {
		return err
	}
	cancelled := s.workflow.StatusFor(config.PhaseCancelled)
	var wo *models.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		wo, err = s.loadOpen(tx, id, "cancel")
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := setStatus(tx, wo, cancelled, nil); err != nil {
			return err
		}
		entry := audit.StatusChange(audit.EntityWorkOrder, wo.ID, actor.ID, wo.Status, cancelled)
		if reason = strings.TrimSpace(reason); reason != "" {
			entry.Description += ": " + reason
		}
		return audit.Record(tx, entry, now)
	})
	if err != nil {
		return err
	}
	metrics.WorkOrderTransitions.WithLabelValues(cancelled).Inc()
	s.notifier.Publish(ctx, notify.Event{
		Type: "work_order.cancelled", EntityType: audit.EntityWorkOrder, EntityID: wo.ID,
		Title: "Ordre de travail annulé: " + wo.Title, Body: reason, Kind: notify.KindWarning,
		Recipients: recipients(wo.AssignedTechnician), Team: deref(wo.AssignedTeam),
	})
	return nil
}

// Assign replaces the technician and team of a non-final order. A nil
// argument leaves that assignment unchanged; an empty string clears it.
func (s *Service) Assign(ctx context.Context, actor auth.Actor, id string, technician, team *string) error {
	if err := s.gate.RequireManageWorkOrders(actor, "assign work order"); err != nil {
		return err
	}
	var wo *models.WorkOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		wo, err = s.loadOpen(tx, id, "assign")
		if err != nil {
			return err
		}
		if err := checkAssignees(tx, technician, team); err != nil {
			return err
		}
		old := map[string]any{"technician": wo.AssignedTechnician, "team": wo.AssignedTeam}
		updates := map[string]any{}
		if technician != nil {
			wo.AssignedTechnician = emptyToNil(technician)
			updates["assigned_technician"] = wo.AssignedTechnician
		}
		if team != nil {
			wo.AssignedTeam = emptyToNil(team)
			updates["assigned_team"] = wo.AssignedTeam
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.WorkOrder{}).Where("id = ?", wo.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("workorder: assign %s: %w", wo.ID, err)
		}
		return audit.Record(tx, audit.Entry{
			EntityType: audit.EntityWorkOrder, EntityID: wo.ID, Action: "assign", ActorID: actor.ID,
			Old: old, New: map[string]any{"technician": wo.AssignedTechnician, "team": wo.AssignedTeam},
		}, s.clock.Now())
	})
	if err != nil {
		return err
	}
	s.Announce(ctx, wo)
	return nil
}

// RecordCosts sets the labor and parts costs of a non-final order.
func (s *Service) RecordCosts(ctx context.Context, actor auth.Actor, id string, labor, parts decimal.Decimal) error {
	if err := s.authorizeExecute(ctx, actor, id, "record costs"); err != nil {
		return err
	}
	if labor.IsNegative() || parts.IsNegative() {
		return gmaoerr.Invalid("cost", "costs must not be negative")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wo, err := s.loadOpen(tx, id, "record costs")
		if err != nil {
			return err
		}
		updates := map[string]any{"labor_cost": labor, "parts_cost": parts}
		if err := tx.Model(&models.WorkOrder{}).Where("id = ?", wo.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("workorder: costs of %s: %w", wo.ID, err)
		}
		return audit.Record(tx, audit.Entry{
			EntityType: audit.EntityWorkOrder, EntityID: wo.ID, Action: "costs", ActorID: actor.ID,
			Old: map[string]any{"labor": wo.LaborCost, "parts": wo.PartsCost},
			New: map[string]any{"labor": labor, "parts": parts},
		}, s.clock.Now())
	})
}
