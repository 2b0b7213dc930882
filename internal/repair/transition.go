package repair

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yazid-hub/GMOA/internal/audit"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/metrics"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/notify"
	"gorm.io/gorm"
)

// step is one edge of the repair state machine.
type step struct {
	op        string
	from      []string
	to        string
	authorize func(auth.Actor, *models.RepairRequest) error
	check     func() error
	updates   func(*models.RepairRequest) map[string]any
}

func (s *Service) managerOnly(op string) func(auth.Actor, *models.RepairRequest) error {
	return func(a auth.Actor, _ *models.RepairRequest) error {
		return s.gate.RequireManageWorkOrders(a, op)
	}
}

func (s *Service) closer(op string) func(auth.Actor, *models.RepairRequest) error {
	return func(a auth.Actor, r *models.RepairRequest) error {
		return s.gate.RequireCloseRepair(a, r, op)
	}
}

// apply runs st against the request inside a transaction. The status update
// is conditional on the status read, so a concurrent transition makes it
// fail with a ConflictError instead of overwriting.
func (s *Service) apply(ctx context.Context, actor auth.Actor, id string, st step) (*models.RepairRequest, error) {
	var r models.RepairRequest
	var from string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
			return notFound(err, "repair request", id)
		}
		if err := st.authorize(actor, &r); err != nil {
			return err
		}
		if st.check != nil {
			if err := st.check(); err != nil {
				return err
			}
		}
		if !slices.Contains(st.from, r.Status) {
			return gmaoerr.InvalidState("repair request", r.Number, r.Status, st.op)
		}
		from = r.Status
		updates := map[string]any{}
		if st.updates != nil {
			updates = st.updates(&r)
		}
		if st.to != "" {
			updates["status"] = st.to
		}
		res := tx.Model(&models.RepairRequest{}).Where("id = ? AND status = ?", r.ID, from).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("repair: %s %s: %w", st.op, r.Number, res.Error)
		}
		if res.RowsAffected == 0 {
			return &gmaoerr.ConflictError{Entity: "repair request", Key: r.Number, Reason: "status changed concurrently"}
		}
		entry := audit.Entry{EntityType: audit.EntityRepair, EntityID: r.ID, Action: st.op, ActorID: actor.ID, New: updates}
		if st.to != "" {
			entry = audit.StatusChange(audit.EntityRepair, r.ID, actor.ID, from, st.to)
			entry.New = updates
		}
		if err := audit.Record(tx, entry, s.clock.Now()); err != nil {
			return err
		}
		return tx.Where("id = ?", r.ID).First(&r).Error
	})
	if err != nil {
		return nil, err
	}
	if st.to != "" {
		metrics.RepairTransitions.WithLabelValues(st.to).Inc()
	}
	return &r, nil
}

// Validate accepts a Pending request.
func (s *Service) Validate(ctx context.Context, actor auth.Actor, id, comment string) (*models.RepairRequest, error) {
	r, err := s.apply(ctx, actor, id, step{
		op:        "validate",
		from:      []string{models.RepairPending},
		to:        models.RepairValidated,
		authorize: s.managerOnly("validate repair request"),
		updates: func(*models.RepairRequest) map[string]any {
			return map[string]any{"validated_by": actor.ID, "validated_at": s.clock.Now(), "manager_comment": comment}
		},
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, notify.Event{
		Type: "repair.validated", EntityType: audit.EntityRepair, EntityID: r.ID,
		Title: "Réparation " + r.Number + " validée", Body: comment, Kind: notify.KindSuccess,
		Recipients: []string{r.CreatedBy},
	})
	return r, nil
}

// Reject refuses a Pending request. A reason is required.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, id, reason string) (*models.RepairRequest, error) {
	r, err := s.apply(ctx, actor, id, step{
		op:        "reject",
		from:      []string{models.RepairPending},
		to:        models.RepairRejected,
		authorize: s.managerOnly("reject repair request"),
		check: func() error {
			if strings.TrimSpace(reason) == "" {
				return gmaoerr.Invalid("reason", "a rejection reason is required")
			}
			return nil
		},
		updates: func(*models.RepairRequest) map[string]any {
			return map[string]any{"validated_by": actor.ID, "manager_comment": reason}
		},
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, notify.Event{
		Type: "repair.rejected", EntityType: audit.EntityRepair, EntityID: r.ID,
		Title: "Réparation " + r.Number + " rejetée", Body: reason, Kind: notify.KindDanger,
		Recipients: []string{r.CreatedBy},
	})
	return r, nil
}

// Assign sets the technician responsible for an open request. The status
// does not change.
func (s *Service) Assign(ctx context.Context, actor auth.Actor, id, userID string) (*models.RepairRequest, error) {
	r, err := s.apply(ctx, actor, id, step{
		op:        "assign",
		from:      []string{models.RepairPending, models.RepairValidated, models.RepairInProgress, models.RepairDeferred},
		authorize: s.managerOnly("assign repair request"),
		check: func() error {
			if strings.TrimSpace(userID) == "" {
				return gmaoerr.Invalid("assigned_to", "an assignee is required")
			}
			return nil
		},
		updates: func(*models.RepairRequest) map[string]any {
			return map[string]any{"assigned_to": userID}
		},
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, notify.Event{
		Type: "repair.assigned", EntityType: audit.EntityRepair, EntityID: r.ID,
		Title: "Réparation " + r.Number + " assignée", Body: r.Title,
		Recipients: []string{userID},
	})
	return r, nil
}

// Start begins work on a Validated request.
func (s *Service) Start(ctx context.Context, actor auth.Actor, id string) (*models.RepairRequest, error) {
	return s.apply(ctx, actor, id, step{
		op:        "start",
		from:      []string{models.RepairValidated},
		to:        models.RepairInProgress,
		authorize: s.closer("start repair request"),
		updates: func(*models.RepairRequest) map[string]any {
			return map[string]any{"started_at": s.clock.Now()}
		},
	})
}

// CompleteOpts holds the outcome of a repair.
type CompleteOpts struct {
	ActualCost decimal.Decimal
	Resolution string
}

// Complete marks an InProgress request Done, which lifts its closure block.
func (s *Service) Complete(ctx context.Context, actor auth.Actor, id string, opts CompleteOpts) (*models.RepairRequest, error) {
	r, err := s.apply(ctx, actor, id, step{
		op:        "complete",
		from:      []string{models.RepairInProgress},
		to:        models.RepairDone,
		authorize: s.closer("complete repair request"),
		check: func() error {
			if opts.ActualCost.IsNegative() {
				return gmaoerr.Invalid("actual_cost", "must not be negative")
			}
			return nil
		},
		updates: func(*models.RepairRequest) map[string]any {
			return map[string]any{
				"completed_at":    s.clock.Now(),
				"actual_cost":     opts.ActualCost,
				"resolution_note": opts.Resolution,
			}
		},
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, notify.Event{
		Type: "repair.done", EntityType: audit.EntityRepair, EntityID: r.ID,
		Title: "Réparation " + r.Number + " terminée", Body: opts.Resolution, Kind: notify.KindSuccess,
		Recipients: []string{r.CreatedBy}, Roles: managers,
		Fields: map[string]string{"work_order": r.WorkOrderID, "actual_cost": r.ActualCost.StringFixed(2)},
	})
	return r, nil
}

// Defer parks a non-terminal request. A reason is required.
func (s *Service) Defer(ctx context.Context, actor auth.Actor, id, reason string) (*models.RepairRequest, error) {
	return s.apply(ctx, actor, id, step{
		op:        "defer",
		from:      []string{models.RepairPending, models.RepairValidated, models.RepairInProgress},
		to:        models.RepairDeferred,
		authorize: s.managerOnly("defer repair request"),
		check: func() error {
			if strings.TrimSpace(reason) == "" {
				return gmaoerr.Invalid("reason", "a deferral reason is required")
			}
			return nil
		},
		updates: func(*models.RepairRequest) map[string]any {
			return map[string]any{"defer_reason": reason}
		},
	})
}

// Resume sends a Deferred request back to Pending for a new review.
func (s *Service) Resume(ctx context.Context, actor auth.Actor, id string) (*models.RepairRequest, error) {
	return s.apply(ctx, actor, id, step{
		op:        "resume",
		from:      []string{models.RepairDeferred},
		to:        models.RepairPending,
		authorize: s.managerOnly("resume repair request"),
	})
}
