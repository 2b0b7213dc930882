package auth

import (
	"context"
	"fmt"

	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
)

// Decision is the outcome of an authorization predicate.
type Decision struct {
	Allowed bool
	Reason  string // populated when not allowed
}

// Err converts a negative decision into a PermissionDeniedError.
func (d Decision) Err(actor Actor, action string) error {
	if d.Allowed {
		return nil
	}
	return &gmaoerr.PermissionDeniedError{ActorID: actor.ID, Action: action, Reason: d.Reason}
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// TeamMembership answers team membership questions for the gate.
type TeamMembership interface {
	IsTeamMember(ctx context.Context, teamID, userID string) (bool, error)
}

// Gate evaluates role and assignment predicates. There is no default-allow path.
type Gate struct {
	teams TeamMembership
}

// NewGate creates a Gate backed by the given membership source.
func NewGate(teams TeamMembership) *Gate {
	return &Gate{teams: teams}
}

func checkActor(a Actor) (Decision, bool) {
	if a.ID == "" {
		return deny("anonymous actor"), false
	}
	if !a.Role.Valid() {
		return deny("unknown role %q", a.Role), false
	}
	return Decision{}, true
}

// CanManageTemplates allows Manager and Admin.
func (g *Gate) CanManageTemplates(a Actor) Decision {
	if d, ok := checkActor(a); !ok {
		return d
	}
	if a.Role.IsManagerial() {
		return allow()
	}
	return deny("role %s cannot manage templates", a.Role)
}

// CanManageWorkOrders allows Manager and Admin to create, assign and cancel orders.
func (g *Gate) CanManageWorkOrders(a Actor) Decision {
	if d, ok := checkActor(a); !ok {
		return d
	}
	if a.Role.IsManagerial() {
		return allow()
	}
	return deny("role %s cannot manage work orders", a.Role)
}

// CanExecute allows the assigned technician, members of the assigned team,
// and Manager/Admin.
func (g *Gate) CanExecute(ctx context.Context, a Actor, wo *models.WorkOrder) (Decision, error) {
	if d, ok := checkActor(a); !ok {
		return d, nil
	}
	if a.Role.IsManagerial() {
		return allow(), nil
	}
	if wo.AssignedTechnician != nil && *wo.AssignedTechnician == a.ID {
		return allow(), nil
	}
	if wo.AssignedTeam != nil && *wo.AssignedTeam != "" && g.teams != nil {
		member, err := g.teams.IsTeamMember(ctx, *wo.AssignedTeam, a.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("auth: team membership %s/%s: %w", *wo.AssignedTeam, a.ID, err)
		}
		if member {
			return allow(), nil
		}
	}
	return deny("not assigned to work order %s", wo.ID), nil
}

// CanCloseRepair allows the repair request assignee and Manager/Admin.
func (g *Gate) CanCloseRepair(a Actor, r *models.RepairRequest) Decision {
	if d, ok := checkActor(a); !ok {
		return d
	}
	if a.Role.IsManagerial() {
		return allow()
	}
	if r.AssignedTo != nil && *r.AssignedTo == a.ID {
		return allow()
	}
	return deny("not assigned to repair request %s", r.Number)
}

// RequireManageTemplates returns a PermissionDeniedError unless CanManageTemplates allows.
func (g *Gate) RequireManageTemplates(a Actor, action string) error {
	return g.CanManageTemplates(a).Err(a, action)
}

// RequireManageWorkOrders returns a PermissionDeniedError unless CanManageWorkOrders allows.
func (g *Gate) RequireManageWorkOrders(a Actor, action string) error {
	return g.CanManageWorkOrders(a).Err(a, action)
}

// RequireExecute returns a PermissionDeniedError unless CanExecute allows.
func (g *Gate) RequireExecute(ctx context.Context, a Actor, wo *models.WorkOrder, action string) error {
	d, err := g.CanExecute(ctx, a, wo)
	if err != nil {
		return err
	}
	return d.Err(a, action)
}

// RequireCloseRepair returns a PermissionDeniedError unless CanCloseRepair allows.
func (g *Gate) RequireCloseRepair(a Actor, r *models.RepairRequest, action string) error {
	return g.CanCloseRepair(a, r).Err(a, action)
}
