package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/checklist"
	"github.com/yazid-hub/GMOA/internal/clock"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/db"
	"github.com/yazid-hub/GMOA/internal/directory"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/workorder"
)

var (
	manager = auth.Actor{ID: "mgr", Role: auth.RoleManager}
	tech    = auth.Actor{ID: "tech", Role: auth.RoleTechnician}
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr string
		ok   bool
	}{
		{"0 6 * * 1", true},
		{"*/15 * * * *", true},
		{"@weekly", true},
		{"@monthly", true},
		{"0 6 * *", false},
		{"every monday", false},
		{"", false},
	}
	for _, tt := range tests {
		_, err := ParseSchedule(tt.expr)
		if tt.ok && err != nil {
			t.Errorf("ParseSchedule(%q): %v", tt.expr, err)
		}
		if !tt.ok && !errors.Is(err, gmaoerr.ErrValidation) {
			t.Errorf("ParseSchedule(%q): err = %v, want ErrValidation", tt.expr, err)
		}
	}
}

func TestNextDue(t *testing.T) {
	monday := time.Date(2025, 4, 7, 5, 0, 0, 0, time.UTC)
	got, err := NextDue("0 6 * * 1", monday)
	if err != nil {
		t.Fatalf("NextDue: %v", err)
	}
	if want := time.Date(2025, 4, 7, 6, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("NextDue = %v, want %v", got, want)
	}
	got, _ = NextDue("0 6 * * 1", got)
	if want := time.Date(2025, 4, 14, 6, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("NextDue after first = %v, want %v", got, want)
	}
}

type env struct {
	plans  *Service
	orders *workorder.Service
	tpls   *checklist.Service
	clock  *clock.Fixed
	tplID  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	e := &env{clock: clock.NewFixed(time.Date(2025, 4, 7, 5, 0, 0, 0, time.UTC))}
	gate := auth.NewGate(directory.NewUsers(gdb))

	if _, err := directory.NewAssets(gdb).Create(ctx, directory.CreateAssetOpts{ID: "P-101", Name: "Pompe"}); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	e.tpls = checklist.NewService(gdb, gate, e.clock, config.FeatureConfig{}, nil)
	e.tplID = e.validTemplate(t, "Graissage")

	workflow := config.WorkflowConfig{Statuses: config.DefaultStatuses()}
	e.orders = workorder.NewService(gdb, gate, e.clock, workflow, nil, nil)
	e.plans = NewService(gdb, gate, e.orders, e.clock, nil)
	return e
}

func (e *env) validTemplate(t *testing.T, name string) string {
	t.Helper()
	ctx := context.Background()
	tpl, err := e.tpls.Create(ctx, manager, checklist.CreateOpts{Name: name})
	if err != nil {
		t.Fatalf("Create template: %v", err)
	}
	op, err := e.tpls.AddOperation(ctx, manager, tpl.ID, "Graissage")
	if err != nil {
		t.Fatalf("AddOperation: %v", err)
	}
	if _, err := e.tpls.AddCheckPoint(ctx, manager, op.ID, checklist.CheckPointOpts{Label: "Fait", FieldType: models.FieldBoolean, Required: true}); err != nil {
		t.Fatalf("AddCheckPoint: %v", err)
	}
	if err := e.tpls.Validate(ctx, manager, tpl.ID); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return tpl.ID
}

func (e *env) weekly(t *testing.T, tplID string) *models.PreventivePlan {
	t.Helper()
	p, err := e.plans.Create(context.Background(), manager, CreateOpts{
		Title: "Graissage hebdo", TemplateID: tplID, AssetID: "P-101", Schedule: "0 6 * * 1",
	})
	if err != nil {
		t.Fatalf("Create plan: %v", err)
	}
	return p
}

func TestCreate(t *testing.T) {
	e := newEnv(t)
	p := e.weekly(t, e.tplID)
	if want := time.Date(2025, 4, 7, 6, 0, 0, 0, time.UTC); !p.NextDue.Equal(want) || !p.Active {
		t.Errorf("plan next=%v active=%v, want %v", p.NextDue, p.Active, want)
	}

	ctx := context.Background()
	tests := []struct {
		name  string
		actor auth.Actor
		opts  CreateOpts
		want  error
	}{
		{"technician", tech, CreateOpts{Title: "x", TemplateID: e.tplID, AssetID: "P-101", Schedule: "@daily"}, gmaoerr.ErrPermissionDenied},
		{"bad schedule", manager, CreateOpts{Title: "x", TemplateID: e.tplID, AssetID: "P-101", Schedule: "sometimes"}, gmaoerr.ErrValidation},
		{"unknown asset", manager, CreateOpts{Title: "x", TemplateID: e.tplID, AssetID: "X", Schedule: "@daily"}, gmaoerr.ErrNotFound},
		{"unknown template", manager, CreateOpts{Title: "x", TemplateID: "nope", AssetID: "P-101", Schedule: "@daily"}, gmaoerr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.plans.Create(ctx, tt.actor, tt.opts); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRun_CreatesOneOrderPerDuePlan(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.weekly(t, e.tplID)

	created, err := e.plans.Run(ctx, manager)
	if err != nil || len(created) != 0 {
		t.Fatalf("Run before due = %d orders, %v", len(created), err)
	}

	// Two weeks without a run collapse into a single order.
	e.clock.Set(time.Date(2025, 4, 21, 7, 0, 0, 0, time.UTC))
	created, err = e.plans.Run(ctx, manager)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created = %d, want 1", len(created))
	}
	wo := created[0]
	if wo.Type != models.WorkOrderPreventive || wo.PlanID == nil || *wo.PlanID != p.ID || wo.Status != "New" {
		t.Errorf("work order = %+v", wo)
	}
	if want := time.Date(2025, 4, 7, 6, 0, 0, 0, time.UTC); !wo.ScheduledStart.Equal(want) {
		t.Errorf("scheduled = %v, want %v", wo.ScheduledStart, want)
	}

	got, err := e.plans.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := time.Date(2025, 4, 28, 6, 0, 0, 0, time.UTC); !got.NextDue.Equal(want) || got.LastRunAt == nil {
		t.Errorf("next due = %v last run = %v, want %v", got.NextDue, got.LastRunAt, want)
	}

	created, err = e.plans.Run(ctx, manager)
	if err != nil || len(created) != 0 {
		t.Errorf("second Run = %d orders, %v; want none", len(created), err)
	}
}

func TestRun_SkipsInactiveAndReportsFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	paused := e.weekly(t, e.tplID)
	if err := e.plans.SetActive(ctx, manager, paused.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	retiredTpl := e.validTemplate(t, "Ancien")
	retired := e.weekly(t, retiredTpl)
	if err := e.tpls.Archive(ctx, manager, retiredTpl); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	healthy := e.weekly(t, e.tplID)

	e.clock.Set(time.Date(2025, 4, 7, 7, 0, 0, 0, time.UTC))
	created, err := e.plans.Run(ctx, manager)
	if !errors.Is(err, gmaoerr.ErrState) {
		t.Errorf("err = %v, want the archived template failure", err)
	}
	if len(created) != 1 || *created[0].PlanID != healthy.ID {
		t.Errorf("created = %v, want one order for %s", created, healthy.ID)
	}
	got, _ := e.plans.Get(ctx, retired.ID)
	if got.LastRunAt != nil {
		t.Error("failed plan should not be advanced")
	}

	active, err := e.plans.List(ctx, true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active plans = %d, want 2", len(active))
	}
	if _, err := e.plans.Run(ctx, tech); !errors.Is(err, gmaoerr.ErrPermissionDenied) {
		t.Errorf("Run by technician: err = %v, want ErrPermissionDenied", err)
	}
}
