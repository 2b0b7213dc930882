package repair

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/clock"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/db"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/sequence"
	"gorm.io/gorm"
)

var (
	manager  = auth.Actor{ID: "mgr", Role: auth.RoleManager}
	tech     = auth.Actor{ID: "tech", Role: auth.RoleTechnician}
	outsider = auth.Actor{ID: "other", Role: auth.RoleTechnician}
)

type fixture struct {
	db         *gorm.DB
	svc        *Service
	clock      *clock.Fixed
	wo         *models.WorkOrder
	repairable *models.CheckPoint
	plain      *models.CheckPoint
}

func testConfig() *config.Config {
	return &config.Config{
		Workflow: config.WorkflowConfig{Statuses: config.DefaultStatuses()},
		Features: config.FeatureConfig{RepairRequests: true},
		Sequence: config.SequenceConfig{Backend: "db", Retries: 3},
	}
}

func setup(t *testing.T, seq sequence.Generator) *fixture {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if seq == nil {
		seq = sequence.NewDBCounter(gdb)
	}
	f := &fixture{db: gdb, clock: clock.NewFixed(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))}

	f.repairable = &models.CheckPoint{OperationID: 1, TemplateID: "tpl", Label: "Joint", Order: 1, CanRequestRepair: true}
	f.plain = &models.CheckPoint{OperationID: 1, TemplateID: "tpl", Label: "Niveau", Order: 2}
	for _, p := range []*models.CheckPoint{f.repairable, f.plain} {
		if err := gdb.Create(p).Error; err != nil {
			t.Fatalf("create point: %v", err)
		}
	}
	assignee := tech.ID
	f.wo = &models.WorkOrder{ID: "wo-1", Title: "Inspection", TemplateID: "tpl", AssetID: "P-101", Status: "InProgress", AssignedTechnician: &assignee}
	if err := gdb.Create(f.wo).Error; err != nil {
		t.Fatalf("create work order: %v", err)
	}
	f.svc = NewService(gdb, auth.NewGate(nil), seq, f.clock, testConfig(), nil, nil)
	return f
}

func (f *fixture) create(t *testing.T, opts CreateOpts) *models.RepairRequest {
	t.Helper()
	if opts.WorkOrderID == "" {
		opts.WorkOrderID = f.wo.ID
	}
	if opts.CheckPointID == 0 {
		opts.CheckPointID = f.repairable.ID
	}
	if opts.Title == "" {
		opts.Title = "Remplacer joint"
	}
	r, err := f.svc.Create(context.Background(), tech, opts)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return r
}

func TestNumber(t *testing.T) {
	tests := []struct {
		year int
		seq  int64
		want string
	}{
		{2025, 7, "DR-2025-007"},
		{2025, 42, "DR-2025-042"},
		{2026, 1234, "DR-2026-1234"},
	}
	for _, tt := range tests {
		if got := Number(tt.year, tt.seq); got != tt.want {
			t.Errorf("Number(%d, %d) = %q, want %q", tt.year, tt.seq, got, tt.want)
		}
	}
}

func TestCreate_Defaults(t *testing.T) {
	f := setup(t, nil)
	r := f.create(t, CreateOpts{EstimatedCost: decimal.RequireFromString("120.50")})

	if r.Number != "DR-2025-001" {
		t.Errorf("number = %s, want DR-2025-001", r.Number)
	}
	if r.Status != models.RepairPending || !r.BlocksClosure || r.Priority != 2 || r.CreatedBy != tech.ID {
		t.Errorf("request = %+v", r)
	}
	second := f.create(t, CreateOpts{})
	if second.Number != "DR-2025-002" {
		t.Errorf("second number = %s, want DR-2025-002", second.Number)
	}

	f.clock.Set(time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC))
	next := f.create(t, CreateOpts{})
	if next.Number != "DR-2026-001" {
		t.Errorf("new year number = %s, want DR-2026-001", next.Number)
	}
}

func TestCreate_LinksOriginAnswer(t *testing.T) {
	f := setup(t, nil)
	rep := models.ExecutionReport{ID: "rep-1", WorkOrderID: f.wo.ID, Status: models.ReportInProgress}
	if err := f.db.Create(&rep).Error; err != nil {
		t.Fatalf("create report: %v", err)
	}
	ans := models.Answer{ReportID: rep.ID, CheckPointID: f.repairable.ID, Value: "fuite"}
	if err := f.db.Create(&ans).Error; err != nil {
		t.Fatalf("create answer: %v", err)
	}
	r := f.create(t, CreateOpts{})
	if r.OriginAnswerID == nil || *r.OriginAnswerID != ans.ID {
		t.Errorf("origin answer = %v, want %d", r.OriginAnswerID, ans.ID)
	}
}

func TestCreate_Rejections(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor auth.Actor
		opts  CreateOpts
		want  error
	}{
		{"point without repair flag", tech, CreateOpts{WorkOrderID: f.wo.ID, CheckPointID: f.plain.ID, Title: "x"}, gmaoerr.ErrValidation},
		{"missing title", tech, CreateOpts{WorkOrderID: f.wo.ID, CheckPointID: f.repairable.ID}, gmaoerr.ErrValidation},
		{"priority out of range", tech, CreateOpts{WorkOrderID: f.wo.ID, CheckPointID: f.repairable.ID, Title: "x", Priority: 9}, gmaoerr.ErrValidation},
		{"negative cost", tech, CreateOpts{WorkOrderID: f.wo.ID, CheckPointID: f.repairable.ID, Title: "x", EstimatedCost: decimal.NewFromInt(-1)}, gmaoerr.ErrValidation},
		{"not assigned", outsider, CreateOpts{WorkOrderID: f.wo.ID, CheckPointID: f.repairable.ID, Title: "x"}, gmaoerr.ErrPermissionDenied},
		{"unknown work order", tech, CreateOpts{WorkOrderID: "nope", CheckPointID: f.repairable.ID, Title: "x"}, gmaoerr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.actor, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if err := f.db.Model(f.wo).Update("status", "Closed").Error; err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := f.svc.Create(ctx, tech, CreateOpts{WorkOrderID: f.wo.ID, CheckPointID: f.repairable.ID, Title: "x"})
	if !errors.Is(err, gmaoerr.ErrState) {
		t.Errorf("closed work order: err = %v, want ErrState", err)
	}
}

func TestCreate_ConcurrentNumbersAreDistinct(t *testing.T) {
	f := setup(t, nil)
	const n = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	var numbers []string
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.svc.Create(context.Background(), tech, CreateOpts{
				WorkOrderID: f.wo.ID, CheckPointID: f.repairable.ID, Title: fmt.Sprintf("repair %d", i),
			})
			if err != nil {
				t.Errorf("Create %d: %v", i, err)
				return
			}
			mu.Lock()
			numbers = append(numbers, r.Number)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	sort.Strings(numbers)
	if len(numbers) != n {
		t.Fatalf("created %d, want %d", len(numbers), n)
	}
	for i, got := range numbers {
		if want := Number(2025, int64(i+1)); got != want {
			t.Errorf("numbers[%d] = %s, want %s", i, got, want)
		}
	}
}

// scriptedSeq returns a fixed series of values, then keeps returning the last.
type scriptedSeq struct {
	mu     sync.Mutex
	values []int64
}

func (s *scriptedSeq) Next(context.Context, *gorm.DB, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[0]
	if len(s.values) > 1 {
		s.values = s.values[1:]
	}
	return v, nil
}

func TestCreate_RetriesOnDuplicateNumber(t *testing.T) {
	f := setup(t, &scriptedSeq{values: []int64{1, 1, 2}})
	first := f.create(t, CreateOpts{})
	second := f.create(t, CreateOpts{})
	if first.Number != "DR-2025-001" || second.Number != "DR-2025-002" {
		t.Errorf("numbers = %s, %s", first.Number, second.Number)
	}
}

func TestCreate_GivesUpAfterRetries(t *testing.T) {
	f := setup(t, &scriptedSeq{values: []int64{1}})
	f.create(t, CreateOpts{})
	_, err := f.svc.Create(context.Background(), tech, CreateOpts{
		WorkOrderID: f.wo.ID, CheckPointID: f.repairable.ID, Title: "again",
	})
	if !errors.Is(err, gmaoerr.ErrConcurrencyConflict) {
		t.Errorf("err = %v, want ErrConcurrencyConflict", err)
	}
	var count int64
	f.db.Model(&models.RepairRequest{}).Count(&count)
	if count != 1 {
		t.Errorf("requests = %d, want 1", count)
	}
}

func TestCreate_SkipsNumbersTakenOutsideCounter(t *testing.T) {
	f := setup(t, nil)
	for _, n := range []string{"DR-2025-001", "DR-2025-004", "DR-2024-009"} {
		legacy := &models.RepairRequest{
			ID: "legacy-" + n, Number: n, WorkOrderID: f.wo.ID, CheckPointID: f.repairable.ID,
			Title: "import", Status: models.RepairDone, CreatedBy: manager.ID,
		}
		if err := f.db.Create(legacy).Error; err != nil {
			t.Fatalf("insert %s: %v", n, err)
		}
	}

	first := f.create(t, CreateOpts{})
	second := f.create(t, CreateOpts{})
	if first.Number != "DR-2025-005" || second.Number != "DR-2025-006" {
		t.Errorf("numbers = %s, %s; want DR-2025-005, DR-2025-006", first.Number, second.Number)
	}
}

func TestPermissionCheckedBeforeInput(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	r := f.create(t, CreateOpts{})

	_, err := f.svc.Create(ctx, outsider, CreateOpts{
		WorkOrderID: f.wo.ID, CheckPointID: f.repairable.ID, EstimatedCost: decimal.NewFromInt(-1),
	})
	if !errors.Is(err, gmaoerr.ErrPermissionDenied) {
		t.Errorf("Create: err = %v, want ErrPermissionDenied", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"reject", func() error { _, err := f.svc.Reject(ctx, outsider, r.ID, ""); return err }},
		{"assign", func() error { _, err := f.svc.Assign(ctx, outsider, r.ID, " "); return err }},
		{"defer", func() error { _, err := f.svc.Defer(ctx, outsider, r.ID, ""); return err }},
		{"complete", func() error {
			_, err := f.svc.Complete(ctx, outsider, r.ID, CompleteOpts{ActualCost: decimal.NewFromInt(-3)})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, gmaoerr.ErrPermissionDenied) {
				t.Errorf("err = %v, want ErrPermissionDenied", err)
			}
		})
	}

	disabled := testConfig()
	disabled.Features.RepairRequests = false
	svc := NewService(f.db, auth.NewGate(nil), sequence.NewDBCounter(f.db), f.clock, disabled, nil, nil)
	_, err = svc.Create(ctx, outsider, CreateOpts{WorkOrderID: f.wo.ID, CheckPointID: f.repairable.ID, Title: "x"})
	if !errors.Is(err, gmaoerr.ErrPermissionDenied) {
		t.Errorf("disabled feature: err = %v, want ErrPermissionDenied", err)
	}
}

func TestCreate_Disabled(t *testing.T) {
	f := setup(t, nil)
	cfg := testConfig()
	cfg.Features.RepairRequests = false
	svc := NewService(f.db, auth.NewGate(nil), sequence.NewDBCounter(f.db), f.clock, cfg, nil, nil)
	_, err := svc.Create(context.Background(), tech, CreateOpts{WorkOrderID: f.wo.ID, CheckPointID: f.repairable.ID, Title: "x"})
	if !errors.Is(err, gmaoerr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestLifecycle(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	r := f.create(t, CreateOpts{})

	if _, err := f.svc.Start(ctx, manager, r.ID); !errors.Is(err, gmaoerr.ErrState) {
		t.Errorf("Start from Pending: err = %v, want ErrState", err)
	}
	if _, err := f.svc.Validate(ctx, tech, r.ID, ""); !errors.Is(err, gmaoerr.ErrPermissionDenied) {
		t.Errorf("Validate by technician: err = %v, want ErrPermissionDenied", err)
	}
	r, err := f.svc.Validate(ctx, manager, r.ID, "ok pour remplacement")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if r.ValidatedBy == nil || *r.ValidatedBy != manager.ID || r.ValidatedAt == nil {
		t.Errorf("validated = %+v", r)
	}
	if _, err := f.svc.Reject(ctx, manager, r.ID, "trop tard"); !errors.Is(err, gmaoerr.ErrState) {
		t.Errorf("Reject after validate: err = %v, want ErrState", err)
	}

	if _, err := f.svc.Start(ctx, tech, r.ID); !errors.Is(err, gmaoerr.ErrPermissionDenied) {
		t.Errorf("Start by unassigned technician: err = %v, want ErrPermissionDenied", err)
	}
	if _, err := f.svc.Assign(ctx, manager, r.ID, tech.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	r, err = f.svc.Start(ctx, tech, r.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r.Status != models.RepairInProgress || r.StartedAt == nil {
		t.Errorf("started = %+v", r)
	}

	f.clock.Advance(90 * time.Minute)
	r, err = f.svc.Complete(ctx, tech, r.ID, CompleteOpts{ActualCost: decimal.RequireFromString("80"), Resolution: "joint remplacé"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if r.Status != models.RepairDone || !r.ActualCost.Equal(decimal.NewFromInt(80)) || r.ResolutionNote != "joint remplacé" {
		t.Errorf("completed = %+v", r)
	}
	if d, ok := Duration(r); !ok || d != 90*time.Minute {
		t.Errorf("Duration = %v, %v; want 90m", d, ok)
	}
	if _, err := f.svc.Defer(ctx, manager, r.ID, "plus tard"); !errors.Is(err, gmaoerr.ErrState) {
		t.Errorf("Defer after Done: err = %v, want ErrState", err)
	}
}

func TestRejectAndDefer(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	r := f.create(t, CreateOpts{})
	if _, err := f.svc.Reject(ctx, manager, r.ID, " "); !errors.Is(err, gmaoerr.ErrValidation) {
		t.Errorf("Reject without reason: err = %v, want ErrValidation", err)
	}
	r, err := f.svc.Reject(ctx, manager, r.ID, "doublon")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if r.Status != models.RepairRejected || r.ManagerComment != "doublon" {
		t.Errorf("rejected = %+v", r)
	}

	d := f.create(t, CreateOpts{})
	d, err = f.svc.Defer(ctx, manager, d.ID, "pièce en commande")
	if err != nil {
		t.Fatalf("Defer: %v", err)
	}
	if d.Status != models.RepairDeferred || d.DeferReason != "pièce en commande" {
		t.Errorf("deferred = %+v", d)
	}
	d, err = f.svc.Resume(ctx, manager, d.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if d.Status != models.RepairPending {
		t.Errorf("resumed status = %s, want Pending", d.Status)
	}
}

func TestOpenBlocking(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	nonBlocking := false

	blocking := f.create(t, CreateOpts{})
	f.create(t, CreateOpts{BlocksClosure: &nonBlocking})
	deferred := f.create(t, CreateOpts{})
	if _, err := f.svc.Defer(ctx, manager, deferred.ID, "attente"); err != nil {
		t.Fatalf("Defer: %v", err)
	}

	open, err := OpenBlocking(f.db, f.wo.ID)
	if err != nil {
		t.Fatalf("OpenBlocking: %v", err)
	}
	if len(open) != 1 || open[0].ID != blocking.ID {
		t.Errorf("open = %v, want only %s", open, blocking.Number)
	}

	if _, err := f.svc.Validate(ctx, manager, blocking.ID, ""); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := f.svc.Start(ctx, manager, blocking.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if open, _ := OpenBlocking(f.db, f.wo.ID); len(open) != 1 {
		t.Errorf("in-progress request should still block, got %d", len(open))
	}
	if _, err := f.svc.Complete(ctx, manager, blocking.ID, CompleteOpts{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if open, _ := OpenBlocking(f.db, f.wo.ID); len(open) != 0 {
		t.Errorf("done request should not block, got %d", len(open))
	}
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		due    *time.Time
		status string
		want   bool
	}{
		{"no due date", nil, models.RepairPending, false},
		{"due in the future", &future, models.RepairPending, false},
		{"past due and open", &past, models.RepairInProgress, true},
		{"past due and deferred", &past, models.RepairDeferred, true},
		{"past due but done", &past, models.RepairDone, false},
		{"past due but rejected", &past, models.RepairRejected, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &models.RepairRequest{DueDate: tt.due, Status: tt.status}
			if got := IsOverdue(r, now); got != tt.want {
				t.Errorf("IsOverdue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListOverdue(t *testing.T) {
	f := setup(t, nil)
	due := f.clock.Now().Add(24 * time.Hour)
	late := f.create(t, CreateOpts{DueDate: &due})
	f.create(t, CreateOpts{})

	f.clock.Advance(48 * time.Hour)
	overdue, err := f.svc.ListOverdue(context.Background())
	if err != nil {
		t.Fatalf("ListOverdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID != late.ID {
		t.Errorf("overdue = %v, want %s", overdue, late.Number)
	}

	list, err := f.svc.List(context.Background(), Filter{WorkOrderID: f.wo.ID, Status: models.RepairPending})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("List = %d, want 2", len(list))
	}
}
