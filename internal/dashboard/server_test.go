package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/clock"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/db"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/repair"
	"github.com/yazid-hub/GMOA/internal/sequence"
	"github.com/yazid-hub/GMOA/internal/workorder"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStart_RequiresDependencies(t *testing.T) {
	tests := []struct {
		name string
		opts StartOpts
		want string
	}{
		{"no db", StartOpts{}, "db is required"},
		{"no services", StartOpts{DB: &gorm.DB{}}, "services are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Start(context.Background(), tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clk := clock.NewFixed(time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC))
	cfg := &config.Config{
		Workflow: config.WorkflowConfig{Statuses: config.DefaultStatuses()},
		Features: config.FeatureConfig{RepairRequests: true},
		Sequence: config.SequenceConfig{Backend: "db", Retries: 3},
	}
	gate := auth.NewGate(nil)
	opts := StartOpts{
		DB:       gdb,
		Orders:   workorder.NewService(gdb, gate, clk, cfg.Workflow, nil, nil),
		Repairs:  repair.NewService(gdb, gate, sequence.NewDBCounter(gdb), clk, cfg, nil, nil),
		Workflow: cfg.Workflow,
	}

	tech := "tech"
	orders := []models.WorkOrder{
		{ID: "wo-1", Title: "Inspection pompe", TemplateID: "tpl", AssetID: "P-101", Status: "InProgress",
			AssignedTechnician: &tech, ScheduledStart: time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)},
		{ID: "wo-2", Title: "Graissage", TemplateID: "tpl", AssetID: "P-102", Status: "New",
			ScheduledStart: time.Date(2025, 4, 5, 8, 0, 0, 0, time.UTC)},
		{ID: "wo-3", Title: "Vidange", TemplateID: "tpl", AssetID: "P-101", Status: "Closed",
			ScheduledStart: time.Date(2025, 3, 20, 8, 0, 0, 0, time.UTC)},
	}
	if err := gdb.Create(&orders).Error; err != nil {
		t.Fatalf("create orders: %v", err)
	}
	past := time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC)
	future := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	repairs := []models.RepairRequest{
		{ID: "r-1", Number: "DR-2025-001", WorkOrderID: "wo-1", CheckPointID: 1, Title: "Joint", Status: models.RepairPending, BlocksClosure: true, DueDate: &past},
		{ID: "r-2", Number: "DR-2025-002", WorkOrderID: "wo-1", CheckPointID: 1, Title: "Palier", Status: models.RepairValidated, DueDate: &future},
		{ID: "r-3", Number: "DR-2025-003", WorkOrderID: "wo-3", CheckPointID: 1, Title: "Filtre", Status: models.RepairDone, DueDate: &past},
	}
	if err := gdb.Create(&repairs).Error; err != nil {
		t.Fatalf("create repairs: %v", err)
	}
	return NewRouter(opts), gdb
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	router, _ := setupRouter(t)
	w := get(t, router, "/healthz")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %s", w.Code, w.Body.String())
	}
}

func TestWorkOrderList(t *testing.T) {
	router, _ := setupRouter(t)
	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"wo-2", "wo-1", "wo-3"}},
		{"?status=New", []string{"wo-2"}},
		{"?asset=P-101", []string{"wo-1", "wo-3"}},
		{"?technician=tech", []string{"wo-1"}},
		{"?from=2025-04-01&to=2025-04-05", []string{"wo-1"}},
		{"?limit=1", []string{"wo-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(t, router, "/api/workorders"+tt.query)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			var got []models.WorkOrder
			decode(t, w, &got)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d orders, want %v", len(got), tt.want)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("order[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestWorkOrderList_BadQuery(t *testing.T) {
	router, _ := setupRouter(t)
	for _, q := range []string{"?from=yesterday", "?limit=-2", "?limit=abc"} {
		if w := get(t, router, "/api/workorders"+q); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestWorkOrderDetail(t *testing.T) {
	router, _ := setupRouter(t)
	w := get(t, router, "/api/workorders/wo-1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var d struct {
		WorkOrder models.WorkOrder       `json:"work_order"`
		Repairs   []models.RepairRequest `json:"repairs"`
		Final     bool                   `json:"final"`
	}
	decode(t, w, &d)
	if d.WorkOrder.ID != "wo-1" || d.Final || len(d.Repairs) != 2 {
		t.Errorf("detail = %+v", d)
	}

	if w := get(t, router, "/api/workorders/missing"); w.Code != http.StatusNotFound {
		t.Errorf("missing order: status = %d, want 404", w.Code)
	}
}

func TestRepairList(t *testing.T) {
	router, _ := setupRouter(t)
	tests := []struct {
		query string
		want  []string
	}{
		{"?overdue=true", []string{"DR-2025-001"}},
		{"?workorder=wo-3", []string{"DR-2025-003"}},
		{"?status=Validated", []string{"DR-2025-002"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(t, router, "/api/repairs"+tt.query)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			var got []models.RepairRequest
			decode(t, w, &got)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d repairs, want %v", len(got), tt.want)
			}
			for i, n := range tt.want {
				if got[i].Number != n {
					t.Errorf("repair[%d] = %s, want %s", i, got[i].Number, n)
				}
			}
		})
	}
}

func TestSummary(t *testing.T) {
	router, _ := setupRouter(t)
	w := get(t, router, "/api/summary")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var got struct {
		WorkOrders []PhaseCount  `json:"work_orders"`
		Repairs    []StatusCount `json:"repairs"`
	}
	decode(t, w, &got)
	totals := make(map[string]int64)
	for _, p := range got.WorkOrders {
		totals[p.Phase] = p.Total
	}
	want := map[string]int64{config.PhaseNew: 1, config.PhaseInProgress: 1, config.PhaseClosed: 1, config.PhaseCancelled: 0}
	for phase, n := range want {
		if totals[phase] != n {
			t.Errorf("phase %s total = %d, want %d", phase, totals[phase], n)
		}
	}
	if len(got.WorkOrders) != 4 || got.WorkOrders[0].Phase != config.PhaseNew {
		t.Errorf("phases = %+v, want configured order", got.WorkOrders)
	}
	if len(got.Repairs) != 3 {
		t.Errorf("repair statuses = %+v", got.Repairs)
	}
}

func TestWorkOrderSummary_UnknownStatus(t *testing.T) {
	_, gdb := setupRouter(t)
	if err := gdb.Model(&models.WorkOrder{}).Where("id = ?", "wo-3").Update("status", "Legacy").Error; err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := WorkOrderSummary(gdb, config.WorkflowConfig{Statuses: config.DefaultStatuses()})
	if err != nil {
		t.Fatalf("WorkOrderSummary: %v", err)
	}
	last := got[len(got)-1]
	if last.Phase != "unknown" || last.Total != 1 || last.Statuses[0].Status != "Legacy" {
		t.Errorf("last phase = %+v", last)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := setupRouter(t)
	w := get(t, router, "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("metrics = %d, body lacks go_goroutines", w.Code)
	}
}
