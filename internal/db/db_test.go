package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	drv "github.com/go-sql-driver/mysql"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/models"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want []string
	}{
		{
			name: "local root",
			cfg:  config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, Name: "gmao", User: "root"},
			want: []string{"root@tcp(127.0.0.1:3306)/gmao", "parseTime=true"},
		},
		{
			name: "with password",
			cfg:  config.DatabaseConfig{Host: "db.internal", Port: 3307, Name: "plant", User: "gmao", Password: "pw"},
			want: []string{"gmao:pw@tcp(db.internal:3307)/plant"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.cfg)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("DSN() = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestConnect_UnknownDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "unknown driver") {
		t.Errorf("err = %v, want unknown driver", err)
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 18 {
		t.Errorf("AllModels() returned %d models, want 18", got)
	}
}

func TestAutoMigrate_CreatesTables(t *testing.T) {
	db := testDB(t)
	for _, m := range AllModels() {
		if !db.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
}

func TestSeedStatuses_Upsert(t *testing.T) {
	db := testDB(t)
	if err := SeedStatuses(db, config.DefaultStatuses()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	changed := config.DefaultStatuses()
	changed[0].Description = "Awaiting technician"
	if err := SeedStatuses(db, changed); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	var count int64
	db.Model(&models.WorkflowStatus{}).Count(&count)
	if count != 4 {
		t.Errorf("status rows = %d, want 4", count)
	}
	var st models.WorkflowStatus
	if err := db.First(&st, "name = ?", "New").Error; err != nil {
		t.Fatalf("load New: %v", err)
	}
	if st.Description != "Awaiting technician" {
		t.Errorf("Description = %q, want updated value", st.Description)
	}
	var closed models.WorkflowStatus
	db.First(&closed, "name = ?", "Closed")
	if !closed.Final {
		t.Error("Closed should be final")
	}
}

func TestIsDuplicateKey(t *testing.T) {
	db := testDB(t)
	ctr := models.SequenceCounter{Name: "dup", Value: 1}
	if err := db.Create(&ctr).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := db.Create(&models.SequenceCounter{Name: "dup", Value: 2}).Error
	if !IsDuplicateKey(err) {
		t.Errorf("IsDuplicateKey(%v) = false, want true", err)
	}

	if !IsDuplicateKey(fmt.Errorf("wrapped: %w", &drv.MySQLError{Number: 1062})) {
		t.Error("MySQL 1062 should be a duplicate key")
	}
	if IsDuplicateKey(&drv.MySQLError{Number: 1146}) {
		t.Error("MySQL 1146 should not be a duplicate key")
	}
	if IsDuplicateKey(errors.New("boom")) || IsDuplicateKey(nil) {
		t.Error("plain errors are not duplicate keys")
	}
}
