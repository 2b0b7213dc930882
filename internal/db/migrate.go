package db

import (
	"errors"
	"fmt"

	drv "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.WorkflowStatus{},
		&models.User{},
		&models.Team{},
		&models.TeamMember{},
		&models.Asset{},
		&models.ChecklistTemplate{},
		&models.Operation{},
		&models.CheckPoint{},
		&models.WorkOrder{},
		&models.ExecutionReport{},
		&models.Answer{},
		&models.ArchivedAnswer{},
		&models.MediaAttachment{},
		&models.RepairRequest{},
		&models.SequenceCounter{},
		&models.HistoryEntry{},
		&models.Notification{},
		&models.PreventivePlan{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedStatuses upserts WorkflowStatus rows from configuration.
func SeedStatuses(db *gorm.DB, statuses []config.StatusConfig) error {
	for _, sc := range statuses {
		st := models.WorkflowStatus{
			Name:        sc.Name,
			Phase:       sc.Phase,
			Final:       sc.Final,
			Color:       sc.Color,
			Description: sc.Description,
		}
		if st.Color == "" {
			st.Color = "#808080"
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"phase", "final", "color", "description"}),
		}).Create(&st)
		if result.Error != nil {
			return fmt.Errorf("db: seed status %q: %w", sc.Name, result.Error)
		}
	}
	return nil
}

// IsDuplicateKey reports whether err is a unique constraint violation from
// either supported driver.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *drv.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
