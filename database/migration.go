package database

import (
	"fmt"
	"time"

	"drive_collector/config"
	"drive_collector/logger"
	"drive_collector/models"

	"gorm.io/gorm"
)

// Migration records one applied schema step
type Migration struct {
	ID          uint   `gorm:"primaryKey"`
	Version     string `gorm:"unique;not null;size:32"`
	Name        string `gorm:"not null;size:255"`
	Applied     bool   `gorm:"default:false"`
	AppliedAt   *time.Time
	Description string
}

// Step is a schema change shipped with the binary
type Step struct {
	Version     string
	Name        string
	Description string
	Apply       func(tx *gorm.DB) error
	Applied     bool
}

// Steps lists every schema change in version order
var Steps = []Step{
	{
		Version:     "20240601_000000",
		Name:        "create sensor data",
		Description: "sample table with auto-increment id and one column per wire field",
		Apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(models.GetAllModels()...)
		},
	},
}

// MigrationRunner handles database migrations
type MigrationRunner struct {
	db             *gorm.DB
	migrationTable string
	steps          []Step
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *gorm.DB, cfg *config.Config) *MigrationRunner {
	table := cfg.Migration.MigrationTable
	if table == "" {
		table = "schema_migrations"
	}
	return &MigrationRunner{
		db:             db,
		migrationTable: table,
		steps:          Steps,
	}
}

func (mr *MigrationRunner) table(tx *gorm.DB) *gorm.DB {
	return tx.Table(mr.migrationTable)
}

// InitializeMigrationTable creates the migration table if it doesn't exist
func (mr *MigrationRunner) InitializeMigrationTable() error {
	return mr.table(mr.db).AutoMigrate(&Migration{})
}

// GetAppliedMigrations returns all applied migrations from the database
func (mr *MigrationRunner) GetAppliedMigrations() ([]Migration, error) {
	var migrations []Migration

	if err := mr.InitializeMigrationTable(); err != nil {
		return nil, fmt.Errorf("failed to initialize migration table: %w", err)
	}

	result := mr.table(mr.db).Where("applied = ?", true).Order("version ASC").Find(&migrations)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", result.Error)
	}

	return migrations, nil
}

// GetMigrationStatus returns every known step with its applied flag set
func (mr *MigrationRunner) GetMigrationStatus() ([]Step, error) {
	applied, err := mr.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}

	appliedVersions := make(map[string]bool, len(applied))
	for _, m := range applied {
		appliedVersions[m.Version] = true
	}

	status := make([]Step, len(mr.steps))
	for i, step := range mr.steps {
		step.Applied = appliedVersions[step.Version]
		status[i] = step
	}
	return status, nil
}

// GetPendingMigrations returns steps that haven't been applied yet
func (mr *MigrationRunner) GetPendingMigrations() ([]Step, error) {
	status, err := mr.GetMigrationStatus()
	if err != nil {
		return nil, err
	}

	var pending []Step
	for _, step := range status {
		if !step.Applied {
			pending = append(pending, step)
		}
	}
	return pending, nil
}

// RunMigrations executes all pending steps. Running it again is a no-op.
func (mr *MigrationRunner) RunMigrations() error {
	pending, err := mr.GetPendingMigrations()
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	if len(pending) == 0 {
		logger.Debugf("No pending migrations to run")
		return nil
	}

	logger.Printf("Running %d pending migration(s)...", len(pending))

	for _, step := range pending {
		if err := mr.runSingleMigration(step); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", step.Version, err)
		}
	}

	logger.Printf("All migrations completed successfully")
	return nil
}

// runSingleMigration executes a single step and records it in one transaction
func (mr *MigrationRunner) runSingleMigration(step Step) error {
	logger.Printf("Running migration: %s - %s", step.Version, step.Name)

	return mr.db.Transaction(func(tx *gorm.DB) error {
		if err := step.Apply(tx); err != nil {
			return fmt.Errorf("failed to apply schema change: %w", err)
		}

		now := time.Now()
		migration := Migration{
			Version:     step.Version,
			Name:        step.Name,
			Applied:     true,
			AppliedAt:   &now,
			Description: step.Description,
		}

		if err := mr.table(tx).Create(&migration).Error; err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}

		return nil
	})
}

// SchemaReady reports whether the sample table exists
func SchemaReady(db *gorm.DB) bool {
	return db.Migrator().HasTable(&models.SampleRecord{})
}
