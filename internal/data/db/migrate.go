package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/vidstream-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(domain.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if db.Dialector.Name() == "postgres" {
		return EnsureJobIndexes(db)
	}
	return nil
}

// EnsureJobIndexes adds the partial index the worker claim query scans.
func EnsureJobIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_job_run_claimable
		ON job_run(next_run_at, created_at)
		WHERE status IN ('queued', 'running') AND deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_job_run_claimable: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_job_run_event_job_created
		ON job_run_event(job_id, created_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_job_run_event_job_created: %w", err)
	}
	return nil
}
