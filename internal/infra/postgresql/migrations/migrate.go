package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/nioasoft/reminder-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_tenants",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.TenantModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.TenantModel{})
			},
		},
		{
			ID: "000002_create_rules",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.RuleModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_rules_tenant_active_priority ON rules (tenant_id, active, priority, created_at)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.RuleModel{})
			},
		},
		{
			ID: "000003_create_candidates",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.CandidateModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_candidates_tenant_id ON candidates (tenant_id, id)`,
					`CREATE INDEX IF NOT EXISTS idx_candidates_tenant_status_created ON candidates (tenant_id, status, created_at)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.CandidateModel{})
			},
		},
		{
			ID: "000004_create_dispatch_records",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.DispatchRecordModel{}); err != nil {
					return err
				}
				indexes := []string{
					// The idempotency key: at most one SENT record per
					// (candidate, reminder type, calendar day).
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_dispatch_dedup_sent ON dispatch_records (candidate_id, reminder_type, dispatched_on) WHERE outcome = 'SENT'`,
					`CREATE INDEX IF NOT EXISTS idx_dispatch_candidate ON dispatch_records (candidate_id, dispatched_at)`,
					`CREATE INDEX IF NOT EXISTS idx_dispatch_tenant_outcome_day ON dispatch_records (tenant_id, outcome, dispatched_on)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.DispatchRecordModel{})
			},
		},
		{
			ID: "000005_create_rate_states",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.RateStateModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.RateStateModel{})
			},
		},
		{
			ID: "000006_create_tenant_run_states",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.TenantRunStateModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.TenantRunStateModel{})
			},
		},
		{
			ID: "000007_create_alert_records",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.AlertModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_tenant_category_day ON alert_records (tenant_id, category, alerted_on)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.AlertModel{})
			},
		},
	})

	return m.Migrate()
}
