package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/alarm-gateway/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createDispatchAttemptsTable(),
	})

	return m.Migrate()
}

func createDispatchAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_dispatch_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DispatchAttemptModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_dispatch_id ON dispatch_attempts (dispatch_id, attempt_number)`,
				`CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_created_at ON dispatch_attempts (created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_failed ON dispatch_attempts (error_kind) WHERE outcome = 'FAILED'`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DispatchAttemptModel{})
		},
	}
}
