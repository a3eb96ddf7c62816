package migration

import (
	"github.com/fieldpulse/repboard/internal/config"
	snapshotdomain "github.com/fieldpulse/repboard/internal/snapshot/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The golang-migrate driver only speaks postgres; for sqlite
		// (local development) gorm's automigration keeps the schema
		// current.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(&snapshotdomain.MetricSnapshot{})
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
