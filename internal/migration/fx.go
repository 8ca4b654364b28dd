package migration

import (
	auditdomain "github.com/tagihin/tagihin/internal/audit/domain"
	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
	"github.com/tagihin/tagihin/internal/config"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
	settingsdomain "github.com/tagihin/tagihin/internal/settings/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned migrations target postgres. Other dialects (mysql and
		// sqlite for development) fall back on schema sync from the models.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&clientdomain.Client{},
				&invoicedomain.PlatformInvoice{},
				&settingsdomain.PlatformSetting{},
				&auditdomain.CronJobLog{},
				&auditdomain.ErrorLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
