package migration

import (
	"github.com/smallbiznis/rebill/internal/config"
	plandomain "github.com/smallbiznis/rebill/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/rebill/internal/subscription/domain"
	txdomain "github.com/smallbiznis/rebill/internal/transaction/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations are written for PostgreSQL. The other
		// supported engines get the schema through gorm so sqlite and mysql
		// setups still boot without a migration toolchain.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&plandomain.Plan{},
				&subscriptiondomain.Subscription{},
				&subscriptiondomain.Profile{},
				&txdomain.Entry{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
