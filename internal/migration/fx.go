package migration

import (
	allocationdomain "github.com/tallyops/meridian/internal/allocation/domain"
	bucketdomain "github.com/tallyops/meridian/internal/bucket/domain"
	catalogdomain "github.com/tallyops/meridian/internal/catalog/domain"
	"github.com/tallyops/meridian/internal/config"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	prorationdomain "github.com/tallyops/meridian/internal/proration/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Versioned migrations target postgres; local sqlite and mysql
			// setups sync the schema straight from the models.
			return conn.AutoMigrate(
				&catalogdomain.ServiceDefinition{},
				&contractlinedomain.ContractLine{},
				&contractlinedomain.ServiceAssignment{},
				&contractlinedomain.BucketOverlay{},
				&bucketdomain.LedgerEntry{},
				&allocationdomain.Allocation{},
				&prorationdomain.FixedCharge{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
