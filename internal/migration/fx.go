package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/orgstream/orgstream/internal/config"
	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
	rmdomain "github.com/orgstream/orgstream/internal/readmodel/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite is for local development and tests; AutoMigrate keeps
			// it schema-compatible without a second migration set.
			return conn.AutoMigrate(&esdomain.Event{}, &rmdomain.OrganizationDoc{})
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
