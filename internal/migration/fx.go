package migration

import (
	"fmt"

	"github.com/smallbiznis/licensor/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
		switch cfg.Type {
		case db.TypeSQLite:
			if err := ApplySQLite(conn); err != nil {
				return err
			}
		case db.TypePostgres:
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		default:
			return fmt.Errorf("migrations unsupported for %s", cfg.Type)
		}
		log.Info("migrations applied", zap.String("type", cfg.Type))
		return nil
	}),
)
