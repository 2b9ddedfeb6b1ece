package telemetry

import (
	"fmt"

	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InstrumentGorm registers the otelgorm plugin so every statement becomes a
// child span of the request or saga step. Bound variables are left out of
// span attributes unless full SQL logging is on.
func InstrumentGorm(db *gorm.DB, dbCfg config.DatabaseConfig, cfg config.TelemetryConfig, log *zap.Logger) error {
	if !cfg.Enabled || !cfg.DBTraceEnabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(dbName(dbCfg))}
	if !cfg.DBLogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return fmt.Errorf("failed to register otelgorm: %w", err)
	}

	log.Info("Database tracing enabled",
		zap.String("driver", dbCfg.Driver),
		zap.Bool("log_full_sql", cfg.DBLogFullSQL),
	)
	return nil
}

func dbName(cfg config.DatabaseConfig) string {
	if cfg.Driver == config.DriverSQLite {
		return cfg.Path
	}
	return cfg.DBName
}
