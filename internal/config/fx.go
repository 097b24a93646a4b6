package config

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/meterline/internal/observability/metrics"
	"github.com/smallbiznis/meterline/pkg/db"
)

var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewBillingConfigHolder,
		provideMetricsConfig,
		provideDBConfig,
	),
)

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.MetricsEnabled,
		ExporterEndpoint: cfg.MetricsEndpoint,
		ExporterProtocol: cfg.MetricsProtocol,
		ServiceName:      cfg.AppName,
	}
}

func provideDBConfig(cfg Config) db.Config {
	return db.Config{
		Type:            cfg.DBType,
		Path:            cfg.DBPath,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}
}
