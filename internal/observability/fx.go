package observability

import (
	"github.com/tallyops/meridian/internal/config"
	"github.com/tallyops/meridian/internal/observability/metrics"
	"go.uber.org/fx"
)

func newMetricsConfig(cfg config.Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.MetricsEnabled,
		ExporterEndpoint: cfg.OTLPEndpoint,
		ExporterProtocol: cfg.MetricsExporter,
		ServiceName:      cfg.AppName,
		Environment:      cfg.Environment,
	}
}

// Module wires the meter provider and application instruments.
var Module = fx.Module("observability",
	fx.Provide(
		newMetricsConfig,
		metrics.NewProvider,
		metrics.New,
	),
)
