package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	allocations        metric.Int64Counter
	allocationFailures metric.Int64Counter
	bucketConflicts    metric.Int64Counter
	fixedCharges       metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "meridian"
	}
	meter := provider.Meter(name)

	allocations, err := meter.Int64Counter("meridian_allocations_total")
	if err != nil {
		return nil, err
	}
	allocationFailures, err := meter.Int64Counter("meridian_allocation_failures_total")
	if err != nil {
		return nil, err
	}
	bucketConflicts, err := meter.Int64Counter("meridian_bucket_conflicts_total")
	if err != nil {
		return nil, err
	}
	fixedCharges, err := meter.Int64Counter("meridian_fixed_charges_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		allocations:        allocations,
		allocationFailures: allocationFailures,
		bucketConflicts:    bucketConflicts,
		fixedCharges:       fixedCharges,
	}, nil
}

// RecordAllocation counts one produced allocation by price source.
func (m *Metrics) RecordAllocation(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.allocations.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordAllocationFailure counts one per-unit business failure by kind.
func (m *Metrics) RecordAllocationFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.allocationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordBucketConflict counts one lost compare-and-set on a ledger entry.
func (m *Metrics) RecordBucketConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.bucketConflicts.Add(ctx, 1)
}

// RecordFixedCharge counts one prorated fixed charge emission.
func (m *Metrics) RecordFixedCharge(ctx context.Context) {
	if m == nil {
		return
	}
	m.fixedCharges.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported metrics exporter protocol %q", protocol)
	}
}
