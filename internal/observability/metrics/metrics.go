// Package metrics exposes run-level OpenTelemetry instruments. When metrics
// are disabled a noop provider is installed, so callers never branch.
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
}

// Metrics exposes application-level instruments.
type Metrics struct {
	eventsFolded metric.Int64Counter
	rejections   metric.Int64Counter
	keysRated    metric.Int64Counter
	chargeLines  metric.Int64Counter
	keyFailures  metric.Int64Counter
	runDuration  metric.Float64Histogram
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
		return nil, fmt.Errorf("unsupported metrics protocol %q", protocol)
	}
}

// NewMetrics builds the engine instruments from the installed provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter("meterline")

	eventsFolded, err := meter.Int64Counter("meterline.usage.events_folded")
	if err != nil {
		return nil, err
	}
	rejections, err := meter.Int64Counter("meterline.usage.rejections")
	if err != nil {
		return nil, err
	}
	keysRated, err := meter.Int64Counter("meterline.rating.keys_rated")
	if err != nil {
		return nil, err
	}
	chargeLines, err := meter.Int64Counter("meterline.rating.charge_lines")
	if err != nil {
		return nil, err
	}
	keyFailures, err := meter.Int64Counter("meterline.rating.key_failures")
	if err != nil {
		return nil, err
	}
	runDuration, err := meter.Float64Histogram("meterline.rating.run_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		eventsFolded: eventsFolded,
		rejections:   rejections,
		keysRated:    keysRated,
		chargeLines:  chargeLines,
		keyFailures:  keyFailures,
		runDuration:  runDuration,
	}, nil
}

func (m *Metrics) RecordEventsFolded(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.eventsFolded.Add(ctx, n)
}

func (m *Metrics) RecordRejection(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordKeyRated(ctx context.Context) {
	if m == nil {
		return
	}
	m.keysRated.Add(ctx, 1)
}

func (m *Metrics) RecordChargeLines(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.chargeLines.Add(ctx, n)
}

func (m *Metrics) RecordKeyFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.keyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordRunDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Record(ctx, d.Seconds())
}
