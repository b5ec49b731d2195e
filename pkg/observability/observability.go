// Package observability provides OpenTelemetry-based metrics for the
// export and retention engines: job counters, failure counters, and
// purge volume, exported over OTLP.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures the OpenTelemetry provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // e.g. "localhost:4317" for gRPC
	Enabled        bool
	Insecure       bool // dev only
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "casetrail-export",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	}
}

// Provider manages the meter provider and the engine's instruments.
type Provider struct {
	config        *Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	logger        *slog.Logger

	exportsStarted   metric.Int64Counter
	exportsCompleted metric.Int64Counter
	exportsFailed    metric.Int64Counter
	exportedRows     metric.Int64Counter
	purgedRows       metric.Int64Counter
}

// New creates an observability provider. When disabled, instruments come
// from the global (no-op) meter and no exporter is started.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if config.Enabled {
		res, err := resource.Merge(
			resource.Default(),
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
				semconv.DeploymentEnvironment(config.Environment),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("observability: create resource: %w", err)
		}

		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint)}
		if config.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("observability: create OTLP exporter: %w", err)
		}

		p.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(15*time.Second))),
		)
		otel.SetMeterProvider(p.meterProvider)
		p.meter = p.meterProvider.Meter("casetrail.export")
	} else {
		p.logger.InfoContext(ctx, "observability disabled")
		p.meter = otel.Meter("casetrail.export")
	}

	if err := p.initInstruments(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) initInstruments() error {
	var err error
	if p.exportsStarted, err = p.meter.Int64Counter("casetrail.exports.started",
		metric.WithDescription("Export jobs that entered processing")); err != nil {
		return fmt.Errorf("observability: create counter: %w", err)
	}
	if p.exportsCompleted, err = p.meter.Int64Counter("casetrail.exports.completed",
		metric.WithDescription("Export jobs that completed")); err != nil {
		return fmt.Errorf("observability: create counter: %w", err)
	}
	if p.exportsFailed, err = p.meter.Int64Counter("casetrail.exports.failed",
		metric.WithDescription("Export jobs that failed")); err != nil {
		return fmt.Errorf("observability: create counter: %w", err)
	}
	if p.exportedRows, err = p.meter.Int64Counter("casetrail.exports.rows",
		metric.WithDescription("Rows written to export artifacts")); err != nil {
		return fmt.Errorf("observability: create counter: %w", err)
	}
	if p.purgedRows, err = p.meter.Int64Counter("casetrail.retention.purged_rows",
		metric.WithDescription("Rows deleted by retention purges")); err != nil {
		return fmt.Errorf("observability: create counter: %w", err)
	}
	return nil
}

// ExportStarted records a job entering processing.
func (p *Provider) ExportStarted(ctx context.Context, format string) {
	p.exportsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("format", format)))
}

// ExportCompleted records a completed job and its row volume.
func (p *Provider) ExportCompleted(ctx context.Context, format string, rows int) {
	attrs := metric.WithAttributes(attribute.String("format", format))
	p.exportsCompleted.Add(ctx, 1, attrs)
	p.exportedRows.Add(ctx, int64(rows), attrs)
}

// ExportFailed records a failed job.
func (p *Provider) ExportFailed(ctx context.Context, format string) {
	p.exportsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("format", format)))
}

// PurgeExecuted records deleted row volume per entity type.
func (p *Provider) PurgeExecuted(ctx context.Context, entityType string, rows int) {
	p.purgedRows.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("entity_type", entityType)))
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("observability: shutdown meter provider: %w", err)
	}
	return nil
}
