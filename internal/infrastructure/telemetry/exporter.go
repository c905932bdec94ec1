package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

// DefaultServiceVersion is reported when no version is configured.
const DefaultServiceVersion = "1.0.0"

const providerShutdownTimeout = 10 * time.Second

// ExporterConfig is the collector connection shared by the trace, metric and
// log providers. All three describe the process with the same resource so a
// slow carrier call can be followed from span to log line to metric.
type ExporterConfig struct {
	CollectorEndpoint string
	Insecure          bool
	ServiceName       string
	ServiceVersion    string
	// Environment becomes deployment.environment.name, e.g. "production"
	Environment string
}

func (c ExporterConfig) resource() (*resource.Resource, error) {
	version := c.ServiceVersion
	if version == "" {
		version = DefaultServiceVersion
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(version),
	}
	if c.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(c.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}
	return res, nil
}

// shutdownWithin stops one provider, bounding the final flush.
func shutdownWithin(ctx context.Context, logger *zap.Logger, signal string, stop func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, providerShutdownTimeout)
	defer cancel()

	if err := stop(ctx); err != nil {
		logger.Error("Telemetry provider shutdown failed", zap.String("signal", signal), zap.Error(err))
		return fmt.Errorf("shutdown %s provider: %w", signal, err)
	}
	logger.Info("Telemetry provider stopped", zap.String("signal", signal))
	return nil
}
