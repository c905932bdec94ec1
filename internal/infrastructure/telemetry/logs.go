package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogsConfig controls export of application logs to the collector.
type LogsConfig struct {
	Enabled bool
	ExporterConfig
}

// LoggerProvider owns the SDK logger provider fed by the zap bridge.
type LoggerProvider struct {
	provider *sdklog.LoggerProvider
	logger   *zap.Logger
	scope    string
}

// NewLoggerProvider installs a batching OTLP logger provider. A disabled
// provider exports nothing and Attach leaves loggers untouched.
func NewLoggerProvider(ctx context.Context, cfg LogsConfig, logger *zap.Logger) (*LoggerProvider, error) {
	lp := &LoggerProvider{logger: logger, scope: cfg.ServiceName}
	if !cfg.Enabled {
		logger.Info("Log export disabled")
		return lp, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("log exporter: %w", err)
	}
	res, err := cfg.resource()
	if err != nil {
		return nil, err
	}

	lp.provider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(lp.provider)

	logger.Info("Log export enabled", zap.String("collector_endpoint", cfg.CollectorEndpoint))
	return lp, nil
}

// Shutdown flushes pending log records.
func (lp *LoggerProvider) Shutdown(ctx context.Context) error {
	if lp.provider == nil {
		return nil
	}
	return shutdownWithin(ctx, lp.logger, "log", lp.provider.Shutdown)
}

// IsEnabled returns whether log records are exported.
func (lp *LoggerProvider) IsEnabled() bool {
	return lp != nil && lp.provider != nil
}

// Core returns a core exporting entries at or above level through otelzap.
// Credential fields are removed before a record leaves the process.
func (lp *LoggerProvider) Core(level zapcore.Level) zapcore.Core {
	if !lp.IsEnabled() {
		return zapcore.NewNopCore()
	}
	return &exportCore{
		Core:     otelzap.NewCore(lp.scope, otelzap.WithLoggerProvider(lp.provider)),
		minLevel: level,
	}
}

// Attach tees base into the collector. Options of base, such as caller
// annotation, carry over.
func (lp *LoggerProvider) Attach(base *zap.Logger, level zapcore.Level) *zap.Logger {
	if !lp.IsEnabled() {
		return base
	}
	export := lp.Core(level)
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, export)
	}))
}

// secretLogKeys are field names never exported, matched case-insensitively.
var secretLogKeys = map[string]struct{}{
	"api_key":       {},
	"api_secret":    {},
	"authorization": {},
	"password":      {},
	"secret_key":    {},
}

func isSecretField(f zapcore.Field) bool {
	_, ok := secretLogKeys[strings.ToLower(f.Key)]
	return ok
}

func withoutSecrets(fields []zapcore.Field) []zapcore.Field {
	for i, f := range fields {
		if !isSecretField(f) {
			continue
		}
		kept := make([]zapcore.Field, i, len(fields))
		copy(kept, fields[:i])
		for _, rest := range fields[i+1:] {
			if !isSecretField(rest) {
				kept = append(kept, rest)
			}
		}
		return kept
	}
	return fields
}

// exportCore filters by level, since otelzap has no minimum level of its
// own, and strips credential fields.
type exportCore struct {
	zapcore.Core
	minLevel zapcore.Level
}

func (c *exportCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.minLevel && c.Core.Enabled(lvl)
}

func (c *exportCore) With(fields []zapcore.Field) zapcore.Core {
	return &exportCore{Core: c.Core.With(withoutSecrets(fields)), minLevel: c.minLevel}
}

func (c *exportCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *exportCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(entry, withoutSecrets(fields))
}
