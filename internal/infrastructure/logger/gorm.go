package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const (
	// DefaultSlowQueryThreshold applies when GormConfig.SlowThreshold is zero.
	DefaultSlowQueryThreshold = 200 * time.Millisecond

	// maxLoggedSQL caps statements such as shipment record upserts that
	// carry whole vendor payloads.
	maxLoggedSQL = 2048
)

// GormConfig configures the SQL logger.
type GormConfig struct {
	// Level is the application log level; SQL text is only logged at "debug"
	Level         string
	SlowThreshold time.Duration
}

// GormLogger writes GORM output through zap, tagged with the request,
// shipment and trace of the calling context. Record-not-found is never
// logged: a missing shipment record is a normal lookup result.
type GormLogger struct {
	logger        *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func NewGormLogger(log *zap.Logger, cfg GormConfig) *GormLogger {
	threshold := cfg.SlowThreshold
	if threshold <= 0 {
		threshold = DefaultSlowQueryThreshold
	}
	return &GormLogger{
		logger:        log.Named("gorm"),
		level:         gormLevel(cfg.Level),
		slowThreshold: threshold,
	}
}

// gormLevel maps an application log level onto GORM's scale.
func gormLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.withContext(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.withContext(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.withContext(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace logs failed statements at error, slow ones at warn and the rest
// at debug.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	if err != nil && errors.Is(err, gormlogger.ErrRecordNotFound) {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && l.level >= gormlogger.Error
	slow := elapsed > l.slowThreshold && l.level >= gormlogger.Warn
	if !failed && !slow && l.level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	fields := append(correlationFields(ctx),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", truncateSQL(sql)),
	)

	switch {
	case failed:
		l.logger.Error("Query failed", append(fields, zap.Error(err))...)
	case slow:
		l.logger.Warn("Slow query", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	default:
		l.logger.Debug("Query", fields...)
	}
}

func (l *GormLogger) withContext(ctx context.Context) *zap.Logger {
	if fields := correlationFields(ctx); len(fields) > 0 {
		return l.logger.With(fields...)
	}
	return l.logger
}

func truncateSQL(sql string) string {
	if len(sql) <= maxLoggedSQL {
		return sql
	}
	return sql[:maxLoggedSQL] + "...(truncated)"
}
