package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRecord struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:100"`
}

func setupTracedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRecord{}))
	return db
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	db := setupTracedDB(t)
	require.NoError(t, RegisterDBTracing(db, DefaultDBTracingConfig(), zap.NewNop()))
	assert.Nil(t, db.Callback().Query().Get("slow_query:after_query"))
}

func TestRegisterDBTracing_Enabled(t *testing.T) {
	db := setupTracedDB(t)
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true

	require.NoError(t, RegisterDBTracing(db, cfg, zap.NewNop()))
	assert.NotNil(t, db.Callback().Query().Get("slow_query:after_query"))
	assert.NotNil(t, db.Callback().Create().Get("slow_query:before_create"))

	require.NoError(t, db.Create(&tracedRecord{Name: "SHIP-0001"}).Error)
}

func TestMarkSlowQuery(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	db := setupTracedDB(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), "query")
	ctx = context.WithValue(ctx, queryStartKey{}, time.Now().Add(-time.Second))
	tx := db.WithContext(ctx)
	tx.Statement.Context = ctx
	tx.Error = gorm.ErrInvalidData

	markSlowQuery(tx, 100*time.Millisecond)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	var slow bool
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "db.slow_query" {
			slow = kv.Value.AsBool()
		}
	}
	assert.True(t, slow)
}

func TestMarkSlowQuery_NotFoundAndFastQuery(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	db := setupTracedDB(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), "query")
	ctx = context.WithValue(ctx, queryStartKey{}, time.Now())
	tx := db.WithContext(ctx)
	tx.Statement.Context = ctx
	tx.Error = gorm.ErrRecordNotFound

	markSlowQuery(tx, time.Hour)
	span.End()

	s := sr.Ended()[0]
	assert.Equal(t, codes.Unset, s.Status().Code)
	assert.Empty(t, s.Attributes())
}
