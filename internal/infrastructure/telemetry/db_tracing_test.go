package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/invoicehub/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRow struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func newTracedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := telemetry.DefaultDBTracingConfig()
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	db := newTracedDB(t)
	plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{}, zap.NewNop())
	require.NoError(t, plugin.Register(db))

	_, registered := db.Plugins["otelgorm"]
	assert.False(t, registered)
}

func TestDBTracingPlugin_RecordsSpans(t *testing.T) {
	sr := setupTestTracer(t)
	db := newTracedDB(t)

	cfg := telemetry.DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.SlowQueryThresh = time.Nanosecond
	require.NoError(t, telemetry.NewDBTracingPlugin(cfg, zap.NewNop()).Register(db))

	ctx, span := telemetry.StartSpan(context.Background(), "parent")
	require.NoError(t, db.WithContext(ctx).Create(&tracedRow{Name: "a"}).Error)
	var rows []tracedRow
	require.NoError(t, db.WithContext(ctx).Find(&rows).Error)
	span.End()

	var dbSpans int
	for _, s := range sr.Ended() {
		if s.Name() != "parent" {
			dbSpans++
			assert.Equal(t, span.SpanContext().TraceID(), s.SpanContext().TraceID())
		}
	}
	assert.GreaterOrEqual(t, dbSpans, 2)
}

func TestDBTracingPlugin_DoubleRegistration(t *testing.T) {
	db := newTracedDB(t)
	cfg := telemetry.DefaultDBTracingConfig()
	cfg.Enabled = true

	plugin := telemetry.NewDBTracingPlugin(cfg, zap.NewNop())
	require.NoError(t, plugin.Register(db))
	assert.Error(t, plugin.Register(db))
}
