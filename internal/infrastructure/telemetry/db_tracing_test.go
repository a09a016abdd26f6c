package telemetry_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
)

type traceRow struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "trace.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if d, err := db.DB(); err == nil {
			_ = d.Close()
		}
	})
	return db
}

func TestDBTracingPlugin_RecordsQueriesAndSlowStatements(t *testing.T) {
	reader, mp := newTestMeter(t)
	db := openSQLite(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	metrics, err := telemetry.NewDBMetrics(mp.Meter("test"), sqlDB)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{SlowQueryThresh: time.Nanosecond}, metrics, zap.New(core))
	require.NoError(t, plugin.RegisterOtelGorm(db))

	require.NoError(t, db.AutoMigrate(&traceRow{}))
	require.NoError(t, db.Create(&traceRow{Name: "a"}).Error)
	var rows []traceRow
	require.NoError(t, db.Find(&rows).Error)
	assert.Len(t, rows, 1)
	assert.Error(t, db.Table("missing_table").Find(&rows).Error)

	assert.Equal(t, int64(1), sumWhere(t, reader, "db_query_total",
		telemetry.AttrDBOperation.String("create"), telemetry.AttrDBTable.String("trace_rows")))
	assert.GreaterOrEqual(t, sumWhere(t, reader, "db_query_total", telemetry.AttrDBOperation.String("query")), int64(2))
	assert.Equal(t, int64(1), sumWhere(t, reader, "db_query_errors_total", telemetry.AttrDBTable.String("missing_table")))
	assert.NotZero(t, logs.FilterMessage("Slow query").Len())

	pool, ok := findMetric(t, reader, "db_pool_connections_max")
	require.True(t, ok)
	assert.NotNil(t, pool.Data)
}

func TestDBTracingPlugin_DisabledWithoutMetricsIsNoop(t *testing.T) {
	db := openSQLite(t)
	core, logs := observer.New(zapcore.InfoLevel)
	plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{}, nil, zap.New(core))

	require.NoError(t, plugin.RegisterOtelGorm(db))
	assert.Zero(t, logs.Len())
	assert.Nil(t, db.Callback().Query().Get("telemetry:after_query"))
}

func TestDBTracingPlugin_EnabledRegistersOtelgorm(t *testing.T) {
	sr := setupTestTracer(t)
	db := openSQLite(t)

	plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{Enabled: true}, nil, zap.NewNop())
	require.NoError(t, plugin.RegisterOtelGorm(db))
	require.NoError(t, db.AutoMigrate(&traceRow{}))
	require.NoError(t, db.Create(&traceRow{Name: "b"}).Error)

	assert.NotEmpty(t, sr.Ended())
	assert.NotNil(t, db.Callback().Create().Get("telemetry:after_create"))
}
