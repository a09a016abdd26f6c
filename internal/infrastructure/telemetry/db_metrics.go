package telemetry

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DBMetrics holds the database instruments
type DBMetrics struct {
	queryTotal    *Counter
	queryErrors   *Counter
	queryDuration *Histogram
}

// NewDBMetrics creates query instruments and, when sqlDB is set, observable
// connection pool gauges read from sql.DBStats on each collection.
func NewDBMetrics(meter metric.Meter, sqlDB *sql.DB) (*DBMetrics, error) {
	queryTotal, err := NewCounter(meter, "db_query_total", "Total number of database queries", "{query}")
	if err != nil {
		return nil, err
	}
	queryErrors, err := NewCounter(meter, "db_query_errors_total", "Database queries that returned an error", "{query}")
	if err != nil {
		return nil, err
	}
	queryDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query duration",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	if sqlDB != nil {
		if err := registerPoolGauges(meter, sqlDB); err != nil {
			return nil, err
		}
	}

	return &DBMetrics{
		queryTotal:    queryTotal,
		queryErrors:   queryErrors,
		queryDuration: queryDuration,
	}, nil
}

func registerPoolGauges(meter metric.Meter, sqlDB *sql.DB) error {
	conns, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Number of connections in the pool by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	maxConns, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum number of open connections"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Total number of connections waited for"),
		metric.WithUnit("{wait}"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(conns, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(conns, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(maxConns, int64(stats.MaxOpenConnections))
		o.ObserveInt64(waits, stats.WaitCount)
		return nil
	}, conns, maxConns, waits)
	return err
}

// RecordQuery records one statement
func (m *DBMetrics) RecordQuery(ctx context.Context, op, table string, d time.Duration, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := []attribute.KeyValue{AttrDBOperation.String(op), AttrDBTable.String(table)}
	m.queryTotal.Inc(ctx, attrs...)
	m.queryDuration.RecordDuration(ctx, d, attrs...)
	if err != nil {
		m.queryErrors.Inc(ctx, attrs...)
	}
}
