package telemetry

import (
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL keeps bound variables in span statements
	LogFullSQL      bool
	SlowQueryThresh time.Duration
	DBSystem        string
}

// DefaultDBTracingConfig returns tracing disabled with a 200ms slow threshold
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

const queryStartKey = "telemetry:query_start"

// DBTracingPlugin installs otelgorm and flags slow statements on their spans
type DBTracingPlugin struct {
	config  DBTracingConfig
	logger  *zap.Logger
	metrics *DBMetrics
}

// NewDBTracingPlugin creates a tracing plugin. metrics may be nil.
func NewDBTracingPlugin(cfg DBTracingConfig, metrics *DBMetrics, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = DefaultDBTracingConfig().SlowQueryThresh
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = DefaultDBTracingConfig().DBSystem
	}
	return &DBTracingPlugin{config: cfg, logger: logger, metrics: metrics}
}

// RegisterOtelGorm registers otelgorm and the timing callbacks on db. It has
// the signature persistence.WithPlugin expects.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if p.config.Enabled {
		opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
		if !p.config.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}
	if !p.config.Enabled && p.metrics == nil {
		return nil
	}

	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before("telemetry:before_"+h.op, p.before); err != nil {
			return err
		}
		if err := h.after("telemetry:after_"+h.op, p.afterFunc(h.op)); err != nil {
			return err
		}
	}

	p.logger.Info("Database instrumentation registered",
		zap.Bool("tracing", p.config.Enabled),
		zap.Bool("metrics", p.metrics != nil),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
	)
	return nil
}

func (p *DBTracingPlugin) before(db *gorm.DB) {
	db.InstanceSet(queryStartKey, time.Now())
}

func (p *DBTracingPlugin) afterFunc(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(queryStartKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)
		table := db.Statement.Table

		if p.metrics != nil {
			p.metrics.RecordQuery(db.Statement.Context, op, table, elapsed, db.Error)
		}
		if elapsed < p.config.SlowQueryThresh {
			return
		}

		span := trace.SpanFromContext(db.Statement.Context)
		if span.IsRecording() {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.duration_ms", elapsed.Milliseconds()),
			)
		}
		p.logger.Warn("Slow query",
			zap.String("operation", op),
			zap.String("table", table),
			zap.Duration("duration", elapsed),
		)
	}
}
