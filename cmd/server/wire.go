package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/migration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence"
	"github.com/syncbridge/backend/internal/infrastructure/remote"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"github.com/syncbridge/backend/internal/infrastructure/webhook"
)

// buildAdapters registers an adapter for every enabled provider
func buildAdapters(cfg config.ProvidersConfig, log *zap.Logger) (*integration.AdapterRegistry, error) {
	registry := integration.NewAdapterRegistry()

	if cfg.OrderAPI.Enabled {
		adapter, err := remote.NewOrderAPIAdapter(&remote.OrderAPIConfig{
			BaseURL:      cfg.OrderAPI.BaseURL,
			TokenURL:     cfg.OrderAPI.TokenURL,
			ClientID:     cfg.OrderAPI.ClientID,
			ClientSecret: cfg.OrderAPI.ClientSecret,
			AccountID:    cfg.OrderAPI.AccountID,
			Timeout:      cfg.OrderAPI.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("order_api: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}

	if cfg.ProofAPI.Enabled {
		adapter, err := remote.NewProofAPIAdapter(&remote.ProofAPIConfig{
			Endpoint:  cfg.ProofAPI.Endpoint,
			Token:     cfg.ProofAPI.Token,
			AccountID: cfg.ProofAPI.AccountID,
			Timeout:   cfg.ProofAPI.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("proof_api: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}

	if cfg.Messaging.Enabled {
		adapter, err := remote.NewMessagingAdapter(&remote.MessagingConfig{
			BaseURL:   cfg.Messaging.BaseURL,
			APIKey:    cfg.Messaging.APIKey,
			AccountID: cfg.Messaging.AccountID,
			Timeout:   cfg.Messaging.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("messaging: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}

	types := registry.EntityTypes()
	if len(types) == 0 {
		log.Warn("No remote providers enabled; the engine will only serve stored state")
	} else {
		log.Info("Remote adapters registered", zap.Any("entity_types", types))
	}
	return registry, nil
}

// buildVerifiers creates a webhook verifier for every provider with a
// registered adapter. Providers without a configured secret get the
// insecure verifier, which logs a warning.
func buildVerifiers(cfg config.WebhookConfig, adapters *integration.AdapterRegistry, log *zap.Logger) (*webhook.Verifiers, error) {
	configs := make(map[integration.Provider]webhook.Config)
	for _, p := range []integration.Provider{integration.ProviderOrderAPI, integration.ProviderProofAPI, integration.ProviderMessaging} {
		if _, err := adapters.ForProvider(p); err != nil {
			continue
		}
		pc := cfg.Providers[string(p)]
		configs[p] = webhook.Config{
			Strategy:        webhook.Strategy(pc.Strategy),
			Secret:          pc.Secret,
			SignatureHeader: pc.SignatureHeader,
			TimestampHeader: pc.TimestampHeader,
			Tolerance:       cfg.Tolerance,
		}
	}
	for name := range cfg.Providers {
		if _, err := integration.ParseProvider(name); err != nil {
			log.Warn("Ignoring webhook config for unknown provider", zap.String("provider", name))
		}
	}
	return webhook.NewVerifiers(configs, log)
}

// migrateSchema applies the embedded SQL migrations on postgres. SQLite is
// used for local runs and tests, where GORM's AutoMigrate is enough.
func migrateSchema(db *persistence.Database, log *zap.Logger) error {
	if db.Driver != "postgres" {
		return db.AutoMigrate()
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, "", log)
	if err != nil {
		return err
	}
	// Not closed: the migrate driver would close sqlDB with it
	return m.Up()
}

// instrumentDatabase registers pool metrics and the query tracing plugin
func instrumentDatabase(db *persistence.Database, cfg config.TelemetryConfig, meter metric.Meter, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	dbMetrics, err := telemetry.NewDBMetrics(meter, sqlDB)
	if err != nil {
		return err
	}
	plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Enabled && cfg.DBTraceEnabled,
		LogFullSQL:      cfg.DBLogFullSQL,
		SlowQueryThresh: cfg.DBSlowQueryThresh,
		DBSystem:        db.Driver,
	}, dbMetrics, log)
	return plugin.RegisterOtelGorm(db.DB)
}

type stopStep struct {
	name string
	stop func(context.Context) error
}

// stopAll runs every step in order, logging failures without aborting
func stopAll(ctx context.Context, log *zap.Logger, steps ...stopStep) {
	for _, step := range steps {
		if err := step.stop(ctx); err != nil {
			log.Error("Error stopping "+step.name, zap.Error(err))
		}
	}
}
