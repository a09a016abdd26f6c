package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Sync      SyncConfig
	Queue     QueueConfig
	Webhook   WebhookConfig
	Providers ProvidersConfig
	Archive   ArchiveConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	// RateLimitRequests per RateLimitWindow per client IP; 0 disables limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// AdminToken guards /api/v1/sync; empty disables the check
	AdminToken string
}

// SyncConfig holds sync engine parameters
type SyncConfig struct {
	BatchSize         int
	PageSize          int
	FullSyncPageDelay time.Duration
	RefreshLimit      int
	RevalidationLimit int
	RunLockTTL        time.Duration
	WarnThreshold     int
	HighThreshold     int
	DisableThreshold  int
	DedupWindow       time.Duration
	// Scheduling
	SchedulerEnabled    bool
	Workers             int
	JobTimeout          time.Duration
	RetryAttempts       int
	RetryDelay          time.Duration
	IncrementalInterval time.Duration
	FullInterval        time.Duration
	RefreshInterval     time.Duration
	PushSweepInterval   time.Duration
}

// QueueConfig holds webhook task queue settings
type QueueConfig struct {
	Backend    string // memory, redis
	Workers    int
	BufferSize int
	RedisKey   string
}

// WebhookConfig holds webhook ingress settings
type WebhookConfig struct {
	MaxBodySize int64
	Tolerance   time.Duration
	Providers   map[string]WebhookProviderConfig
}

// WebhookProviderConfig holds the verification settings of one provider
type WebhookProviderConfig struct {
	Strategy        string `mapstructure:"strategy"`
	Secret          string `mapstructure:"secret"`
	SignatureHeader string `mapstructure:"signature_header"`
	TimestampHeader string `mapstructure:"timestamp_header"`
}

// ProvidersConfig holds the remote API credentials
type ProvidersConfig struct {
	OrderAPI  OrderAPIProviderConfig
	ProofAPI  ProofAPIProviderConfig
	Messaging MessagingProviderConfig
}

// OrderAPIProviderConfig configures the order/quote REST API
type OrderAPIProviderConfig struct {
	Enabled      bool
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	AccountID    string
	Timeout      time.Duration
}

// ProofAPIProviderConfig configures the proofing GraphQL API
type ProofAPIProviderConfig struct {
	Enabled   bool
	Endpoint  string
	Token     string
	AccountID string
	Timeout   time.Duration
}

// MessagingProviderConfig configures the messaging API
type MessagingProviderConfig struct {
	Enabled   bool
	BaseURL   string
	APIKey    string
	AccountID string
	Timeout   time.Duration
}

// ArchiveConfig holds the S3 archive for failed webhook payloads
type ArchiveConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
	Profiling         ProfilingConfig
}

// ProfilingConfig holds Pyroscope continuous profiling configuration
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string   // e.g. "http://pyroscope:4040"
	BasicAuthUser     string   // Grafana Cloud only
	BasicAuthPassword string   // Grafana Cloud only
	ProfileTypes      []string // cpu, alloc_space, inuse_space, goroutines, mutex_count, ...
	SpanProfiles      bool     // Link CPU samples to trace spans
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SYNC_ prefix (e.g., SYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			AdminToken:        v.GetString("http.admin_token"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Sync: SyncConfig{
			BatchSize:           v.GetInt("sync.batch_size"),
			PageSize:            v.GetInt("sync.page_size"),
			FullSyncPageDelay:   v.GetDuration("sync.full_sync_page_delay"),
			RefreshLimit:        v.GetInt("sync.refresh_limit"),
			RevalidationLimit:   v.GetInt("sync.revalidation_limit"),
			RunLockTTL:          v.GetDuration("sync.run_lock_ttl"),
			WarnThreshold:       v.GetInt("sync.warn_threshold"),
			HighThreshold:       v.GetInt("sync.high_threshold"),
			DisableThreshold:    v.GetInt("sync.disable_threshold"),
			DedupWindow:         v.GetDuration("sync.dedup_window"),
			SchedulerEnabled:    v.GetBool("sync.scheduler_enabled"),
			Workers:             v.GetInt("sync.workers"),
			JobTimeout:          v.GetDuration("sync.job_timeout"),
			RetryAttempts:       v.GetInt("sync.retry_attempts"),
			RetryDelay:          v.GetDuration("sync.retry_delay"),
			IncrementalInterval: v.GetDuration("sync.incremental_interval"),
			FullInterval:        v.GetDuration("sync.full_interval"),
			RefreshInterval:     v.GetDuration("sync.refresh_interval"),
			PushSweepInterval:   v.GetDuration("sync.push_sweep_interval"),
		},
		Queue: QueueConfig{
			Backend:    v.GetString("queue.backend"),
			Workers:    v.GetInt("queue.workers"),
			BufferSize: v.GetInt("queue.buffer_size"),
			RedisKey:   v.GetString("queue.redis_key"),
		},
		Webhook: WebhookConfig{
			MaxBodySize: v.GetInt64("webhook.max_body_size"),
			Tolerance:   v.GetDuration("webhook.tolerance"),
		},
		Providers: ProvidersConfig{
			OrderAPI: OrderAPIProviderConfig{
				Enabled:      v.GetBool("providers.order_api.enabled"),
				BaseURL:      v.GetString("providers.order_api.base_url"),
				TokenURL:     v.GetString("providers.order_api.token_url"),
				ClientID:     v.GetString("providers.order_api.client_id"),
				ClientSecret: v.GetString("providers.order_api.client_secret"),
				AccountID:    v.GetString("providers.order_api.account_id"),
				Timeout:      v.GetDuration("providers.order_api.timeout"),
			},
			ProofAPI: ProofAPIProviderConfig{
				Enabled:   v.GetBool("providers.proof_api.enabled"),
				Endpoint:  v.GetString("providers.proof_api.endpoint"),
				Token:     v.GetString("providers.proof_api.token"),
				AccountID: v.GetString("providers.proof_api.account_id"),
				Timeout:   v.GetDuration("providers.proof_api.timeout"),
			},
			Messaging: MessagingProviderConfig{
				Enabled:   v.GetBool("providers.messaging.enabled"),
				BaseURL:   v.GetString("providers.messaging.base_url"),
				APIKey:    v.GetString("providers.messaging.api_key"),
				AccountID: v.GetString("providers.messaging.account_id"),
				Timeout:   v.GetDuration("providers.messaging.timeout"),
			},
		},
		Archive: ArchiveConfig{
			Enabled:         v.GetBool("archive.enabled"),
			Bucket:          v.GetString("archive.bucket"),
			Region:          v.GetString("archive.region"),
			Endpoint:        v.GetString("archive.endpoint"),
			AccessKeyID:     v.GetString("archive.access_key_id"),
			SecretAccessKey: v.GetString("archive.secret_access_key"),
			Prefix:          v.GetString("archive.prefix"),
			UsePathStyle:    v.GetBool("archive.use_path_style"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			Profiling: ProfilingConfig{
				Enabled:           v.GetBool("telemetry.profiling.enabled"),
				ServerAddress:     v.GetString("telemetry.profiling.server_address"),
				BasicAuthUser:     v.GetString("telemetry.profiling.basic_auth_user"),
				BasicAuthPassword: v.GetString("telemetry.profiling.basic_auth_password"),
				ProfileTypes:      v.GetStringSlice("telemetry.profiling.profile_types"),
				SpanProfiles:      v.GetBool("telemetry.profiling.span_profiles"),
			},
		},
	}

	// Per-provider webhook tables, e.g. [webhook.providers.order_api]
	if err := v.UnmarshalKey("webhook.providers", &cfg.Webhook.Providers); err != nil {
		return nil, fmt.Errorf("error reading webhook.providers: %w", err)
	}
	applyWebhookSecretEnv(v, cfg)

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// webhookProviderNames are the providers whose secrets may come from the environment
var webhookProviderNames = []string{"order_api", "proof_api", "messaging"}

// applyWebhookSecretEnv picks up SYNC_WEBHOOK_PROVIDERS_<NAME>_SECRET and
// _STRATEGY, which AutomaticEnv cannot bind into a map
func applyWebhookSecretEnv(v *viper.Viper, cfg *Config) {
	if cfg.Webhook.Providers == nil {
		cfg.Webhook.Providers = make(map[string]WebhookProviderConfig)
	}
	for _, name := range webhookProviderNames {
		pc := cfg.Webhook.Providers[name]
		if s := v.GetString("webhook.providers." + name + ".secret"); s != "" {
			pc.Secret = s
		}
		if s := v.GetString("webhook.providers." + name + ".strategy"); s != "" {
			pc.Strategy = s
		}
		if pc != (WebhookProviderConfig{}) {
			cfg.Webhook.Providers[name] = pc
		}
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "syncbridge"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "syncbridge"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "syncbridge.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}

	// Sync defaults
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 50
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 100
	}
	if cfg.Sync.FullSyncPageDelay == 0 {
		cfg.Sync.FullSyncPageDelay = time.Second
	}
	if cfg.Sync.RefreshLimit == 0 {
		cfg.Sync.RefreshLimit = 500
	}
	if cfg.Sync.RevalidationLimit == 0 {
		cfg.Sync.RevalidationLimit = 200
	}
	if cfg.Sync.RunLockTTL == 0 {
		cfg.Sync.RunLockTTL = 30 * time.Minute
	}
	if cfg.Sync.WarnThreshold == 0 {
		cfg.Sync.WarnThreshold = 3
	}
	if cfg.Sync.HighThreshold == 0 {
		cfg.Sync.HighThreshold = 5
	}
	if cfg.Sync.DisableThreshold == 0 {
		cfg.Sync.DisableThreshold = 10
	}
	if cfg.Sync.DedupWindow == 0 {
		cfg.Sync.DedupWindow = 72 * time.Hour
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 3
	}
	if cfg.Sync.JobTimeout == 0 {
		cfg.Sync.JobTimeout = 30 * time.Minute
	}
	if cfg.Sync.RetryAttempts == 0 {
		cfg.Sync.RetryAttempts = 3
	}
	if cfg.Sync.RetryDelay == 0 {
		cfg.Sync.RetryDelay = time.Minute
	}
	if cfg.Sync.IncrementalInterval == 0 {
		cfg.Sync.IncrementalInterval = 10 * time.Minute
	}
	if cfg.Sync.FullInterval == 0 {
		cfg.Sync.FullInterval = 6 * time.Hour
	}
	if cfg.Sync.RefreshInterval == 0 {
		cfg.Sync.RefreshInterval = 30 * time.Minute
	}
	if cfg.Sync.PushSweepInterval == 0 {
		cfg.Sync.PushSweepInterval = 5 * time.Minute
	}

	// Queue defaults
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "memory"
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Queue.BufferSize == 0 {
		cfg.Queue.BufferSize = 1000
	}
	if cfg.Queue.RedisKey == "" {
		cfg.Queue.RedisKey = "syncbridge:webhook_tasks"
	}

	// Webhook defaults
	if cfg.Webhook.MaxBodySize == 0 {
		cfg.Webhook.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.Webhook.Tolerance == 0 {
		cfg.Webhook.Tolerance = 5 * time.Minute
	}

	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "webhooks"
	}
	if cfg.Archive.Region == "" {
		cfg.Archive.Region = "us-east-1"
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "syncbridge"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = time.Minute
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Queue.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("queue.backend=redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("queue.backend must be memory or redis, got %q", c.Queue.Backend)
	}

	if !(c.Sync.WarnThreshold < c.Sync.HighThreshold && c.Sync.HighThreshold < c.Sync.DisableThreshold) {
		return fmt.Errorf("sync thresholds must satisfy warn (%d) < high (%d) < disable (%d)",
			c.Sync.WarnThreshold, c.Sync.HighThreshold, c.Sync.DisableThreshold)
	}
	if c.Sync.BatchSize <= 0 || c.Sync.PageSize <= 0 {
		return fmt.Errorf("sync.batch_size and sync.page_size must be positive")
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive is enabled")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Driver == "sqlite" {
			return fmt.Errorf("database.driver cannot be sqlite in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, name := range c.EnabledProviders() {
			if c.Webhook.Providers[name].Secret == "" {
				return fmt.Errorf("webhook.providers.%s.secret is required in production", name)
			}
		}
		if c.HTTP.AdminToken == "" {
			return fmt.Errorf("http.admin_token is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.Profiling.Enabled && c.Telemetry.Profiling.ServerAddress == "" {
		return fmt.Errorf("telemetry.profiling.server_address is required when profiling is enabled")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// EnabledProviders returns the provider codes with remote access enabled
func (c *Config) EnabledProviders() []string {
	var names []string
	if c.Providers.OrderAPI.Enabled {
		names = append(names, "order_api")
	}
	if c.Providers.ProofAPI.Enabled {
		names = append(names, "proof_api")
	}
	if c.Providers.Messaging.Enabled {
		names = append(names, "messaging")
	}
	return names
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
