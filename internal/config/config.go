// Package config loads and validates tracker configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/JakeFAU/curation-tracker/internal/curator"
	"github.com/JakeFAU/curation-tracker/internal/storage"
	"github.com/JakeFAU/curation-tracker/internal/tracking"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig                     `mapstructure:"logging"`
	API       APIConfig                         `mapstructure:"api"`
	Tracking  TrackingConfig                    `mapstructure:"tracking"`
	Resources map[string]curator.ResourceConfig `mapstructure:"resources" validate:"required,min=1,dive"`
	Storage   StorageConfig                     `mapstructure:"storage"`
	History   HistoryConfig                     `mapstructure:"history"`
	Notify    NotifyConfig                      `mapstructure:"notify"`
	Hub       HubConfig                         `mapstructure:"hub"`
	Server    ServerConfig                      `mapstructure:"server"`
	DB        DBConfig                          `mapstructure:"db"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// APIConfig points at the curation backend.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	UserAgent string        `mapstructure:"user_agent"`

	// RequestsPerSecond paces backend calls; zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=0"`
}

// TrackingConfig governs descriptor persistence and polling cadence.
type TrackingConfig struct {
	Namespace   string           `mapstructure:"namespace" validate:"required"`
	TTL         time.Duration    `mapstructure:"ttl" validate:"gt=0"`
	PollTimeout time.Duration    `mapstructure:"poll_timeout" validate:"gt=0"`
	Single      tracking.Cadence `mapstructure:"single"`
	Batch       tracking.Cadence `mapstructure:"batch"`
}

// Cadences converts the single/batch schedules for the tracker.
func (c TrackingConfig) Cadences() tracking.Cadences {
	return tracking.Cadences{Single: c.Single, Batch: c.Batch}
}

// StorageConfig selects the durable key-value backend for descriptors.
type StorageConfig struct {
	Backend  string              `mapstructure:"backend" validate:"oneof=memory local redis postgres gcs"`
	Local    LocalStorageConfig  `mapstructure:"local"`
	Redis    RedisStorageConfig  `mapstructure:"redis"`
	Postgres PostgresTableConfig `mapstructure:"postgres"`
	GCS      GCSStorageConfig    `mapstructure:"gcs"`
}

// LocalStorageConfig configures the filesystem backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// RedisStorageConfig configures the Redis backend.
type RedisStorageConfig struct {
	Addr     string        `mapstructure:"addr"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	Expiry   time.Duration `mapstructure:"expiry" validate:"gte=0"`
}

// PostgresTableConfig names the table a Postgres-backed component uses.
type PostgresTableConfig struct {
	Table string `mapstructure:"table"`
}

// GCSStorageConfig configures the Cloud Storage backend.
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// HistoryConfig selects where session outcomes are recorded.
type HistoryConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=none memory postgres"`
	Table   string `mapstructure:"table"`
}

// NotifyConfig enables the notification sinks.
type NotifyConfig struct {
	Console      bool         `mapstructure:"console"`
	ShowProgress bool         `mapstructure:"show_progress"`
	Log          bool         `mapstructure:"log"`
	PubSub       PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ProjectID       string `mapstructure:"project_id"`
	TopicName       string `mapstructure:"topic_name"`
	IncludeProgress bool   `mapstructure:"include_progress"`
}

// HubConfig tunes event batching.
type HubConfig struct {
	BufferSize     int           `mapstructure:"buffer_size" validate:"gte=0"`
	MaxBatchEvents int           `mapstructure:"max_batch_events" validate:"gte=0"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait" validate:"gte=0"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout" validate:"gte=0"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"gt=0,lt=65536"`
	APIKey          string        `mapstructure:"api_key"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns" validate:"gte=0"`
	MinConns        int32         `mapstructure:"min_conns" validate:"gte=0"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" validate:"gte=0"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("api.base_url", "http://localhost:8000/api/")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.user_agent", "curation-tracker/0.1")
	v.SetDefault("api.requests_per_second", 0)
	v.SetDefault("api.burst", 1)
	v.SetDefault("tracking.namespace", tracking.DefaultNamespace)
	v.SetDefault("tracking.ttl", tracking.DefaultTTL)
	v.SetDefault("tracking.poll_timeout", tracking.DefaultPollTimeout)
	v.SetDefault("tracking.single.period", tracking.DefaultSingleCadence.Period)
	v.SetDefault("tracking.single.max_attempts", tracking.DefaultSingleCadence.MaxAttempts)
	v.SetDefault("tracking.batch.period", tracking.DefaultBatchCadence.Period)
	v.SetDefault("tracking.batch.max_attempts", tracking.DefaultBatchCadence.MaxAttempts)
	for kind, res := range curator.DefaultResources() {
		prefix := "resources." + kind + "."
		v.SetDefault(prefix+"noun", res.Noun)
		v.SetDefault(prefix+"submit_path", res.SubmitPath)
		v.SetDefault(prefix+"ids_field", res.IDsField)
		v.SetDefault(prefix+"stats_path", res.StatsPath)
		v.SetDefault(prefix+"count_field", res.CountField)
	}
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.base_dir", ".curator")
	v.SetDefault("storage.redis.addr", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.expiry", "24h")
	v.SetDefault("storage.postgres.table", "tracking_slots")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "tracking")
	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.table", "tracking_runs")
	v.SetDefault("notify.console", true)
	v.SetDefault("notify.show_progress", true)
	v.SetDefault("notify.log", true)
	v.SetDefault("notify.pubsub.enabled", false)
	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic_name", "")
	v.SetDefault("notify.pubsub.include_progress", false)
	v.SetDefault("hub.buffer_size", 256)
	v.SetDefault("hub.max_batch_events", 32)
	v.SetDefault("hub.max_batch_wait", "100ms")
	v.SetDefault("hub.sink_timeout", "5s")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for kind := range c.Resources {
		if err := storage.ValidateKey(c.Tracking.Namespace + "." + kind); err != nil {
			return fmt.Errorf("resources.%s: %w", kind, err)
		}
	}
	if err := c.Tracking.Single.Validate(); err != nil {
		return fmt.Errorf("tracking.single: %w", err)
	}
	if err := c.Tracking.Batch.Validate(); err != nil {
		return fmt.Errorf("tracking.batch: %w", err)
	}
	switch c.Storage.Backend {
	case "local":
		if strings.TrimSpace(c.Storage.Local.BaseDir) == "" {
			return errors.New("storage.local.base_dir must be set for the local backend")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr must be set for the redis backend")
		}
		if exp := c.Storage.Redis.Expiry; exp > 0 && exp < c.Tracking.TTL {
			return fmt.Errorf("storage.redis.expiry %s must not be shorter than tracking.ttl %s", exp, c.Tracking.TTL)
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return errors.New("storage.gcs.bucket must be set for the gcs backend")
		}
	}
	if c.NeedsDatabase() && c.DB.DSN == "" {
		return errors.New("db.dsn must be set when storage or history uses postgres")
	}
	if c.DB.MinConns > c.DB.MaxConns && c.DB.MaxConns > 0 {
		return errors.New("db.min_conns must not exceed db.max_conns")
	}
	if c.Notify.PubSub.Enabled && (c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.TopicName == "") {
		return errors.New("notify.pubsub.project_id and topic_name must be set when pubsub is enabled")
	}
	return nil
}

// NeedsDatabase reports whether any component is backed by Postgres.
func (c Config) NeedsDatabase() bool {
	return c.Storage.Backend == "postgres" || c.History.Backend == "postgres"
}

// Kinds returns the configured resource kinds in a stable order.
func (c Config) Kinds() []string {
	kinds := make([]string, 0, len(c.Resources))
	for kind := range c.Resources {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}
