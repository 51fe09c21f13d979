package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Directory DirectorySettings `mapstructure:"directory"`
	Sync      SyncSettings      `mapstructure:"sync"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name          string   `mapstructure:"name"`
	Env           string   `mapstructure:"env"`
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port"`
	AdminAPIToken string   `mapstructure:"admin_api_token"`
	CORSOrigins   []string `mapstructure:"cors_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	LockPrefix string `mapstructure:"lock_prefix"`
}

// KafkaSettings configures the Kafka producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// DirectorySettings configures the external directory (HEMIS) client.
type DirectorySettings struct {
	BaseURL      string        `mapstructure:"base_url"`
	Token        string        `mapstructure:"token"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PageSize     int           `mapstructure:"page_size"`
	PageDelay    time.Duration `mapstructure:"page_delay"`
	FetchRetries int           `mapstructure:"fetch_retries"`
}

// SyncSettings configures batch reconciliation and provisioning defaults.
type SyncSettings struct {
	DefaultRole            string        `mapstructure:"default_role"`
	FounderRole            string        `mapstructure:"founder_role"`
	PlaceholderDomain      string        `mapstructure:"placeholder_domain"`
	RecordRetries          int           `mapstructure:"record_retries"`
	RecordRetryBackoff     time.Duration `mapstructure:"record_retry_backoff"`
	DailyHourUTC           int           `mapstructure:"daily_hour_utc"`
	ScheduleEnabled        bool          `mapstructure:"schedule_enabled"`
	RunLockTTL             time.Duration `mapstructure:"run_lock_ttl"`
	UsernameSuffixAttempts int           `mapstructure:"username_suffix_attempts"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IAM")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.admin_api_token",
		"app.cors_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.lock_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"directory.base_url",
		"directory.token",
		"directory.timeout",
		"directory.page_size",
		"directory.page_delay",
		"directory.fetch_retries",
		"sync.default_role",
		"sync.founder_role",
		"sync.placeholder_domain",
		"sync.record_retries",
		"sync.record_retry_backoff",
		"sync.daily_hour_utc",
		"sync.schedule_enabled",
		"sync.run_lock_ttl",
		"sync.username_suffix_attempts",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "campus-iam")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.admin_api_token", "")
	v.SetDefault("app.cors_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "iam")
	v.SetDefault("postgres.password", "iam_password")
	v.SetDefault("postgres.database", "iam")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.lock_prefix", "iam:lock")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "iam")
	v.SetDefault("kafka.async", true)

	v.SetDefault("directory.base_url", "")
	v.SetDefault("directory.token", "")
	v.SetDefault("directory.timeout", "30s")
	v.SetDefault("directory.page_size", 200)
	v.SetDefault("directory.page_delay", "500ms")
	v.SetDefault("directory.fetch_retries", 5)

	v.SetDefault("sync.default_role", "user")
	v.SetDefault("sync.founder_role", "super-admin")
	v.SetDefault("sync.placeholder_domain", "sync.invalid")
	v.SetDefault("sync.record_retries", 3)
	v.SetDefault("sync.record_retry_backoff", "200ms")
	v.SetDefault("sync.daily_hour_utc", 1)
	v.SetDefault("sync.schedule_enabled", true)
	v.SetDefault("sync.run_lock_ttl", "2h")
	v.SetDefault("sync.username_suffix_attempts", 5)

	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "campus-iam")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "IAM_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
