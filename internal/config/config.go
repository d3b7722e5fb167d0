package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv   string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	Worker   WorkerConfig
	Tracing  TracingConfig
}

type ServerConfig struct {
	Port        string        `mapstructure:"SERVER_PORT"`
	Timeout     time.Duration `mapstructure:"SERVER_TIMEOUT"`
	CORSOrigins []string      `mapstructure:"SERVER_CORS_ORIGINS"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"DB_DRIVER"`
	DSN             string `mapstructure:"DB_DSN"`
	Host            string `mapstructure:"DB_HOST"`
	Port            string `mapstructure:"DB_PORT"`
	User            string `mapstructure:"DB_USER"`
	Password        string `mapstructure:"DB_PASSWORD"`
	Name            string `mapstructure:"DB_NAME"`
	SSLMode         string `mapstructure:"DB_SSL_MODE"`
	MaxOpenConns    int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `mapstructure:"DB_CONN_MAX_LIFETIME"`
	ReadReplicas    []ReplicaConfig
}

type ReplicaConfig struct {
	DSN    string
	Weight int
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"REDIS_ENABLED"`
	Host     string `mapstructure:"REDIS_HOST"`
	Port     string `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type LedgerConfig struct {
	OperationTimeout     time.Duration `mapstructure:"LEDGER_OPERATION_TIMEOUT"`
	MaxRetries           int           `mapstructure:"LEDGER_MAX_RETRIES"`
	RetryInitialInterval time.Duration `mapstructure:"LEDGER_RETRY_INITIAL_INTERVAL"`
}

type WorkerConfig struct {
	Count                int           `mapstructure:"WORKER_COUNT"`
	QueueSize            int           `mapstructure:"WORKER_QUEUE_SIZE"`
	MaxAttempts          int           `mapstructure:"WORKER_MAX_ATTEMPTS"`
	RetryInitialInterval time.Duration `mapstructure:"WORKER_RETRY_INITIAL_INTERVAL"`
	DeadLetterLimit      int           `mapstructure:"WORKER_DEAD_LETTER_LIMIT"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"TRACING_ENABLED"`
	Endpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `mapstructure:"SERVICE_NAME"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_TIMEOUT", "30s")
	v.SetDefault("SERVER_CORS_ORIGINS", "*")

	v.SetDefault("DB_DRIVER", "sqlite3")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "cashback")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "cashback")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 300)
	v.SetDefault("DB_READ_REPLICAS", "")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LEDGER_OPERATION_TIMEOUT", "5s")
	v.SetDefault("LEDGER_MAX_RETRIES", 5)
	v.SetDefault("LEDGER_RETRY_INITIAL_INTERVAL", "20ms")

	v.SetDefault("WORKER_COUNT", 4)
	v.SetDefault("WORKER_QUEUE_SIZE", 256)
	v.SetDefault("WORKER_MAX_ATTEMPTS", 3)
	v.SetDefault("WORKER_RETRY_INITIAL_INTERVAL", "200ms")
	v.SetDefault("WORKER_DEAD_LETTER_LIMIT", 100)

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("SERVICE_NAME", "cashback")
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	var cfg Config

	cfg.AppEnv = v.GetString("APP_ENV")
	cfg.LogLevel = v.GetString("LOG_LEVEL")
	cfg.Server.Port = v.GetString("SERVER_PORT")
	cfg.Server.Timeout = v.GetDuration("SERVER_TIMEOUT")
	cfg.Server.CORSOrigins = splitList(v.GetString("SERVER_CORS_ORIGINS"))

	cfg.Database.Driver = v.GetString("DB_DRIVER")
	cfg.Database.DSN = v.GetString("DB_DSN")
	cfg.Database.Host = v.GetString("DB_HOST")
	cfg.Database.Port = v.GetString("DB_PORT")
	cfg.Database.User = v.GetString("DB_USER")
	cfg.Database.Password = v.GetString("DB_PASSWORD")
	cfg.Database.Name = v.GetString("DB_NAME")
	cfg.Database.SSLMode = v.GetString("DB_SSL_MODE")
	cfg.Database.MaxOpenConns = v.GetInt("DB_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DB_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetInt("DB_CONN_MAX_LIFETIME")
	cfg.Database.ReadReplicas = parseReplicas(v.GetString("DB_READ_REPLICAS"))

	cfg.Redis.Enabled = v.GetBool("REDIS_ENABLED")
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	cfg.Ledger.OperationTimeout = v.GetDuration("LEDGER_OPERATION_TIMEOUT")
	cfg.Ledger.MaxRetries = v.GetInt("LEDGER_MAX_RETRIES")
	cfg.Ledger.RetryInitialInterval = v.GetDuration("LEDGER_RETRY_INITIAL_INTERVAL")

	cfg.Worker.Count = v.GetInt("WORKER_COUNT")
	cfg.Worker.QueueSize = v.GetInt("WORKER_QUEUE_SIZE")
	cfg.Worker.MaxAttempts = v.GetInt("WORKER_MAX_ATTEMPTS")
	cfg.Worker.RetryInitialInterval = v.GetDuration("WORKER_RETRY_INITIAL_INTERVAL")
	cfg.Worker.DeadLetterLimit = v.GetInt("WORKER_DEAD_LETTER_LIMIT")

	cfg.Tracing.Enabled = v.GetBool("TRACING_ENABLED")
	cfg.Tracing.Endpoint = v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.Tracing.ServiceName = v.GetString("SERVICE_NAME")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseReplicas accepts "dsn" or "dsn|weight" entries separated by ";".
// DSNs may contain commas, so a semicolon is the list separator.
func parseReplicas(raw string) []ReplicaConfig {
	var replicas []ReplicaConfig
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		replica := ReplicaConfig{DSN: entry, Weight: 1}
		if i := strings.LastIndex(entry, "|"); i > 0 {
			var weight int
			if _, err := fmt.Sscanf(entry[i+1:], "%d", &weight); err == nil && weight >= 0 {
				replica.DSN = entry[:i]
				replica.Weight = weight
			}
		}
		replicas = append(replicas, replica)
	}
	return replicas
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite3", "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
	}
	if c.Ledger.OperationTimeout <= 0 {
		return fmt.Errorf("LEDGER_OPERATION_TIMEOUT must be positive")
	}
	if c.Ledger.MaxRetries < 0 {
		return fmt.Errorf("LEDGER_MAX_RETRIES must not be negative")
	}
	if c.Ledger.RetryInitialInterval <= 0 {
		return fmt.Errorf("LEDGER_RETRY_INITIAL_INTERVAL must be positive")
	}
	if c.Worker.Count <= 0 || c.Worker.QueueSize <= 0 {
		return fmt.Errorf("WORKER_COUNT and WORKER_QUEUE_SIZE must be positive")
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("WORKER_MAX_ATTEMPTS must be positive")
	}
	if c.Worker.RetryInitialInterval <= 0 || c.Worker.DeadLetterLimit <= 0 {
		return fmt.Errorf("WORKER_RETRY_INITIAL_INTERVAL and WORKER_DEAD_LETTER_LIMIT must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// DataSourceName returns DB_DSN or, when empty, a DSN built for the
// configured driver.
func (c DatabaseConfig) DataSourceName() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch strings.ToLower(c.Driver) {
	case "postgres", "postgresql":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	default:
		return "file:cashback.db?_busy_timeout=5000&_txlock=immediate"
	}
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
