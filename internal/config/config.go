package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Event backends.
const (
	EventsNone  = "none"
	EventsRedis = "redis"
	EventsAMQP  = "amqp"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Pagination PaginationConfig
	Storage    StorageConfig
	Postgres   PostgresConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	RabbitMQ   RabbitMQConfig
	Events     EventsConfig
	Logger     LoggerConfig
	Auth       AuthConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PaginationConfig controls list endpoints.
type PaginationConfig struct {
	TotalOnPage int
}

// StorageConfig selects the repository backend.
type StorageConfig struct {
	Driver        string
	RunMigrations bool
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig holds the database file location.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RabbitMQConfig holds broker connection values.
type RabbitMQConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	VHost      string
	MaxRetries int
}

// EventsConfig selects where user events are relayed.
type EventsConfig struct {
	Backend       string
	ChannelPrefix string
	Exchange      string
	BufferSize    int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string
	Encoding string
	Service  string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	Enabled               bool
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ads-users"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Pagination: PaginationConfig{
			TotalOnPage: getEnvAsInt("TOTAL_ON_PAGE", 10),
		},
		Storage: StorageConfig{
			Driver:        getEnv("STORAGE_DRIVER", DriverPostgres),
			RunMigrations: getEnvAsBool("STORAGE_RUN_MIGRATIONS", true),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "var/ads.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		RabbitMQ: RabbitMQConfig{
			Host:       getEnv("RABBITMQ_HOST", "127.0.0.1"),
			Port:       getEnvAsInt("RABBITMQ_PORT", 5672),
			User:       getEnv("RABBITMQ_USER", "guest"),
			Password:   getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:      getEnv("RABBITMQ_VHOST", "/"),
			MaxRetries: getEnvAsInt("RABBITMQ_MAX_RETRIES", 5),
		},
		Events: EventsConfig{
			Backend:       getEnv("EVENTS_BACKEND", EventsNone),
			ChannelPrefix: getEnv("EVENTS_CHANNEL_PREFIX", "ads.users"),
			Exchange:      getEnv("EVENTS_EXCHANGE", "users_topic"),
			BufferSize:    getEnvAsInt("EVENTS_BUFFER_SIZE", 256),
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Auth: AuthConfig{
			Enabled:               getEnvAsBool("AUTH_ENABLED", true),
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
	}

	cfg.Logger.Service = cfg.App.Name

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pagination.TotalOnPage <= 0 {
		return fmt.Errorf("invalid TOTAL_ON_PAGE: %d", c.Pagination.TotalOnPage)
	}
	switch c.Storage.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER: %q", c.Storage.Driver)
	}
	switch c.Events.Backend {
	case EventsNone, EventsRedis, EventsAMQP:
	default:
		return fmt.Errorf("invalid EVENTS_BACKEND: %q", c.Events.Backend)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// URL builds the AMQP connection string.
func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", r.User, r.Password, r.Host, r.Port, r.VHost)
}

// AccessTokenTTL returns the token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
