package config

import (
	"fmt"
	"time"

	"threadcast-backend/pkg/env"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Broker   BrokerConfig
	MinIO    MinIOConfig
	JWT      JWTConfig
	Log      LogConfig
	Dispatch DispatchConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Environment    string // development, staging, production
	ServiceName    string
	AllowedOrigins []string
}

// StoreConfig selects the persistence driver
type StoreConfig struct {
	Driver string // cockroach, memory
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL  string
	Name string
}

// BrokerConfig selects the realtime broker
type BrokerConfig struct {
	Driver string // redis, nats, memory
}

// MinIOConfig holds MinIO configuration
type MinIOConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	URLExpiry time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string
	Audience string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// DispatchConfig controls event fan-out
type DispatchConfig struct {
	Async   bool
	Timeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           env.GetInt("PORT", 8082),
			Environment:    env.GetString("ENV", "development"),
			ServiceName:    env.GetString("SERVICE_NAME", "chat-service"),
			AllowedOrigins: env.GetStringSlice("CORS_ALLOWED_ORIGINS", nil),
		},
		Store: StoreConfig{
			Driver: env.GetString("STORE_DRIVER", "cockroach"),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "threadcast"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  env.GetBool("REDIS_ENABLED", true),
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		NATS: NATSConfig{
			URL:  env.GetString("NATS_URL", "nats://localhost:4222"),
			Name: env.GetString("NATS_CLIENT_NAME", "threadcast-chat"),
		},
		Broker: BrokerConfig{
			Driver: env.GetString("BROKER_DRIVER", "redis"),
		},
		MinIO: MinIOConfig{
			Enabled:   env.GetBool("MINIO_ENABLED", false),
			Endpoint:  env.GetString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetString("MINIO_BUCKET", "threadcast-media"),
			URLExpiry: env.GetDuration("MINIO_URL_EXPIRY", 15*time.Minute),
		},
		JWT: JWTConfig{
			Secret:   env.GetStringFromFile("JWT_SECRET", ""),
			Audience: env.GetString("JWT_AUDIENCE", "threadcast-api"),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/app.log"),
		},
		Dispatch: DispatchConfig{
			Async:   env.GetBool("DISPATCH_ASYNC", true),
			Timeout: env.GetDuration("DISPATCH_TIMEOUT", 5*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Server.Environment == "production" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}

	switch c.Store.Driver {
	case "cockroach", "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Broker.Driver {
	case "redis", "nats", "memory":
	default:
		return fmt.Errorf("unsupported BROKER_DRIVER %q", c.Broker.Driver)
	}

	if c.Broker.Driver == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("BROKER_DRIVER=redis requires REDIS_ENABLED")
	}

	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("DISPATCH_TIMEOUT must be positive")
	}

	return nil
}
