package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// StoreDriver selects the persistent store backend: "postgres" or "memory".
	// CounterDriver selects the shared counter backend: "redis" or "memory".
	// Memory drivers are for single-node deployments and tests.
	StoreDriver   string
	CounterDriver string

	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Search   SearchConfig
	Queue    QueueConfig
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds the shared counter store connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NATSConfig holds NATS Streaming connection settings
type NATSConfig struct {
	URL       string
	ClusterID string
	ClientID  string
}

// SearchConfig holds Elasticsearch settings for the showing catalog
type SearchConfig struct {
	Addresses []string
	Index     string
}

// QueueConfig holds the admission and booking tuning knobs
type QueueConfig struct {
	// BaseCapacity is the default number of concurrent active sessions per
	// showing, used when the showing does not define its own limit.
	BaseCapacity int

	// OverbookingRatio scales the base capacity to absorb abandonment churn.
	OverbookingRatio float64

	// TokenValidity bounds the total lifetime of a queue token.
	TokenValidity time.Duration

	// ActivationHold is how long an activated token may go unused before
	// it is reclaimed.
	ActivationHold time.Duration

	// BookingHold is how long a PENDING booking keeps its seats locked.
	BookingHold time.Duration

	// HeartbeatTTL is the liveness window; a session with no heartbeat for
	// this long is considered abandoned.
	HeartbeatTTL time.Duration

	// SweepInterval is the period of the background sweep.
	SweepInterval time.Duration

	// ServiceTimePerUser feeds the estimated wait: position times this value.
	ServiceTimePerUser time.Duration

	// AuditRetention is how long terminal tokens are kept before purging.
	AuditRetention time.Duration

	// ConflictRetries is the optimistic locking retry budget per request.
	ConflictRetries int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StoreDriver:   getEnv("STORE_DRIVER", "postgres"),
		CounterDriver: getEnv("COUNTER_DRIVER", "redis"),

		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "bilet"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "bilet"),
			ClientID:  getEnv("NATS_CLIENT_ID", "bilet-api"),
		},
		Search: SearchConfig{
			Addresses: []string{getEnv("ELASTICSEARCH_URL", "http://localhost:9200")},
			Index:     getEnv("ELASTICSEARCH_INDEX", "showings"),
		},
		Queue: QueueConfig{
			BaseCapacity:       getEnvInt("QUEUE_BASE_CAPACITY", 100),
			OverbookingRatio:   getEnvFloat("QUEUE_OVERBOOKING_RATIO", 1.2),
			TokenValidity:      getEnvDuration("QUEUE_TOKEN_VALIDITY", 24*time.Hour),
			ActivationHold:     getEnvDuration("QUEUE_ACTIVATION_HOLD", 10*time.Minute),
			BookingHold:        getEnvDuration("BOOKING_HOLD", 15*time.Minute),
			HeartbeatTTL:       getEnvDuration("QUEUE_HEARTBEAT_TTL", 2*time.Minute),
			SweepInterval:      getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
			ServiceTimePerUser: getEnvDuration("QUEUE_SERVICE_TIME", 30*time.Second),
			AuditRetention:     getEnvDuration("QUEUE_AUDIT_RETENTION", 7*24*time.Hour),
			ConflictRetries:    getEnvInt("BOOKING_CONFLICT_RETRIES", 3),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
