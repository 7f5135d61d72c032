package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration root, assembled once by Load()
// and handed down via constructor injection — no package-level globals.
type Config struct {
	Server ServerConfig
	Database DatabaseConfig
	Logger   LoggerConfig
	CORS     CORSConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

type RedisConfig struct {
	Host               string
	Port               string
	Password           string
	Database           int
	PoolSize           int
	MinIdleConnections int
	MaxRetries         int
	DialTimeout        time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
}

// QueueConfig configures the broker-side structures. The flat retry delay
// model has no backoff factor or cap — each task's retry_delay is applied
// as-is every attempt.
type QueueConfig struct {
	KeyPrefix         string
	DefaultMaxRetries int
	DefaultRetryDelay time.Duration
	ProcessingTTL     time.Duration
	BatchSize         int
}

// WorkerConfig configures the worker loop and pool.
type WorkerConfig struct {
	PoolSize        int
	PollInterval    time.Duration
	MaxTasksPerRun  int
	ShutdownTimeout time.Duration
	WorkerIDPrefix  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "localhost"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "taskqueue"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID"}),
		},
		Redis: RedisConfig{
			Host:               getEnv("REDIS_HOST", "localhost"),
			Port:               getEnv("REDIS_PORT", "6379"),
			Password:           getEnv("REDIS_PASSWORD", ""),
			Database:           getEnvInt("REDIS_DATABASE", 0),
			PoolSize:           getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConnections: getEnvInt("REDIS_MIN_IDLE_CONNECTIONS", 5),
			MaxRetries:         getEnvInt("REDIS_MAX_RETRIES", 3),
			DialTimeout:        getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:        getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:       getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			IdleTimeout:        getEnvDuration("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Queue: QueueConfig{
			KeyPrefix:         getEnv("QUEUE_KEY_PREFIX", "task_queue"),
			DefaultMaxRetries: getEnvInt("QUEUE_DEFAULT_MAX_RETRIES", 3),
			DefaultRetryDelay: getEnvDuration("QUEUE_DEFAULT_RETRY_DELAY", 60*time.Second),
			ProcessingTTL:     getEnvDuration("QUEUE_PROCESSING_TTL", 1*time.Hour),
			BatchSize:         getEnvInt("QUEUE_BATCH_SIZE", 100),
		},
		Worker: WorkerConfig{
			PoolSize:        getEnvInt("WORKER_POOL_SIZE", 5),
			PollInterval:    getEnvDuration("WORKER_POLL_INTERVAL", 1*time.Second),
			MaxTasksPerRun:  getEnvInt("WORKER_MAX_TASKS_PER_RUN", 0),
			ShutdownTimeout: getEnvDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),
			WorkerIDPrefix:  getEnv("WORKER_ID_PREFIX", "worker"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("Redis host is required")
	}

	if c.Redis.Port == "" {
		return fmt.Errorf("Redis port is required")
	}

	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("Redis pool size must be positive")
	}

	if c.Redis.MinIdleConnections < 0 {
		return fmt.Errorf("Redis min idle connections must be non-negative")
	}

	if c.Redis.MaxRetries < 0 {
		return fmt.Errorf("Redis max retries must be non-negative")
	}

	if c.Queue.KeyPrefix == "" {
		return fmt.Errorf("queue key prefix is required")
	}

	if c.Queue.DefaultMaxRetries < 0 {
		return fmt.Errorf("queue default max retries must be non-negative")
	}

	if c.Queue.DefaultRetryDelay < 0 {
		return fmt.Errorf("queue default retry delay must be non-negative")
	}

	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue batch size must be positive")
	}

	if c.Worker.PoolSize <= 0 {
		return fmt.Errorf("worker pool size must be positive")
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker poll interval must be positive")
	}

	if c.Worker.MaxTasksPerRun < 0 {
		return fmt.Errorf("worker max tasks per run must be non-negative")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown timeout must be positive")
	}

	if c.Worker.WorkerIDPrefix == "" {
		return fmt.Errorf("worker ID prefix is required")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Server.Env) == "production"
}

func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Server.Env) == "development"
}

func (c *Config) IsTest() bool {
	return strings.ToLower(c.Server.Env) == "test"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		result := strings.Split(value, ",")
		for i, v := range result {
			result[i] = strings.TrimSpace(v)
		}
		return result
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

