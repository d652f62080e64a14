package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Sla          SlaConfig
	Notification NotificationConfig
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

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines how callers are authenticated. JWTs are issued by the
// platform auth service; this service only verifies them. ServiceTokenHash
// is the bcrypt hash of the shared token the ticket CRUD subsystem presents
// on lifecycle callbacks.
type AuthConfig struct {
	JWTSecret        string
	ServiceTokenHash string
}

// SlaConfig tunes the compliance engine. The sweep interval bounds breach
// flag staleness: a flag is persisted at most SweepIntervalSeconds after
// its deadline passes (reads that reconcile lazily see it immediately).
type SlaConfig struct {
	SweepIntervalSeconds    int
	SweepBatchSize          int
	ResponseAtRiskMinutes   int
	ResolutionAtRiskMinutes int
	AtRiskListLimit         int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	sweepInterval := getEnvAsInt("SLA_SWEEP_INTERVAL_SECONDS", 30)
	if sweepInterval <= 0 || sweepInterval > 60 {
		return nil, fmt.Errorf("SLA_SWEEP_INTERVAL_SECONDS must be in (0,60], got %d", sweepInterval)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sla-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:        getEnv("AUTH_JWT_SECRET", "dev-secret"),
			ServiceTokenHash: os.Getenv("AUTH_SERVICE_TOKEN_HASH"),
		},
		Sla: SlaConfig{
			SweepIntervalSeconds:    sweepInterval,
			SweepBatchSize:          getEnvAsInt("SLA_SWEEP_BATCH_SIZE", 500),
			ResponseAtRiskMinutes:   getEnvAsInt("SLA_RESPONSE_AT_RISK_MINUTES", 30),
			ResolutionAtRiskMinutes: getEnvAsInt("SLA_RESOLUTION_AT_RISK_MINUTES", 60),
			AtRiskListLimit:         getEnvAsInt("SLA_AT_RISK_LIST_LIMIT", 50),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
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

// SweepInterval returns the reconciler sweep period.
func (s SlaConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// ResponseAtRiskWindow returns the default response lookahead.
func (s SlaConfig) ResponseAtRiskWindow() time.Duration {
	return time.Duration(s.ResponseAtRiskMinutes) * time.Minute
}

// ResolutionAtRiskWindow returns the default resolution lookahead.
func (s SlaConfig) ResolutionAtRiskWindow() time.Duration {
	return time.Duration(s.ResolutionAtRiskMinutes) * time.Minute
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
