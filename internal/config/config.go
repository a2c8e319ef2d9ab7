package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	Database  DatabaseConfig
	RedisURL  string
	Casdoor   CasdoorConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig

	CORSAllowedOrigins []string
}

type DatabaseConfig struct {
	URL          string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns DATABASE_URL when set, otherwise builds a keyword/value DSN.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Cert         string
	Organization string
	Application  string
}

type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// Enabled reports whether events go to kafka instead of the in-process bus.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type SchedulerConfig struct {
	Enabled          bool
	ExpireSpec       string
	GradePendingSpec string
	BatchSize        int
	ExpiryGrace      time.Duration
}

// LoadConfig reads .env (when present) and the environment. Malformed values
// are reported before anything connects.
func LoadConfig() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	l := &loader{}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    l.level("LOG_LEVEL", slog.LevelInfo),
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "quiz_grading"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: l.int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: l.int("DB_MAX_IDLE_CONNS", 5),
		},
		RedisURL: os.Getenv("REDIS_URL"),
		Casdoor: CasdoorConfig{
			Endpoint:     os.Getenv("CASDOOR_ENDPOINT"),
			ClientID:     os.Getenv("CASDOOR_CLIENT_ID"),
			ClientSecret: os.Getenv("CASDOOR_CLIENT_SECRET"),
			Cert:         os.Getenv("CASDOOR_CERT"),
			Organization: os.Getenv("CASDOOR_ORGANIZATION"),
			Application:  os.Getenv("CASDOOR_APPLICATION"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(os.Getenv("KAFKA_BROKERS")),
			TopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "quiz"),
		},
		Scheduler: SchedulerConfig{
			Enabled:          l.bool("SCHEDULER_ENABLED", true),
			ExpireSpec:       getEnv("SCHEDULER_EXPIRE_SPEC", "@every 1m"),
			GradePendingSpec: getEnv("SCHEDULER_GRADE_PENDING_SPEC", "@every 5m"),
			BatchSize:        l.int("SCHEDULER_BATCH_SIZE", 100),
			ExpiryGrace:      l.duration("ATTEMPT_EXPIRY_GRACE", 30*time.Second),
		},
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	if l.err != nil {
		return nil, l.err
	}
	if cfg.Scheduler.BatchSize <= 0 {
		return nil, fmt.Errorf("SCHEDULER_BATCH_SIZE must be positive, got %d", cfg.Scheduler.BatchSize)
	}
	if cfg.Scheduler.ExpiryGrace < 0 {
		return nil, fmt.Errorf("ATTEMPT_EXPIRY_GRACE must not be negative")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loader keeps the first parse error so LoadConfig can report it once.
type loader struct {
	err error
}

func (l *loader) fail(key, value string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (l *loader) int(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		l.fail(key, raw, err)
		return defaultValue
	}
	return v
}

func (l *loader) bool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		l.fail(key, raw, err)
		return defaultValue
	}
	return v
}

func (l *loader) duration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		l.fail(key, raw, err)
		return defaultValue
	}
	return v
}

func (l *loader) level(key string, defaultValue slog.Level) slog.Level {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		l.fail(key, raw, err)
		return defaultValue
	}
	return lvl
}
