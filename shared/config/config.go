package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// DefaultLinkSecret signs share links in development only
const DefaultLinkSecret = "dev-link-secret-change-me"

var (
	ErrWeakLinkSecret   = errors.New("LINK_SECRET must be set to a non-default value in production")
	ErrInsecureSessions = errors.New("SESSION_SECURE must be true in production")
)

// AppConfig is the runtime configuration shared by the services
type AppConfig struct {
	Port              string
	NotifierPort      string
	RetryConsumerPort string
	Environment       string
	LogLevel    string
	LogFormat   string

	SessionCookieName string
	SessionTTL        time.Duration
	SessionSecure     bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBroker string
	KafkaTopic  string
	KafkaGroup  string

	AWSRegion string
	MailFrom  string

	LinkSecret    string
	LinkTTL       time.Duration
	PublicBaseURL string

	CORSOrigins []string

	APIKeyCacheTTL time.Duration
	PinMaxAttempts int
	PinWindow      time.Duration
	BcryptCost     int

	RetryMaxAttempts int
	RetryBatchSize   int
	RetryInterval    time.Duration
}

// Load reads .env (when present) and the process environment
func Load() *AppConfig {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	return &AppConfig{
		Port:              getEnv("PORT", "8080"),
		NotifierPort:      getEnv("NOTIFIER_PORT", "8081"),
		RetryConsumerPort: getEnv("RETRY_CONSUMER_PORT", "8085"),
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),

		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "bizworx_session"),
		SessionTTL:        getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		SessionSecure:     getEnvBool("SESSION_SECURE", false),

		RedisAddr:     getEnv("REDIS_HOST", "localhost") + ":" + getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		KafkaBroker: getEnv("KAFKA_BROKER", ""),
		KafkaTopic:  getEnv("KAFKA_TOPIC", "bizworx-activity"),
		KafkaGroup:  getEnv("KAFKA_GROUP", "bizworx-notifier"),

		AWSRegion: getEnv("AWS_REGION", ""),
		MailFrom:  getEnv("MAIL_FROM", "no-reply@bizworx.app"),

		LinkSecret:    getEnv("LINK_SECRET", DefaultLinkSecret),
		LinkTTL:       getEnvDuration("LINK_TTL", 30*24*time.Hour),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:5173"), "/"),

		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),

		APIKeyCacheTTL: getEnvDuration("API_KEY_CACHE_TTL", 30*time.Second),
		PinMaxAttempts: getEnvInt("PIN_MAX_ATTEMPTS", 5),
		PinWindow:      getEnvDuration("PIN_WINDOW", 15*time.Minute),
		BcryptCost:     getEnvInt("BCRYPT_COST", 12),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 8),
		RetryBatchSize:   getEnvInt("RETRY_BATCH_SIZE", 100),
		RetryInterval:    getEnvDuration("RETRY_INTERVAL", 30*time.Second),
	}
}

// IsProduction reports whether the service runs with production defaults
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Validate rejects settings that are only acceptable outside production
func (c *AppConfig) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	if c.LinkSecret == "" || c.LinkSecret == DefaultLinkSecret {
		return ErrWeakLinkSecret
	}
	if !c.SessionSecure {
		return ErrInsecureSessions
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
