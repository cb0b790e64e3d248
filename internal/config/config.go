package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	// Message bus channels
	BusBackend      string
	InboundChannel  string
	ContactChannel  string
	OperatorChannel string

	// Form definition source
	FormSource string
	FormName   string
	FormFile   string
	KeyPrefix  string

	// Lead persistence
	LeadStore   string
	DatabaseURL string
	LeadsTable  string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	MaxChainLength     int
	ListenRestartDelay time.Duration
	ContactLockTTL     time.Duration
	DistributedLocks   bool
	DedupeTTL          time.Duration
	ShutdownTimeout    time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		BusBackend:      strings.ToLower(strings.TrimSpace(getEnv("BUS_BACKEND", "redis"))),
		InboundChannel:  getEnv("INBOUND_CHANNEL", "avito:inbound"),
		ContactChannel:  getEnv("CONTACT_CHANNEL", "avito:outbound"),
		OperatorChannel: getEnv("OPERATOR_CHANNEL", "operator:outbound"),

		FormSource: strings.ToLower(strings.TrimSpace(getEnv("FORM_SOURCE", "redis"))),
		FormName:   getEnv("FORM_NAME", "default"),
		FormFile:   getEnv("FORM_FILE", ""),
		KeyPrefix:  getEnv("KEY_PREFIX", "asker:"),

		LeadStore:   strings.ToLower(strings.TrimSpace(getEnv("LEAD_STORE", "redis"))),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		LeadsTable:  getEnv("LEADS_TABLE", "asker_leads"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		MaxChainLength:     getEnvAsInt("MAX_CHAIN_LENGTH", 16),
		ListenRestartDelay: getEnvAsDuration("LISTEN_RESTART_DELAY", time.Second),
		ContactLockTTL:     getEnvAsDuration("CONTACT_LOCK_TTL", 30*time.Second),
		DistributedLocks:   getEnvAsBool("DISTRIBUTED_LOCKS", false),
		DedupeTTL:          getEnvAsDuration("DEDUPE_TTL", 24*time.Hour),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
