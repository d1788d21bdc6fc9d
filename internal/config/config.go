package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	NodeID               int64
	DBDriver             string
	DatabaseURL          string
	JWTIssuer            string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	RefreshTokenBytes    int
	PasswordMinLength    int
	LoginMaxAttempts     int
	LoginLockout         time.Duration
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	KafkaBrokers         []string
	KafkaTopic           string
	StorageRoot          string
	AdminUsernames       []string
	AdminPhone           string
	AdminPassword        string
	ServiceName          string
	RateLimitRPM         int
	RequestTimeout       time.Duration
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	TraceSampleRatio     float64
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		NodeID:               int64(getInt("NODE_ID", 1)),
		DBDriver:             strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		JWTIssuer:            getEnv("JWT_ISSUER", "litshare"),
		AccessTokenTTL:       getDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL:      getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		RefreshTokenBytes:    getInt("REFRESH_TOKEN_BYTES", 32),
		PasswordMinLength:    getInt("PASSWORD_MIN_LENGTH", 8),
		LoginMaxAttempts:     getInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginLockout:         getDuration("LOGIN_LOCKOUT", 15*time.Minute),
		RedisAddr:            strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		KafkaBrokers:         getList("KAFKA_BROKERS", nil),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "litshare.events"),
		StorageRoot:          getEnv("STORAGE_ROOT", "./uploads"),
		AdminUsernames:       getList("ADMIN_USERNAMES", []string{"admin"}),
		AdminPhone:           strings.TrimSpace(os.Getenv("ADMIN_PHONE")),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
		ServiceName:          getEnv("SERVICE_NAME", "litshare"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		RequestTimeout:       getDuration("REQUEST_TIMEOUT", 15*time.Second),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TraceSampleRatio:     getFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	switch cfg.DBDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required")
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("DB_DRIVER must be %q or %q", DriverPostgres, DriverMemory)
	}

	if cfg.RefreshTokenBytes < 32 {
		cfg.RefreshTokenBytes = 32
	}
	if cfg.PasswordMinLength < 1 {
		cfg.PasswordMinLength = 8
	}
	if cfg.NodeID < 0 || cfg.NodeID > 1023 {
		return Config{}, fmt.Errorf("NODE_ID must be between 0 and 1023")
	}

	return cfg, nil
}

// IsPlatformAdmin reports whether username is configured as a platform admin.
func (c Config) IsPlatformAdmin(username string) bool {
	for _, admin := range c.AdminUsernames {
		if strings.EqualFold(admin, username) {
			return true
		}
	}
	return false
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
