package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/joho/godotenv"
)

// Backend names accepted by RATE_LIMIT_STORE and USER_STORE
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	URL string
}

type ServerConfig struct {
	Port                   string
	Env                    string
	LogLevel               string
	AllowedOrigins         []string
	TrustedProxies         []string
	ReadTimeout            time.Duration
	WriteTimeout           time.Duration
	IdleTimeout            time.Duration
	LoginRequestsPerMinute int
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	// TOTPEncryptionKey is empty when two-factor login is disabled
	TOTPEncryptionKey []byte
	UserStore         string
}

// RateLimitConfig configures the login attempt limiter
type RateLimitConfig struct {
	Store         string
	User          models.LockoutPolicy
	IP            models.LockoutPolicy
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

type EmailConfig struct {
	Provider    string
	AWSRegion   string
	FromAddress string
}

// IsProduction reports whether the server runs with production safeguards
func (c *ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

// NeedsDatabase reports whether any configured backend lives in PostgreSQL
func (c *Config) NeedsDatabase() bool {
	return c.RateLimit.Store == StorePostgres || c.Auth.UserStore == StorePostgres
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	userTiers, err := getEnvAsDurations("RATE_LIMIT_USER_LOCK_TIERS", models.DefaultLockTiers)
	if err != nil {
		return nil, err
	}
	ipTiers, err := getEnvAsDurations("RATE_LIMIT_IP_LOCK_TIERS", models.DefaultLockTiers)
	if err != nil {
		return nil, err
	}

	totpKey, err := parseEncryptionKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Server: ServerConfig{
			Port:                   getEnv("PORT", "8080"),
			Env:                    env,
			LogLevel:               getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:         parseAllowedOrigins(env),
			TrustedProxies:         splitList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:            getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:           getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:            getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			LoginRequestsPerMinute: getEnvAsInt("LOGIN_REQUESTS_PER_MINUTE", 30),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			TOTPEncryptionKey: totpKey,
			UserStore:         getEnv("USER_STORE", StoreMemory),
		},
		RateLimit: RateLimitConfig{
			Store: getEnv("RATE_LIMIT_STORE", StoreMemory),
			User: models.LockoutPolicy{
				MaxAttempts: getEnvAsInt("RATE_LIMIT_USER_MAX_ATTEMPTS", models.DefaultUserMaxAttempts),
				Tiers:       userTiers,
			},
			IP: models.LockoutPolicy{
				MaxAttempts: getEnvAsInt("RATE_LIMIT_IP_MAX_ATTEMPTS", models.DefaultIPMaxAttempts),
				Tiers:       ipTiers,
			},
			IdleTTL:       getEnvAsDuration("RATE_LIMIT_IDLE_TTL", 24*time.Hour),
			SweepInterval: getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 10*time.Minute),
		},
		Email: EmailConfig{
			Provider:    getEnv("EMAIL_PROVIDER", "log"),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		},
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.RateLimit.Store {
	case StoreMemory, StorePostgres:
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when RATE_LIMIT_STORE=redis")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_STORE must be memory, redis or postgres (got %q)", c.RateLimit.Store)
	}

	switch c.Auth.UserStore {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("USER_STORE must be memory or postgres (got %q)", c.Auth.UserStore)
	}

	if c.NeedsDatabase() && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required for the postgres store")
	}

	if err := c.RateLimit.User.Validate(); err != nil {
		return fmt.Errorf("user lockout policy: %w", err)
	}
	if err := c.RateLimit.IP.Validate(); err != nil {
		return fmt.Errorf("ip lockout policy: %w", err)
	}

	if c.RateLimit.IdleTTL < c.RateLimit.User.MaxLockDuration() || c.RateLimit.IdleTTL < c.RateLimit.IP.MaxLockDuration() {
		return fmt.Errorf("RATE_LIMIT_IDLE_TTL must not be shorter than the longest lock tier")
	}
	if c.RateLimit.SweepInterval <= 0 {
		return fmt.Errorf("RATE_LIMIT_SWEEP_INTERVAL must be positive")
	}

	switch c.Email.Provider {
	case "log":
	case "ses":
		if c.Email.FromAddress == "" {
			return fmt.Errorf("EMAIL_FROM_ADDRESS is required when EMAIL_PROVIDER=ses")
		}
	default:
		return fmt.Errorf("EMAIL_PROVIDER must be log or ses (got %q)", c.Email.Provider)
	}

	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// parseEncryptionKey decodes a base64 AES-256 key; empty input disables 2FA
func parseEncryptionKey(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key))
	}
	return key, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsDurations parses a comma-separated duration list such as "1m,5m,1h".
// Unlike the scalar helpers a malformed list is an error, since silently
// falling back would change the lockout schedule.
func getEnvAsDurations(key string, defaultVal []time.Duration) ([]time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return append([]time.Duration(nil), defaultVal...), nil
	}

	parts := splitList(value)
	durations := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid duration %q: %w", key, part, err)
		}
		durations = append(durations, d)
	}
	return durations, nil
}

func splitList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return splitList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
