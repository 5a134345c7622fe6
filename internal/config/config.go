package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Counter backends.
const (
	CounterBackendRedis  = "redis"
	CounterBackendMemory = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Counter  CounterConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Session  SessionConfig
	Mail     MailConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	// ProxyHeader names the header carrying the client address. It is only
	// honored for requests arriving from TrustedProxies; every other caller
	// is identified by its socket address.
	ProxyHeader    string
	TrustedProxies []string
	AllowedOrigins []string
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

// RedisConfig holds Redis connection values. Commands are never retried so
// an unreachable server surfaces immediately.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// CounterConfig selects the counting store used by the limiters.
type CounterConfig struct {
	Backend string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
	BcryptCost      int
}

// SessionConfig configures the session cookie.
type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// MailConfig configures outbound mail and the links rendered into it.
type MailConfig struct {
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	SMTPTLSMode   string
	FromName      string
	FromEmail     string
	PublicBaseURL string
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
			Name:                  getEnv("APP_NAME", "auth-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			ProxyHeader:           os.Getenv("HTTP_PROXY_HEADER"),
			TrustedProxies:        getEnvAsList("HTTP_TRUSTED_PROXIES", nil),
			AllowedOrigins:        getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
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
			Addr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           redisDB,
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", time.Second),
		},
		Counter: CounterConfig{
			Backend: strings.ToLower(getEnv("COUNTER_BACKEND", CounterBackendRedis)),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:       os.Getenv("JWT_SECRET"),
			TokenTTLMinutes: getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 15),
			BcryptCost:      getEnvAsInt("AUTH_BCRYPT_COST", 10),
		},
		Session: SessionConfig{
			CookieName: getEnv("SESSION_COOKIE_NAME", "t-sessionId"),
			TTL:        getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			Secure:     getEnvAsBool("SESSION_COOKIE_SECURE", false),
		},
		Mail: MailConfig{
			SMTPHost:      os.Getenv("SMTP_HOST"),
			SMTPPort:      getEnvAsInt("SMTP_PORT", 587),
			SMTPUser:      os.Getenv("SMTP_USER"),
			SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
			SMTPTLSMode:   getEnv("SMTP_TLS_MODE", "starttls"),
			FromName:      getEnv("MAIL_FROM_NAME", ""),
			FromEmail:     getEnv("MAIL_FROM", "noreply@example.com"),
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		},
	}

	cfg.Logger.Development = !cfg.IsProduction()
	if cfg.Auth.JWTSecret == "" && !cfg.IsProduction() {
		cfg.Auth.JWTSecret = "dev-secret"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	switch c.Counter.Backend {
	case CounterBackendRedis, CounterBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown COUNTER_BACKEND %q", c.Counter.Backend))
	}
	if c.App.ProxyHeader != "" && len(c.App.TrustedProxies) == 0 {
		errs = append(errs, errors.New("HTTP_PROXY_HEADER requires HTTP_TRUSTED_PROXIES"))
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL_MINUTES must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
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

// TokenTTL returns the lifetime of flow tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
