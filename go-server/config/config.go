package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config represents the application settings
type Config struct {
	Port string

	StoreDriver      string
	PostgresURL      string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string
	SQLiteDSN        string
	RunMigrations    bool

	RedisAddr     string
	RedisPassword string
	LinkCacheTTL  time.Duration

	// Location is used to interpret offset-less timestamps and to render
	// analytics buckets in local display time.
	Location *time.Location

	JWTSecret string
	JWTTTL    time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration

	CORSOrigins []string
	// TrustedProxies lists the proxy IPs/CIDRs whose forwarding headers are
	// honoured when resolving the client address. Empty trusts none.
	TrustedProxies []string

	ServiceName  string
	Environment  string
	OTLPEndpoint string
	LokiURL      string
	LokiDebug    bool
}

// LoadConfig loads the environment (and an optional .env file) into a Config
func LoadConfig() (*Config, error) {
	// .env is optional; the process environment always wins
	_ = godotenv.Load()

	config := &Config{
		Port:             getEnvWithDefault("PORT", "8080"),
		StoreDriver:      strings.ToLower(getEnvWithDefault("STORE_DRIVER", StoreDriverPostgres)),
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresSSLMode:  getEnvWithDefault("POSTGRES_SSLMODE", "prefer"),
		SQLiteDSN:        getEnvWithDefault("SQLITE_DSN", "file:shortlink.db"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		ServiceName:      getEnvWithDefault("SERVICE_NAME", "shortlink"),
		Environment:      getEnvWithDefault("ENV", "development"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LokiURL:          os.Getenv("LOKI_URL"),
		CORSOrigins:      splitList(getEnvWithDefault("CORS_ORIGINS", "*")),
		TrustedProxies:   splitList(os.Getenv("TRUSTED_PROXIES")),
	}

	var err error
	if config.PostgresPort, err = getEnvInt("POSTGRES_PORT", 5432); err != nil {
		return nil, err
	}
	if config.RateLimitRequests, err = getEnvInt("RATE_LIMIT_REQUESTS", 20); err != nil {
		return nil, err
	}
	if config.RunMigrations, err = getEnvBool("RUN_MIGRATIONS", true); err != nil {
		return nil, err
	}
	if config.LokiDebug, err = getEnvBool("LOKI_DEBUG", false); err != nil {
		return nil, err
	}
	if config.LinkCacheTTL, err = getEnvDuration("LINK_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if config.JWTTTL, err = getEnvDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if config.RateLimitWindow, err = getEnvDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}

	if config.RateLimitRequests < 0 {
		return nil, fmt.Errorf("RATE_LIMIT_REQUESTS must not be negative, got %d", config.RateLimitRequests)
	}
	if config.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", config.RateLimitWindow)
	}
	if config.LinkCacheTTL <= 0 {
		return nil, fmt.Errorf("LINK_CACHE_TTL must be positive, got %s", config.LinkCacheTTL)
	}
	if config.JWTTTL <= 0 {
		return nil, fmt.Errorf("JWT_TTL must be positive, got %s", config.JWTTTL)
	}
	for _, proxy := range config.TrustedProxies {
		if !validProxy(proxy) {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", proxy)
		}
	}

	tz := getEnvWithDefault("TIME_ZONE", "UTC")
	config.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE %q: %w", tz, err)
	}

	switch config.StoreDriver {
	case StoreDriverPostgres:
		if config.PostgresURL == "" {
			if config.PostgresHost == "" || config.PostgresUser == "" || config.PostgresDB == "" {
				return nil, fmt.Errorf("either POSTGRES_URL or POSTGRES_HOST, POSTGRES_USER, and POSTGRES_DB must be set")
			}
			config.PostgresURL = buildPostgresURL(config)
		}
	case StoreDriverSQLite:
		if config.SQLiteDSN == "" {
			return nil, fmt.Errorf("SQLITE_DSN must not be empty")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", config.StoreDriver)
	}

	if config.JWTSecret == "" {
		if config.Environment == "production" {
			return nil, fmt.Errorf("JWT_SECRET must be set in production")
		}
		config.JWTSecret = "dev-secret-change-me"
	}

	return config, nil
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
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

func validProxy(entry string) bool {
	if strings.Contains(entry, "/") {
		_, _, err := net.ParseCIDR(entry)
		return err == nil
	}
	return net.ParseIP(entry) != nil
}

// buildPostgresURL constructs PostgreSQL connection URL from individual parameters
func buildPostgresURL(config *Config) string {
	user := url.User(config.PostgresUser)
	if config.PostgresPassword != "" {
		user = url.UserPassword(config.PostgresUser, config.PostgresPassword)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     net.JoinHostPort(config.PostgresHost, strconv.Itoa(config.PostgresPort)),
		Path:     "/" + config.PostgresDB,
		RawQuery: url.Values{"sslmode": {config.PostgresSSLMode}}.Encode(),
	}
	return u.String()
}
