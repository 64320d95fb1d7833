package config

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "STORE_DRIVER", "POSTGRES_URL", "POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_DB",
		"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_SSLMODE", "SQLITE_DSN", "REDIS_ADDR",
		"LINK_CACHE_TTL", "TIME_ZONE", "JWT_SECRET", "JWT_TTL", "RATE_LIMIT_REQUESTS",
		"RATE_LIMIT_WINDOW", "RUN_MIGRATIONS", "ENV", "LOKI_DEBUG", "CORS_ORIGINS",
		"TRUSTED_PROXIES",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_PostgresFromParts(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "app")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "links")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "postgres://app:pw@db:5432/links?sslmode=prefer", cfg.PostgresURL)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, 24*time.Hour, cfg.LinkCacheTTL)
	assert.Equal(t, 20, cfg.RateLimitRequests)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadConfig_MissingPostgres(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig()

	assert.Error(t, err)
}

func TestLoadConfig_SQLite(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("TIME_ZONE", "Asia/Shanghai")
	t.Setenv("LINK_CACHE_TTL", "10m")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "file:shortlink.db", cfg.SQLiteDSN)
	assert.Equal(t, "Asia/Shanghai", cfg.Location.String())
	assert.Equal(t, 10*time.Minute, cfg.LinkCacheTTL)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad port", "POSTGRES_PORT", "abc"},
		{"bad zone", "TIME_ZONE", "Mars/Olympus"},
		{"bad ttl", "LINK_CACHE_TTL", "forever"},
		{"bad bool", "RUN_MIGRATIONS", "maybe"},
		{"bad driver", "STORE_DRIVER", "mysql"},
		{"zero rate window", "RATE_LIMIT_WINDOW", "0s"},
		{"negative rate window", "RATE_LIMIT_WINDOW", "-1m"},
		{"zero cache ttl", "LINK_CACHE_TTL", "0s"},
		{"negative cache ttl", "LINK_CACHE_TTL", "-5m"},
		{"negative rate requests", "RATE_LIMIT_REQUESTS", "-1"},
		{"zero jwt ttl", "JWT_TTL", "0s"},
		{"bad proxy", "TRUSTED_PROXIES", "10.0.0.1,not-an-ip"},
		{"bad proxy cidr", "TRUSTED_PROXIES", "10.0.0.0/99"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("POSTGRES_URL", "postgres://localhost/links")
			t.Setenv(tc.key, tc.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_ProductionRequiresSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_URL", "postgres://localhost/links")
	t.Setenv("ENV", "production")

	_, err := LoadConfig()

	assert.Error(t, err)
}

func TestLoadConfig_PostgresPasswordIsEscaped(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "app")
	t.Setenv("POSTGRES_PASSWORD", "p@ss:w/rd")
	t.Setenv("POSTGRES_DB", "links")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	u, err := url.Parse(cfg.PostgresURL)
	require.NoError(t, err)
	pw, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss:w/rd", pw)
	assert.Equal(t, "app", u.User.Username())
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/links", u.Path)
	assert.Equal(t, "prefer", u.Query().Get("sslmode"))
}

func TestLoadConfig_ZeroRateRequestsAllowed(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_URL", "postgres://localhost/links")
	t.Setenv("RATE_LIMIT_REQUESTS", "0")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, 0, cfg.RateLimitRequests)
}

func TestLoadConfig_TrustedProxies(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_URL", "postgres://localhost/links")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.TrustedProxies)

	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 172.16.0.0/12")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.TrustedProxies)
}
