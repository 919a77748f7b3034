package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "15m", cfg.Auth.JWTAccessTTL)
	assert.Equal(t, "168h", cfg.Auth.JWTRefreshTTL)
	assert.Equal(t, "base-client-server", cfg.Auth.Issuer)
	assert.Equal(t, "base-client-server-api", cfg.Auth.Audience)
	assert.Equal(t, "8", cfg.Auth.MinPasswordLength)
	assert.Equal(t, "true", cfg.Auth.RequireComplexity)
	assert.Equal(t, "false", cfg.Auth.RevokeOnReuse)
	assert.Equal(t, "true", cfg.Cookie.Secure)
	assert.Equal(t, "lax", cfg.Cookie.SameSite)
	assert.Equal(t, "5", cfg.Redis.LoginLimit)
	assert.Equal(t, "3", cfg.Redis.SignupLimit)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("JWT_SECRET_KEY", "0f8fad5bd9cb469fa165408799f49bce")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("AUTH_REVOKE_ON_REUSE", "true")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("RATE_LIMIT_LOGIN_PER_MIN", "10")

	cfg := Load()

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "0f8fad5bd9cb469fa165408799f49bce", cfg.Auth.JWTSecret)
	assert.Equal(t, "5m", cfg.Auth.JWTAccessTTL)
	assert.Equal(t, "true", cfg.Auth.RevokeOnReuse)
	assert.Equal(t, "false", cfg.Cookie.Secure)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "10", cfg.Redis.LoginLimit)
}
