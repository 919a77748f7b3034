package config

import "os"

type Config struct {
	Env      string
	Listen   string
	Auth     AuthConfig
	Cookie   CookieConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Postgres PostgresConfig
}

type AuthConfig struct {
	JWTSecret         string
	JWTAccessTTL      string
	JWTRefreshTTL     string
	Issuer            string
	Audience          string
	MinPasswordLength string
	RequireComplexity string
	RevokeOnReuse     string
}

type CookieConfig struct {
	Secure   string
	SameSite string
	Domain   string
}

type RedisConfig struct {
	Addr        string
	Password    string
	LoginLimit  string
	SignupLimit string
}

type CORSConfig struct {
	AllowedOrigins string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

func Load() Config {
	return Config{
		Env:    getenv("APP_ENV", "development"),
		Listen: getenv("LISTEN_ADDR", ":8080"),
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("JWT_SECRET_KEY"),
			JWTAccessTTL:      getenv("JWT_ACCESS_TTL", "15m"),
			JWTRefreshTTL:     getenv("JWT_REFRESH_TTL", "168h"),
			Issuer:            getenv("JWT_ISSUER", "base-client-server"),
			Audience:          getenv("JWT_AUDIENCE", "base-client-server-api"),
			MinPasswordLength: getenv("AUTH_MIN_PASSWORD_LENGTH", "8"),
			RequireComplexity: getenv("AUTH_REQUIRE_COMPLEXITY", "true"),
			RevokeOnReuse:     getenv("AUTH_REVOKE_ON_REUSE", "false"),
		},
		Cookie: CookieConfig{
			Secure:   getenv("COOKIE_SECURE", "true"),
			SameSite: getenv("COOKIE_SAMESITE", "lax"),
			Domain:   os.Getenv("COOKIE_DOMAIN"),
		},
		Redis: RedisConfig{
			Addr:        os.Getenv("REDIS_ADDR"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			LoginLimit:  getenv("RATE_LIMIT_LOGIN_PER_MIN", "5"),
			SignupLimit: getenv("RATE_LIMIT_REGISTER_PER_MIN", "3"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
