// Package config builds the process configuration from environment
// variables so main stays lean.
package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Auth configures token validation.
type Auth struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// Database configures the policy store connection. An empty URL selects the
// in-memory stores.
type Database struct {
	URL string
}

// Redis configures the shared decision cache. An empty URL selects the
// in-process cache.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Authority configures the remote policy authority client.
type Authority struct {
	BaseURL      string
	ServiceName  string
	ServiceToken string
	Timeout      time.Duration
	AllowTTL     time.Duration
	DenyTTL      time.Duration
	MaxAttempts  int
}

// Audit configures the audit publisher.
type Audit struct {
	AsyncBuffer int
}

// Config is the full process configuration.
type Config struct {
	Server    Server
	Auth      Auth
	Database  Database
	Redis     Redis
	Authority Authority
	Audit     Audit
}

// FromEnv builds a Config from environment variables, with development
// defaults for everything but secrets used in production.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            getEnv("AEGIS_ADDR", ":8080"),
			ShutdownTimeout: getDuration("AEGIS_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: Auth{
			// Should be overridden in production.
			JWTSigningKey: getEnv("AEGIS_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        getEnv("AEGIS_JWT_ISSUER", "aegis"),
			Audience:      getEnv("AEGIS_JWT_AUDIENCE", "content-platform"),
		},
		Database: Database{
			URL: os.Getenv("AEGIS_DATABASE_URL"),
		},
		Redis: Redis{
			URL:          os.Getenv("AEGIS_REDIS_URL"),
			PoolSize:     getInt("AEGIS_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("AEGIS_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("AEGIS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("AEGIS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("AEGIS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Authority: Authority{
			BaseURL:      getEnv("AEGIS_AUTHORITY_URL", "http://localhost:9090"),
			ServiceName:  getEnv("AEGIS_AUTHORITY_SERVICE_NAME", "aegis"),
			ServiceToken: os.Getenv("AEGIS_AUTHORITY_SERVICE_TOKEN"),
			Timeout:      getDuration("AEGIS_AUTHORITY_TIMEOUT", 3*time.Second),
			AllowTTL:     getDuration("AEGIS_AUTHORITY_ALLOW_TTL", 5*time.Minute),
			DenyTTL:      getDuration("AEGIS_AUTHORITY_DENY_TTL", 30*time.Second),
			MaxAttempts:  getInt("AEGIS_AUTHORITY_MAX_ATTEMPTS", 3),
		},
		Audit: Audit{
			AsyncBuffer: getInt("AEGIS_AUDIT_BUFFER", 256),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
