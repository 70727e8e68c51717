package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Store selects the tree backend: memory, redis, postgres, sqlite or firebase.
	Store       string
	DatabaseURL string
	RedisURL    string
	RedisPrefix string
	SQLitePath  string

	FirebaseProjectID       string
	FirebaseDatabaseURL     string
	FirebaseCredentialsFile string

	// Identity selects the member credential issuer: jwt or firebase.
	Identity        string
	TokenSigningKey string
	TokenTTL        time.Duration

	FanoutConcurrency int
	TriggerTimeout    time.Duration
	MaxBodyBytes      int64

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		Store:                   getEnv("STORE", "memory"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisURL:                os.Getenv("REDIS_URL"),
		RedisPrefix:             getEnv("REDIS_PREFIX", "firesync"),
		SQLitePath:              getEnv("SQLITE_PATH", "./data/firesync.db"),
		FirebaseProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseDatabaseURL:     os.Getenv("FIREBASE_DATABASE_URL"),
		FirebaseCredentialsFile: os.Getenv("FIREBASE_CREDENTIALS_FILE"),
		Identity:                getEnv("IDENTITY", "jwt"),
		TokenSigningKey:         os.Getenv("TOKEN_SIGNING_KEY"),
		TokenTTL:                getEnvDuration("TOKEN_TTL", time.Hour),
		FanoutConcurrency:       getEnvInt("FANOUT_CONCURRENCY", 16),
		TriggerTimeout:          getEnvDuration("TRIGGER_TIMEOUT", time.Minute),
		MaxBodyBytes:            int64(getEnvInt("MAX_BODY_BYTES", 64*1024)),
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	switch cfg.Store {
	case "redis":
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required for STORE=redis")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required for STORE=postgres")
		}
	case "firebase":
		if cfg.FirebaseDatabaseURL == "" {
			panic("FIREBASE_DATABASE_URL is required for STORE=firebase")
		}
	case "memory", "sqlite":
	default:
		panic("unknown STORE " + strconv.Quote(cfg.Store))
	}

	// In production, events must survive restarts and credentials must
	// outlive the process.
	if cfg.Env == "production" {
		if cfg.Store == "memory" {
			panic("STORE=memory is not allowed in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.Identity == "jwt" && cfg.TokenSigningKey == "" {
			panic("TOKEN_SIGNING_KEY is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// UsesFirebase reports whether a Firebase app has to be initialized.
func (c *Config) UsesFirebase() bool {
	return c.Store == "firebase" || c.Identity == "firebase"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
