package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the assessment service.
type Config struct {
	AppName         string
	AppEnv          string
	AppPort         string
	LogLevel        string
	DatabaseURL     string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	DBConnLifetime  time.Duration
	RedisURL        string
	NATSURL         string
	EventsSubject   string
	JWTSecret       string
	StatsCacheTTL   time.Duration
	StartRetryLimit int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ASSESS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Assessment API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("events.subject", "assessment.submission.finalized")
	v.SetDefault("stats.cache_ttl", "2m")
	v.SetDefault("start.retry_limit", 3)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_lifetime", "30m")

	ttlString := v.GetString("stats.cache_ttl")
	if ttlString == "" {
		ttlString = "2m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid stats cache ttl: %w", err)
	}

	lifetime, err := time.ParseDuration(v.GetString("database.conn_lifetime"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid database connection lifetime: %w", err)
	}

	cfg := Config{
		AppName:         v.GetString("app.name"),
		AppEnv:          v.GetString("app.env"),
		AppPort:         v.GetString("app.port"),
		LogLevel:        strings.ToLower(v.GetString("log.level")),
		DatabaseURL:     v.GetString("database.url"),
		DBMaxOpenConns:  v.GetInt("database.max_open_conns"),
		DBMaxIdleConns:  v.GetInt("database.max_idle_conns"),
		DBConnLifetime:  lifetime,
		RedisURL:        v.GetString("redis.url"),
		NATSURL:         v.GetString("nats.url"),
		EventsSubject:   v.GetString("events.subject"),
		JWTSecret:       v.GetString("jwt.secret"),
		StatsCacheTTL:   ttl,
		StartRetryLimit: v.GetInt("start.retry_limit"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.StartRetryLimit <= 0 {
		cfg.StartRetryLimit = 3
	}

	return cfg, nil
}
