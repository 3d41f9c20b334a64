package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Feed drivers.
const (
	FeedPostgres = "postgres"
	FeedRedis    = "redis"
	FeedMemory   = "memory"
)

// Config groups the application settings read from the environment.
type Config struct {
	App   AppConfig
	DB    DBConfig
	JWT   JWTConfig
	HTTP  HTTPConfig
	Feed  FeedConfig
	Redis RedisConfig
}

type AppConfig struct {
	Env      string // development, staging, production
	LogLevel string
}

// DBConfig is the PostgreSQL connection. DatabaseURL wins over the individual fields.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString returns DATABASE_URL when set, otherwise the DSN built from the parts.
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

type JWTConfig struct {
	Secret string
}

type HTTPConfig struct {
	Port        int
	CORSOrigins []string
}

// Addr is the listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// FeedConfig selects where dashboards read row changes from.
type FeedConfig struct {
	Driver   string
	RetryMin time.Duration
	RetryMax time.Duration
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// Load reads configs/.env (if present) into the environment, then the environment through viper.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		DB: DBConfig{
			DatabaseURL: v.GetString("DATABASE_URL"),
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetInt("DB_PORT"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			DBName:      v.GetString("DB_NAME"),
			SSLMode:     v.GetString("DB_SSLMODE"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
		HTTP: HTTPConfig{
			Port:        v.GetInt("HTTP_PORT"),
			CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		},
		Feed: FeedConfig{
			Driver:   strings.ToLower(v.GetString("FEED_DRIVER")),
			RetryMin: time.Duration(v.GetInt("FEED_RETRY_MIN_MS")) * time.Millisecond,
			RetryMax: time.Duration(v.GetInt("FEED_RETRY_MAX_MS")) * time.Millisecond,
		},
		Redis: RedisConfig{
			Address:  v.GetString("REDIS_ADDRESS"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "postgres")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("JWT_SECRET", "super_secret_key_change_in_production")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault("FEED_DRIVER", FeedPostgres)
	v.SetDefault("FEED_RETRY_MIN_MS", 500)
	v.SetDefault("FEED_RETRY_MAX_MS", 30000)
	v.SetDefault("REDIS_ADDRESS", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Feed.Driver {
	case FeedPostgres, FeedRedis, FeedMemory:
	default:
		return fmt.Errorf("FEED_DRIVER must be postgres, redis or memory, got %q", c.Feed.Driver)
	}
	if c.Feed.RetryMin <= 0 || c.Feed.RetryMax < c.Feed.RetryMin {
		return fmt.Errorf("feed retry window %s..%s is invalid", c.Feed.RetryMin, c.Feed.RetryMax)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
