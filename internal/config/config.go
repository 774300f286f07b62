package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"

	UpdatesPolling = "polling"
	UpdatesWebhook = "webhook"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Debug     bool `env:"DEBUG" envDefault:"false"`
	LogPretty bool `env:"LOG_PRETTY" envDefault:"false"`

	HTTP struct {
		Addr               string   `env:"HTTP_ADDR" envDefault:":8080"`
		CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	}

	Store struct {
		// Backend selects the durable store: "redis" or "memory" (local dev only)
		Backend string `env:"STORE_BACKEND" envDefault:"redis"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	// Payment ledger; empty DatabaseURL disables it
	DatabaseURL   string `env:"DATABASE_URL" envDefault:""`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"false"`

	Telegram struct {
		BotToken       string  `env:"BOT_TOKEN,required"`
		AdminIDs       []int64 `env:"ADMIN_IDS" envSeparator:","`
		UpdateMode     string  `env:"UPDATE_MODE" envDefault:"polling"`
		WebhookSecret  string  `env:"WEBHOOK_SECRET" envDefault:""`
		WebhookURL     string  `env:"WEBHOOK_URL" envDefault:""`
		InitDataTTLSec int     `env:"INIT_DATA_TTL" envDefault:"86400"`
		SupportContact string  `env:"SUPPORT_CONTACT" envDefault:"@FairyRoot"`
	}

	Download struct {
		Dir                 string   `env:"DOWNLOAD_DIR" envDefault:"bot_downloads"`
		DailyLimit          int      `env:"DAILY_DOWNLOAD_LIMIT" envDefault:"5"`
		StandardMaxFileMB   float64  `env:"STANDARD_MAX_FILE_MB" envDefault:"25"`
		ElevatedMaxFileMB   float64  `env:"ELEVATED_MAX_FILE_MB" envDefault:"49.5"`
		MaxConcurrent       int      `env:"MAX_CONCURRENT_FETCHES" envDefault:"4"`
		YtDlpPath           string   `env:"YTDLP_PATH" envDefault:"yt-dlp"`
		StandardAllowedHost []string `env:"STANDARD_ALLOWED_HOSTS" envSeparator:"," envDefault:"tiktok.com,www.tiktok.com,vm.tiktok.com"`
	}

	MaxConcurrentUpdates int    `env:"MAX_CONCURRENT_UPDATES" envDefault:"64"`
	QuotaTimezone        string `env:"QUOTA_TIMEZONE" envDefault:"Local"`
	MembershipCacheSec   int    `env:"MEMBERSHIP_CACHE_TTL" envDefault:"60"`
}

// Load reads .env (if present) and the process environment into Config and validates it.
func Load() (*Config, error) {
	// .env is optional; production sets variables directly
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	if parts := strings.SplitN(c.Telegram.BotToken, ":", 2); len(parts) != 2 || len(parts[0]) < 5 {
		return fmt.Errorf("invalid BOT_TOKEN: expected <bot id>:<secret>")
	}
	switch c.Store.Backend {
	case StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.Store.Backend)
	}
	switch c.Telegram.UpdateMode {
	case UpdatesPolling:
	case UpdatesWebhook:
		if c.Telegram.WebhookSecret == "" {
			return fmt.Errorf("WEBHOOK_SECRET is required when UPDATE_MODE=webhook")
		}
		if c.Store.Backend != StoreRedis {
			return fmt.Errorf("UPDATE_MODE=webhook requires STORE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("invalid UPDATE_MODE %q", c.Telegram.UpdateMode)
	}
	if c.Download.DailyLimit <= 0 {
		return fmt.Errorf("invalid DAILY_DOWNLOAD_LIMIT: must be positive")
	}
	if c.Download.StandardMaxFileMB <= 0 || c.Download.ElevatedMaxFileMB <= 0 {
		return fmt.Errorf("file size limits must be positive")
	}
	if c.Download.MaxConcurrent <= 0 {
		return fmt.Errorf("invalid MAX_CONCURRENT_FETCHES: must be positive")
	}
	if c.MaxConcurrentUpdates <= 0 {
		return fmt.Errorf("invalid MAX_CONCURRENT_UPDATES: must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid QUOTA_TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the timezone whose calendar day bounds the daily quota.
func (c *Config) Location() (*time.Location, error) {
	if c.QuotaTimezone == "" || c.QuotaTimezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.QuotaTimezone)
}

// InitDataTTL is the max age accepted for Telegram Mini App init data (0 disables the check).
func (c *Config) InitDataTTL() time.Duration {
	return time.Duration(c.Telegram.InitDataTTLSec) * time.Second
}

// MembershipCacheTTL is how long a positive channel membership answer is reused (0 disables caching).
func (c *Config) MembershipCacheTTL() time.Duration {
	return time.Duration(c.MembershipCacheSec) * time.Second
}

// BytesFromMB converts a megabyte limit into bytes.
func BytesFromMB(mb float64) int64 {
	return int64(mb * 1024 * 1024)
}
