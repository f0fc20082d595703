// Package config resolves runtime settings from the environment (and an
// optional .env file) into a typed Config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Logging      LoggingConfig
	Auth         AuthConfig
	Posting      PostingConfig
	Stripe       StripeConfig
	Storage      StorageConfig
	Redis        RedisConfig
	Dispatcher   DispatcherConfig
	Notification NotificationConfig
}

type ServerConfig struct {
	Port               string
	PublicOrigin       string
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

type DatabaseConfig struct {
	URL            string
	MigrationsPath string
	MaxOpenConns   int
	MaxIdleConns   int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type AuthConfig struct {
	JWTSecret string
}

type PostingConfig struct {
	QuotaTimezone             string
	RequireConnectedPlatforms bool
	RateLimitPerMinute        int
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type StorageConfig struct {
	Driver         string
	LocalDir       string
	PublicBaseURL  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

type RedisConfig struct {
	Addr     string
	Password string
}

type DispatcherConfig struct {
	Enabled  bool
	Schedule string
}

type NotificationConfig struct {
	OwnerWebhookURL string
	RetentionHours  int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "18911")
	v.SetDefault("PUBLIC_ORIGIN", "http://localhost:5173")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("MIGRATIONS_PATH", "file://db/migrations")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("QUOTA_TIMEZONE", "")
	v.SetDefault("REQUIRE_CONNECTED_PLATFORMS", false)
	v.SetDefault("RATE_LIMIT_POSTS_PER_MINUTE", 30)
	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("STORAGE_LOCAL_DIR", "./data/uploads")
	v.SetDefault("STORAGE_PUBLIC_BASE_URL", "/files")
	v.SetDefault("MINIO_BUCKET", "liftx-media")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("DISPATCHER_ENABLED", false)
	v.SetDefault("DISPATCHER_SCHEDULE", "@every 1m")
	v.SetDefault("NOTIFICATION_LOG_RETENTION_HOURS", 720)
}

// Load reads .env when present and resolves every key from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:               strings.TrimSpace(v.GetString("PORT")),
			PublicOrigin:       strings.TrimRight(v.GetString("PUBLIC_ORIGIN"), "/"),
			CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			ShutdownTimeout:    v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			URL:            strings.TrimSpace(v.GetString("DATABASE_URL")),
			MigrationsPath: v.GetString("MIGRATIONS_PATH"),
			MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		Posting: PostingConfig{
			QuotaTimezone:             strings.TrimSpace(v.GetString("QUOTA_TIMEZONE")),
			RequireConnectedPlatforms: v.GetBool("REQUIRE_CONNECTED_PLATFORMS"),
			RateLimitPerMinute:        v.GetInt("RATE_LIMIT_POSTS_PER_MINUTE"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		},
		Storage: StorageConfig{
			Driver:         strings.ToLower(v.GetString("STORAGE_DRIVER")),
			LocalDir:       v.GetString("STORAGE_LOCAL_DIR"),
			PublicBaseURL:  strings.TrimRight(v.GetString("STORAGE_PUBLIC_BASE_URL"), "/"),
			MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
			MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
			MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
			MinioBucket:    v.GetString("MINIO_BUCKET"),
			MinioUseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		Dispatcher: DispatcherConfig{
			Enabled:  v.GetBool("DISPATCHER_ENABLED"),
			Schedule: v.GetString("DISPATCHER_SCHEDULE"),
		},
		Notification: NotificationConfig{
			OwnerWebhookURL: v.GetString("OWNER_WEBHOOK_URL"),
			RetentionHours:  v.GetInt("NOTIFICATION_LOG_RETENTION_HOURS"),
		},
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.Posting.QuotaTimezone != "" {
		if _, err := time.LoadLocation(c.Posting.QuotaTimezone); err != nil {
			return fmt.Errorf("invalid QUOTA_TIMEZONE %q: %w", c.Posting.QuotaTimezone, err)
		}
	}
	switch c.Storage.Driver {
	case "local":
	case "minio":
		if c.Storage.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_DRIVER=minio")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Notification.RetentionHours <= 0 {
		return fmt.Errorf("NOTIFICATION_LOG_RETENTION_HOURS must be positive")
	}
	return nil
}

// QuotaLocation is the zone used to compute the start of the posting day.
func (c *Config) QuotaLocation() *time.Location {
	if c.Posting.QuotaTimezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Posting.QuotaTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
