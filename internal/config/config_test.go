package config

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/spf13/viper"
)

func TestFromViper_Defaults(t *testing.T) {
	c := qt.New(t)
	v := viper.New()
	v.Set("DATABASE_URL", "postgres://localhost/liftx")

	cfg, err := FromViper(v)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Server.Port, qt.Equals, "18911")
	c.Assert(cfg.Server.CORSAllowedOrigins, qt.DeepEquals, []string{"*"})
	c.Assert(cfg.Server.ShutdownTimeout, qt.Equals, 10*time.Second)
	c.Assert(cfg.Database.MigrationsPath, qt.Equals, "file://db/migrations")
	c.Assert(cfg.Posting.RequireConnectedPlatforms, qt.IsFalse)
	c.Assert(cfg.Storage.Driver, qt.Equals, "local")
	c.Assert(cfg.Dispatcher.Schedule, qt.Equals, "@every 1m")
	c.Assert(cfg.Notification.RetentionHours, qt.Equals, 720)
	c.Assert(cfg.QuotaLocation(), qt.Equals, time.Local)
}

func TestFromViper_Overrides(t *testing.T) {
	c := qt.New(t)
	v := viper.New()
	v.Set("DATABASE_URL", "postgres://localhost/liftx")
	v.Set("PORT", "9000")
	v.Set("PUBLIC_ORIGIN", "https://liftx.example/")
	v.Set("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	v.Set("QUOTA_TIMEZONE", "America/New_York")
	v.Set("REQUIRE_CONNECTED_PLATFORMS", "true")
	v.Set("LOG_FORMAT", "CONSOLE")

	cfg, err := FromViper(v)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Server.Port, qt.Equals, "9000")
	c.Assert(cfg.Server.PublicOrigin, qt.Equals, "https://liftx.example")
	c.Assert(cfg.Server.CORSAllowedOrigins, qt.DeepEquals, []string{"https://a.example", "https://b.example"})
	c.Assert(cfg.Posting.RequireConnectedPlatforms, qt.IsTrue)
	c.Assert(cfg.Logging.Format, qt.Equals, "console")
	c.Assert(cfg.QuotaLocation().String(), qt.Equals, "America/New_York")
}

func TestFromViper_Invalid(t *testing.T) {
	c := qt.New(t)

	_, err := FromViper(viper.New())
	c.Assert(err, qt.ErrorMatches, "DATABASE_URL is required")

	v := viper.New()
	v.Set("DATABASE_URL", "postgres://localhost/liftx")
	v.Set("QUOTA_TIMEZONE", "Mars/Olympus")
	_, err = FromViper(v)
	c.Assert(err, qt.ErrorMatches, `invalid QUOTA_TIMEZONE "Mars/Olympus".*`)

	v = viper.New()
	v.Set("DATABASE_URL", "postgres://localhost/liftx")
	v.Set("STORAGE_DRIVER", "minio")
	_, err = FromViper(v)
	c.Assert(err, qt.ErrorMatches, "MINIO_ENDPOINT is required when STORAGE_DRIVER=minio")
}
