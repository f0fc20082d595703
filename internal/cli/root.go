// Package cli implements liftctl, the operator tool for migrations, plan
// seeding and manual tier changes.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/PortNumber53/liftx/internal/database"
)

// Deps holds the boundaries commands touch so tests can swap them.
type Deps struct {
	LoadEnv     func(...string) error
	OpenDB      func(ctx context.Context, url string, opts database.Options) (*sql.DB, error)
	NewMigrator func(db *sql.DB, sourceURL string) (database.Migrator, error)
}

func DefaultDeps() Deps {
	return Deps{
		LoadEnv:     godotenv.Load,
		OpenDB:      database.Open,
		NewMigrator: database.NewMigrator,
	}
}

type app struct {
	deps Deps
	v    *viper.Viper
}

// NewRootCmd builds the liftctl command tree.
func NewRootCmd(d Deps) *cobra.Command {
	a := &app{deps: d, v: viper.New()}
	a.v.AutomaticEnv()
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	root := &cobra.Command{
		Use:   "liftctl",
		Short: "Liftx operator tool",
		Long: `liftctl runs database migrations, seeds the subscription plan catalog
and adjusts user tiers outside the billing flow.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.deps.LoadEnv != nil {
				_ = a.deps.LoadEnv()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("database-url", "", "Postgres connection string (default $DATABASE_URL)")
	root.PersistentFlags().String("migrations-path", "file://db/migrations", "migration source URL (default $MIGRATIONS_PATH)")
	_ = a.v.BindPFlag("database_url", root.PersistentFlags().Lookup("database-url"))
	_ = a.v.BindPFlag("migrations_path", root.PersistentFlags().Lookup("migrations-path"))

	root.AddCommand(a.newMigrateCmd())
	root.AddCommand(a.newPlansCmd())
	root.AddCommand(a.newUsersCmd())
	return root
}

// Execute runs liftctl with os.Args.
func Execute() error {
	return NewRootCmd(DefaultDeps()).Execute()
}

func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	url := strings.TrimSpace(a.v.GetString("database_url"))
	if url == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	if a.deps.OpenDB == nil {
		return nil, errors.New("openDB dependency is required")
	}
	return a.deps.OpenDB(ctx, url, database.Options{MaxOpenConns: 2})
}
