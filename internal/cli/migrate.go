package cli

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/PortNumber53/liftx/internal/database"
)

type migrateOptions struct {
	direction  string
	steps      int
	force      int
	forceDirty bool
}

func (o migrateOptions) validate() error {
	switch o.direction {
	case "up", "down":
		return nil
	default:
		return fmt.Errorf("invalid direction: %s (must be 'up' or 'down')", o.direction)
	}
}

func (a *app) newMigrateCmd() *cobra.Command {
	var o migrateOptions
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if a.deps.NewMigrator == nil {
				return errors.New("migrator dependency is required")
			}
			m, err := a.deps.NewMigrator(db, a.v.GetString("migrations_path"))
			if err != nil {
				return err
			}
			msg, err := runMigration(m, o)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&o.direction, "direction", "up", "migration direction: up or down")
	cmd.Flags().IntVar(&o.steps, "steps", 0, "number of migration steps (0 = all)")
	cmd.Flags().IntVar(&o.force, "force", -1, "force set migration version (clears dirty state)")
	cmd.Flags().BoolVar(&o.forceDirty, "force-dirty", false, "if the database is dirty, force it to the current version and exit")
	return cmd
}

func runMigration(m database.Migrator, o migrateOptions) (string, error) {
	if o.forceDirty {
		v, dirty, err := m.Version()
		if err != nil {
			return "", fmt.Errorf("read migration version: %w", err)
		}
		if !dirty {
			return "Database is not dirty (no force needed)", nil
		}
		if err := m.Force(int(v)); err != nil {
			return "", fmt.Errorf("force dirty version %d: %w", v, err)
		}
		return fmt.Sprintf("Forced dirty database to version %d", v), nil
	}
	if o.force >= 0 {
		if err := m.Force(o.force); err != nil {
			return "", fmt.Errorf("force version %d: %w", o.force, err)
		}
		return fmt.Sprintf("Forced database to version %d", o.force), nil
	}

	err := applyDirection(m, o.direction, o.steps)
	if errors.Is(err, migrate.ErrNoChange) {
		return "No migrations to apply", nil
	}
	if err != nil {
		return "", fmt.Errorf("migration failed: %w", err)
	}
	return fmt.Sprintf("Migration %s completed successfully", o.direction), nil
}

func applyDirection(m database.Migrator, direction string, steps int) error {
	switch direction {
	case "up":
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	case "down":
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	default:
		return fmt.Errorf("invalid direction: %s (must be 'up' or 'down')", direction)
	}
}
