package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/users"
)

func (a *app) newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and adjust user accounts",
	}

	var openID, tier string
	var proLimit int
	setTier := &cobra.Command{
		Use:   "set-tier",
		Short: "Set a user's subscription tier without going through checkout",
		RunE: func(cmd *cobra.Command, args []string) error {
			if openID == "" {
				return errors.New("--open-id is required")
			}
			t, err := entitlements.ParseTier(tier)
			if err != nil {
				return err
			}
			var limit *int
			if cmd.Flags().Changed("pro-post-limit") {
				if t != entitlements.TierPro {
					return errors.New("--pro-post-limit only applies to the pro tier")
				}
				if proLimit <= 0 {
					return errors.New("--pro-post-limit must be positive")
				}
				limit = &proLimit
			}

			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := users.NewStore(db).SetTierByOpenID(cmd.Context(), openID, t, limit); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s is now on %s\n", openID, t)
			return nil
		},
	}
	setTier.Flags().StringVar(&openID, "open-id", "", "identity provider subject of the user")
	setTier.Flags().StringVar(&tier, "tier", "", "trial, pro or ultra_pro")
	setTier.Flags().IntVar(&proLimit, "pro-post-limit", 0, "per-user daily post limit override for pro")
	cmd.AddCommand(setTier)
	return cmd
}
