package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/PortNumber53/liftx/internal/billing"
	"github.com/PortNumber53/liftx/internal/database"
	"github.com/PortNumber53/liftx/internal/entitlements"
)

// PlanSeed is one row of the subscription plan catalog as read from YAML.
type PlanSeed struct {
	Name              string   `yaml:"name"`
	Tier              string   `yaml:"tier"`
	StripePriceID     *string  `yaml:"stripePriceId"`
	MonthlyPriceCents int64    `yaml:"monthlyPriceCents"`
	YearlyPriceCents  int64    `yaml:"yearlyPriceCents"`
	DailyPostLimit    *int     `yaml:"dailyPostLimit"`
	PlatformLimit     *int     `yaml:"platformLimit"`
	Features          []string `yaml:"features"`
	Active            *bool    `yaml:"active"`
}

type planFile struct {
	Plans []PlanSeed `yaml:"plans"`
}

var defaultFeatures = map[entitlements.Tier][]string{
	entitlements.TierTrial: {
		"2 posts per day",
		"Up to 2 platforms per post",
		"Image posts",
	},
	entitlements.TierPro: {
		"50 posts per day",
		"Up to 5 platforms per post",
		"All content types",
		"Scheduled posting",
	},
	entitlements.TierUltraPro: {
		"Unlimited posts",
		"Unlimited platforms",
		"All content types",
		"Scheduled posting",
		"Real-time analytics",
	},
}

// DefaultPlans derives the catalog rows from the entitlement table and checkout prices.
func DefaultPlans() []PlanSeed {
	names := map[entitlements.Tier]string{
		entitlements.TierTrial:    "Trial",
		entitlements.TierPro:      "Pro",
		entitlements.TierUltraPro: "Ultra Pro",
	}
	var out []PlanSeed
	for _, t := range entitlements.Tiers {
		p := entitlements.LimitsFor(t)
		price, _ := billing.PriceFor(t)
		out = append(out, PlanSeed{
			Name:              names[t],
			Tier:              string(t),
			MonthlyPriceCents: price.MonthlyCents,
			YearlyPriceCents:  price.YearlyCents,
			DailyPostLimit:    p.DailyPosts,
			PlatformLimit:     p.Platforms,
			Features:          defaultFeatures[t],
		})
	}
	return out
}

// LoadPlans reads plan seeds from a YAML file with a top-level "plans" list.
func LoadPlans(path string) ([]PlanSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}
	var f planFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse plans file: %w", err)
	}
	if len(f.Plans) == 0 {
		return nil, fmt.Errorf("plans file %s lists no plans", path)
	}
	for i, p := range f.Plans {
		if p.Name == "" {
			return nil, fmt.Errorf("plan %d: name is required", i)
		}
		t, err := entitlements.ParseTier(p.Tier)
		if err != nil {
			return nil, fmt.Errorf("plan %q: %w", p.Name, err)
		}
		f.Plans[i].Tier = string(t)
	}
	return f.Plans, nil
}

// SeedPlans upserts every plan keyed by tier and returns how many rows were written.
func SeedPlans(ctx context.Context, db *sql.DB, plans []PlanSeed) (int, error) {
	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		for _, p := range plans {
			features := p.Features
			if features == nil {
				features = []string{}
			}
			raw, err := json.Marshal(features)
			if err != nil {
				return err
			}
			active := true
			if p.Active != nil {
				active = *p.Active
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO public.subscription_plans
					(name, tier, stripe_price_id, monthly_price_cents, yearly_price_cents,
					 daily_post_limit, platform_limit, features, is_active)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
				ON CONFLICT (tier) DO UPDATE SET
					name = EXCLUDED.name,
					stripe_price_id = EXCLUDED.stripe_price_id,
					monthly_price_cents = EXCLUDED.monthly_price_cents,
					yearly_price_cents = EXCLUDED.yearly_price_cents,
					daily_post_limit = EXCLUDED.daily_post_limit,
					platform_limit = EXCLUDED.platform_limit,
					features = EXCLUDED.features,
					is_active = EXCLUDED.is_active`,
				p.Name, p.Tier, p.StripePriceID, p.MonthlyPriceCents, p.YearlyPriceCents,
				p.DailyPostLimit, p.PlatformLimit, string(raw), active,
			); err != nil {
				return fmt.Errorf("upsert plan %s: %w", p.Tier, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(plans), nil
}

func (a *app) newPlansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Manage the subscription plan catalog",
	}

	var file string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert or update the plan catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			plans := DefaultPlans()
			if file != "" {
				var err error
				if plans, err = LoadPlans(file); err != nil {
					return err
				}
			}
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := SeedPlans(cmd.Context(), db, plans)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d plans\n", n)
			return nil
		},
	}
	seed.Flags().StringVarP(&file, "file", "f", "", "YAML file with a top-level plans list (default: built-in catalog)")
	cmd.AddCommand(seed)
	return cmd
}
