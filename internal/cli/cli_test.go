package cli

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4"

	"github.com/PortNumber53/liftx/internal/database"
)

type fakeMigrator struct {
	calls   []string
	steps   int
	version uint
	dirty   bool
	forced  int
	err     error
}

func (f *fakeMigrator) Up() error   { f.calls = append(f.calls, "up"); return f.err }
func (f *fakeMigrator) Down() error { f.calls = append(f.calls, "down"); return f.err }
func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = n
	return f.err
}
func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.forced = v
	return nil
}
func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, nil }

func execute(t *testing.T, d Deps, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(d)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mockDeps(t *testing.T, m *fakeMigrator) (Deps, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return Deps{
		LoadEnv: func(...string) error { return nil },
		OpenDB:  func(context.Context, string, database.Options) (*sql.DB, error) { return db, nil },
		NewMigrator: func(*sql.DB, string) (database.Migrator, error) {
			return m, nil
		},
	}, mock
}

func TestMigrate_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	d := Deps{
		OpenDB: func(context.Context, string, database.Options) (*sql.DB, error) {
			t.Fatalf("openDB should not be called")
			return nil, nil
		},
	}
	if _, err := execute(t, d, "migrate"); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestMigrate_Directions(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCalls string
		wantSteps int
		wantOut   string
	}{
		{"default up", nil, "up", 0, "Migration up completed successfully"},
		{"down all", []string{"--direction", "down"}, "down", 0, "Migration down completed successfully"},
		{"up steps", []string{"--steps", "2"}, "steps", 2, "Migration up completed successfully"},
		{"down steps", []string{"--direction", "down", "--steps", "1"}, "steps", -1, "Migration down completed successfully"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMigrator{}
			d, _ := mockDeps(t, m)
			args := append([]string{"--database-url", "postgres://x", "migrate"}, tt.args...)
			out, err := execute(t, d, args...)
			if err != nil {
				t.Fatalf("migrate: %v", err)
			}
			if strings.Join(m.calls, ",") != tt.wantCalls || m.steps != tt.wantSteps {
				t.Fatalf("calls=%v steps=%d", m.calls, m.steps)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Fatalf("unexpected output %q", out)
			}
		})
	}
}

func TestMigrate_NoChangeAndFailure(t *testing.T) {
	m := &fakeMigrator{err: migrate.ErrNoChange}
	d, _ := mockDeps(t, m)
	out, err := execute(t, d, "--database-url", "postgres://x", "migrate")
	if err != nil || !strings.Contains(out, "No migrations to apply") {
		t.Fatalf("out=%q err=%v", out, err)
	}

	m = &fakeMigrator{err: errors.New("boom")}
	d, _ = mockDeps(t, m)
	if _, err := execute(t, d, "--database-url", "postgres://x", "migrate"); err == nil {
		t.Fatalf("expected migration failure")
	}

	if _, err := execute(t, d, "--database-url", "postgres://x", "migrate", "--direction", "sideways"); err == nil {
		t.Fatalf("expected invalid direction error")
	}
}

func TestMigrate_Force(t *testing.T) {
	m := &fakeMigrator{}
	d, _ := mockDeps(t, m)
	out, err := execute(t, d, "--database-url", "postgres://x", "migrate", "--force", "3")
	if err != nil || m.forced != 3 || !strings.Contains(out, "Forced database to version 3") {
		t.Fatalf("out=%q err=%v forced=%d", out, err, m.forced)
	}

	clean := &fakeMigrator{version: 4}
	d, _ = mockDeps(t, clean)
	out, _ = execute(t, d, "--database-url", "postgres://x", "migrate", "--force-dirty")
	if !strings.Contains(out, "not dirty") || len(clean.calls) != 0 {
		t.Fatalf("clean database must not be forced: %q %v", out, clean.calls)
	}

	dirty := &fakeMigrator{version: 4, dirty: true}
	d, _ = mockDeps(t, dirty)
	out, _ = execute(t, d, "--database-url", "postgres://x", "migrate", "--force-dirty")
	if dirty.forced != 4 || !strings.Contains(out, "Forced dirty database to version 4") {
		t.Fatalf("out=%q forced=%d", out, dirty.forced)
	}
}

func TestDefaultPlans(t *testing.T) {
	plans := DefaultPlans()
	if len(plans) != 3 {
		t.Fatalf("expected 3 plans got %d", len(plans))
	}
	trial, pro, ultra := plans[0], plans[1], plans[2]
	if trial.Tier != "trial" || trial.MonthlyPriceCents != 0 || *trial.DailyPostLimit != 2 || *trial.PlatformLimit != 2 {
		t.Fatalf("unexpected trial plan %+v", trial)
	}
	if pro.MonthlyPriceCents != 1900 || pro.YearlyPriceCents != 18000 || *pro.DailyPostLimit != 50 {
		t.Fatalf("unexpected pro plan %+v", pro)
	}
	if ultra.DailyPostLimit != nil || ultra.PlatformLimit != nil || ultra.MonthlyPriceCents != 4900 {
		t.Fatalf("unexpected ultra plan %+v", ultra)
	}
}

func TestLoadPlans(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "plans.yaml")
	if err := os.WriteFile(good, []byte(`plans:
  - name: Pro
    tier: PRO
    monthlyPriceCents: 2500
    dailyPostLimit: 80
    features: ["More posts"]
    active: false
`), 0o644); err != nil {
		t.Fatal(err)
	}
	plans, err := LoadPlans(good)
	if err != nil {
		t.Fatalf("LoadPlans: %v", err)
	}
	if len(plans) != 1 || plans[0].Tier != "pro" || *plans[0].DailyPostLimit != 80 || *plans[0].Active {
		t.Fatalf("unexpected plans %+v", plans)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("plans:\n  - name: Gold\n    tier: gold\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPlans(bad); err == nil {
		t.Fatalf("expected unknown tier error")
	}
}

func TestPlansSeed(t *testing.T) {
	d, mock := mockDeps(t, nil)
	mock.ExpectBegin()
	for _, tier := range []string{"trial", "pro", "ultra_pro"} {
		mock.ExpectExec(`INSERT INTO public.subscription_plans .* ON CONFLICT \(tier\) DO UPDATE`).
			WithArgs(sqlmock.AnyArg(), tier, nil, sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), true).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	out, err := execute(t, d, "--database-url", "postgres://x", "plans", "seed")
	if err != nil {
		t.Fatalf("plans seed: %v", err)
	}
	if !strings.Contains(out, "Seeded 3 plans") {
		t.Fatalf("unexpected output %q", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet: %v", err)
	}
}

func TestUsersSetTier(t *testing.T) {
	d, mock := mockDeps(t, nil)
	mock.ExpectExec(`UPDATE public.users\s+SET subscription_tier = \$2`).
		WithArgs("auth0|42", "pro", 120).
		WillReturnResult(sqlmock.NewResult(0, 1))

	out, err := execute(t, d, "--database-url", "postgres://x", "users", "set-tier",
		"--open-id", "auth0|42", "--tier", "pro", "--pro-post-limit", "120")
	if err != nil {
		t.Fatalf("set-tier: %v", err)
	}
	if !strings.Contains(out, "User auth0|42 is now on pro") {
		t.Fatalf("unexpected output %q", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet: %v", err)
	}
}

func TestUsersSetTier_Rejections(t *testing.T) {
	d, mock := mockDeps(t, nil)
	cases := [][]string{
		{"users", "set-tier", "--tier", "pro"},
		{"users", "set-tier", "--open-id", "x", "--tier", "gold"},
		{"users", "set-tier", "--open-id", "x", "--tier", "trial", "--pro-post-limit", "5"},
		{"users", "set-tier", "--open-id", "x", "--tier", "pro", "--pro-post-limit", "0"},
	}
	for _, args := range cases {
		if _, err := execute(t, d, append([]string{"--database-url", "postgres://x"}, args...)...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}

	mock.ExpectExec(`UPDATE public.users`).WillReturnResult(sqlmock.NewResult(0, 0))
	if _, err := execute(t, d, "--database-url", "postgres://x", "users", "set-tier", "--open-id", "ghost", "--tier", "ultra_pro"); err == nil {
		t.Fatalf("expected not found for unknown user")
	}
}
