package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sqlward/sqlward/cli/internal/config"
	"github.com/sqlward/sqlward/cli/internal/ui"
	"github.com/sqlward/sqlward/internal/debug"
	"github.com/sqlward/sqlward/migrate/executor"
	"github.com/sqlward/sqlward/migrate/lint"
	"github.com/sqlward/sqlward/migrate/lock"
	"github.com/sqlward/sqlward/migrate/source"
)

func newMigrateCommand() *cobra.Command {
	var (
		check       bool
		verbose     bool
		strictLint  bool
		lockTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply all pending migrations",
		Long: `Discover migration files, verify applied ones against the ledger, and
apply every pending migration in one transaction each, strictly in version
order. With --check, report what would happen without touching the database;
a non-empty plan or a checksum mismatch exits non-zero, which CI uses as a
merge gate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if cmd.Flags().Changed("lock-timeout") {
				cfg.LockTimeout = lockTimeout
			}
			if strictLint {
				cfg.StrictLint = true
			}

			scanner := source.NewScanner(config.AppFs, cfg.MigrationsDir)
			runner := executor.NewRunner(db, cfg.Provider, scanner)

			if check {
				return runCheck(cmd.Context(), runner, verbose)
			}
			return runApply(cmd.Context(), runner, scanner, cfg)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "dry run: report pending migrations, exit 1 if any")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "with --check, print the SQL body of each pending migration")
	cmd.Flags().BoolVar(&strictLint, "strict-lint", false, "abort when the linter reports error-severity findings")
	cmd.Flags().DurationVar(&lockTimeout, "lock-timeout", 15*time.Second, "how long to wait for the advisory lock (0 = fail fast)")

	return cmd
}

// runCheck performs discovery and verification only. It never opens a write
// transaction and exits non-zero whenever anything is pending, so a branch
// protection rule can block merges on schema drift.
func runCheck(ctx context.Context, runner *executor.Runner, verbose bool) error {
	spin, _ := ui.Spinner("Verifying ledger")
	plan, err := runner.Check(ctx)
	if spin != nil {
		_ = spin.Stop()
	}
	if err != nil {
		return failure(err)
	}

	warnMissing(plan)

	if len(plan.Pending) == 0 {
		ui.Success("Ledger is up to date: %d applied, nothing pending", len(plan.Applied))
		return nil
	}

	rows := make([][]string, 0, len(plan.Pending))
	for _, f := range plan.Pending {
		rows = append(rows, []string{f.Version, f.Description})
	}
	ui.Table([]string{"Version", "Description"}, rows)

	if verbose {
		for _, f := range plan.Pending {
			ui.Dim("-- %s", f.Name())
			fmt.Println(f.RawContent)
		}
	}

	return failuref("%d migration(s) pending", len(plan.Pending))
}

func runApply(ctx context.Context, runner *executor.Runner, scanner *source.Scanner, cfg *config.Config) error {
	// Advisory lint pass before anything touches the database.
	files, err := scanner.List()
	if err != nil {
		return failure(err)
	}
	findings := lint.RunAll(files, lint.DefaultRules())
	for _, f := range findings {
		ui.Warning("%s: %s [%s/%s]", f.File, f.Message, f.Rule, f.Severity)
	}
	if cfg.StrictLint && lint.HasErrors(findings) {
		return failuref("lint gate: error-severity findings present")
	}

	release, err := lock.Acquire(ctx, runner.DB(), cfg.Provider, cfg.LockTimeout)
	if err != nil {
		return failure(err)
	}
	defer func() {
		if err := release(); err != nil {
			debug.Warn("failed to release advisory lock", "error", err)
		}
	}()

	var bar *pterm.ProgressbarPrinter
	runner.Progress = func(i, n int, f source.MigrationFile) {
		if bar == nil {
			bar, _ = ui.ProgressBar(n, "Applying migrations").Start()
		}
		ui.Info("Applying %s", f.Name())
		if bar != nil {
			bar.Increment()
		}
	}

	plan, err := runner.Apply(ctx)
	if err != nil {
		if executor.IsConnectivity(err) {
			return failuref("transient connectivity failure (safe to retry): %w", err)
		}
		return failure(err)
	}

	warnMissing(plan)

	if len(plan.Pending) == 0 {
		ui.Success("Nothing to apply: %d migration(s) already in the ledger", len(plan.Applied))
		return nil
	}

	ui.Success("Applied %d migration(s)", len(plan.Pending))
	return nil
}

// warnMissing reports ledger versions whose file is gone from disk. This is
// a warning, not an error: it happens legitimately when code containing an
// applied migration is rolled back.
func warnMissing(plan *executor.Plan) {
	for _, e := range plan.MissingFiles {
		ui.Warning("ledger version %s has no file on disk (applied %s)", e.Version, e.AppliedAt.Format("2006-01-02 15:04:05"))
	}
}
