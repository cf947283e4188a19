package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sqlward/sqlward/cli/internal/config"
	"github.com/sqlward/sqlward/cli/internal/ui"
	"github.com/sqlward/sqlward/cli/internal/watch"
	"github.com/sqlward/sqlward/migrate/lint"
	"github.com/sqlward/sqlward/migrate/source"
)

func newLintCommand() *cobra.Command {
	var (
		strict    bool
		watchMode bool
		explain   bool
	)

	cmd := &cobra.Command{
		Use:   "migrate:lint",
		Short: "Scan migration files for non-idempotent SQL",
		Long: `Run heuristic idempotency checks over every migration file. Warnings are
advisory; error-severity findings exit 1. With --strict, warnings are treated
as errors too.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if explain {
				if err := ui.Markdown(lint.Catalogue(lint.DefaultRules())); err != nil {
					return failure(err)
				}
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return failure(err)
			}
			scanner := source.NewScanner(config.AppFs, cfg.MigrationsDir)

			if watchMode {
				return runLintWatch(cfg.MigrationsDir, scanner)
			}
			return runLint(scanner, strict || cfg.StrictLint)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")
	cmd.Flags().BoolVar(&watchMode, "watch", false, "re-lint whenever a migration file changes")
	cmd.Flags().BoolVar(&explain, "explain", false, "print the rule catalogue and exit")

	return cmd
}

func runLint(scanner *source.Scanner, strict bool) error {
	findings, err := lintOnce(scanner)
	if err != nil {
		return failure(err)
	}

	if lint.HasErrors(findings) {
		return failuref("lint failed: error-severity findings present")
	}
	if strict && len(findings) > 0 {
		return failuref("lint failed (--strict): %d finding(s)", len(findings))
	}
	return nil
}

func runLintWatch(dir string, scanner *source.Scanner) error {
	w, err := watch.NewWatcher(dir, func() error {
		if _, err := lintOnce(scanner); err != nil {
			ui.Error("%v", err)
		}
		return nil
	})
	if err != nil {
		return failure(err)
	}
	defer w.Stop()

	if err := w.Start(); err != nil {
		return failure(err)
	}

	ui.Info("Watching %s for changes (ctrl-c to stop)", dir)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}

func lintOnce(scanner *source.Scanner) ([]lint.Finding, error) {
	files, err := scanner.List()
	if err != nil {
		return nil, err
	}

	findings := lint.RunAll(files, lint.DefaultRules())
	if len(findings) == 0 {
		ui.Success("Lint clean: %d file(s) checked", len(files))
		return nil, nil
	}

	rows := make([][]string, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, []string{f.File, f.Rule, f.Severity.String(), f.Message})
	}
	ui.Table([]string{"File", "Rule", "Severity", "Message"}, rows)

	return findings, nil
}
