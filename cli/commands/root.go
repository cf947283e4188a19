// Package commands implements the sqlward CLI.
package commands

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlward/sqlward/cli/internal/config"
	"github.com/sqlward/sqlward/cli/internal/ui"
	"github.com/sqlward/sqlward/internal/debug"
)

// Exit codes form the CI contract: pipelines treat any non-zero exit as
// deploy-blocking.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// codedError attaches an exit code to an error. Errors without a code are
// invocation problems and exit with ExitUsage.
type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// failure wraps a runtime error so Execute exits with ExitFailure.
func failure(err error) error {
	return &codedError{err: err, code: ExitFailure}
}

func failuref(format string, args ...interface{}) error {
	return failure(fmt.Errorf(format, args...))
}

// usage wraps an invocation error so Execute exits with ExitUsage.
func usage(err error) error {
	return &codedError{err: err, code: ExitUsage}
}

// NewRootCommand builds the sqlward command tree.
func NewRootCommand() *cobra.Command {
	var debugFlag bool

	root := &cobra.Command{
		Use:           "sqlward",
		Short:         "Checksum-verified SQL schema migration runner",
		Long:          "sqlward discovers ordered SQL migration files, verifies their integrity against an applied-migration ledger, and applies pending ones transactionally and exactly once.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			debug.Init(debugFlag)
		},
	}

	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(newMigrateCommand())
	root.AddCommand(newLintCommand())
	root.AddCommand(newCreateMigrationCommand())
	root.AddCommand(newCreateRevertCommand())
	root.AddCommand(newVersionCommand())

	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		ui.Error("%v", err)
		return exitCode(err)
	}
	return ExitOK
}

// exitCode maps an error to an exit code. Errors produced outside our RunE
// bodies (flag parsing, unknown commands, argument validation) carry no code
// and are invalid invocations.
func exitCode(err error) int {
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return ExitUsage
}

// openDB loads configuration and opens the target database.
func openDB() (*sql.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, failure(err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, nil, usage(err)
	}

	driver, dsn, err := cfg.DSN()
	if err != nil {
		return nil, nil, usage(err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, failuref("failed to open database: %w", err)
	}

	debug.Debug("database opened", "provider", cfg.Provider, "migrations_dir", cfg.MigrationsDir)
	return db, cfg, nil
}
