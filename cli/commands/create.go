package commands

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/sqlward/sqlward/cli/internal/config"
	"github.com/sqlward/sqlward/cli/internal/ui"
	"github.com/sqlward/sqlward/migrate/scaffold"
)

func newCreateMigrationCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create:migration [description]",
		Short: "Scaffold a new timestamped migration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			description := strings.Join(args, " ")
			if description == "" {
				prompt := &survey.Input{
					Message: "Migration description:",
					Help:    "A few lowercase words, e.g. \"add category to words\"",
				}
				if err := survey.AskOne(prompt, &description, survey.WithValidator(survey.Required)); err != nil {
					return usage(fmt.Errorf("a migration description is required: %w", err))
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return failure(err)
			}

			scaffolder := scaffold.NewScaffolder(config.AppFs, cfg.MigrationsDir)
			path, err := scaffolder.CreateMigration(description)
			if err != nil {
				return failure(err)
			}

			ui.Success("Created %s", path)
			ui.Dim("Fill in the SQL body, then apply it with `sqlward migrate`.")
			return nil
		},
	}
}

func newCreateRevertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate:create-revert <version>",
		Short: "Scaffold a migration that reverses a prior one",
		Long: `Generate a new migration named revert_<original description>, pre-populated
with commented inverse-operation hints. The file is never applied
automatically; complete and review it first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return failure(err)
			}

			scaffolder := scaffold.NewScaffolder(config.AppFs, cfg.MigrationsDir)
			path, err := scaffolder.CreateRevert(args[0])
			if err != nil {
				return failure(err)
			}

			ui.Success("Created %s", path)
			ui.Warning("Review and complete the generated hints before applying.")
			return nil
		},
	}
}
