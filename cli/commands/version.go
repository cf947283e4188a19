package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sqlward/sqlward/cli/internal/ui"
	"github.com/sqlward/sqlward/cli/internal/version"
)

func newVersionCommand() *cobra.Command {
	var checkLatest bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			fmt.Println(info.FullString())

			if checkLatest {
				latest := os.Getenv("SQLWARD_LATEST_VERSION")
				if latest == "" {
					return nil
				}
				older, err := info.IsOlderThan(latest)
				if err != nil {
					return failure(err)
				}
				if older {
					ui.Warning("A newer release is available: %s", latest)
					ui.Dim("Update with: go install github.com/sqlward/sqlward/cli@latest")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkLatest, "check-latest", false, "compare against SQLWARD_LATEST_VERSION and warn if outdated")

	return cmd
}
