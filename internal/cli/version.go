package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradelab/draudit/pkg/model"
)

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]string{
					"version":        Version,
					"schema_version": model.CurrentSchema.String(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "draudit %s (record schema %s)\n", Version, model.CurrentSchema)
			return nil
		},
	}
}
