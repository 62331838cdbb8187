package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradelab/draudit/internal/migrate"
)

func (a *app) migrateCmd() *cobra.Command {
	var listRules bool
	cmd := &cobra.Command{
		Use:   "migrate <src> <dst>",
		Short: "Rewrite a decision log to the current record schema",
		Long: `Rewrite every record of the log at <src> to the current schema and write
the result to <dst>. The source is never modified and <dst> must not exist.
The first record that cannot be migrated stops the batch and nothing is
written.

Use --rules to print the documented migration rules.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if listRules {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			m := migrate.New()
			if listRules {
				for _, major := range []int{1} {
					for _, rule := range m.Rules(major) {
						fmt.Fprintf(cmd.OutOrStdout(), "v%d %s: %s\n", major, rule.Name, rule.Doc)
					}
				}
				return nil
			}
			res, err := m.MigrateFile(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d of %d records to %s\n", res.Migrated, res.Lines, res.Dest)
			return nil
		},
	}
	cmd.Flags().BoolVar(&listRules, "rules", false, "list migration rules and exit")
	return cmd
}
