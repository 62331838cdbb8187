package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradelab/draudit/internal/diff"
)

func (a *app) diffCmd() *cobra.Command {
	var statOnly bool
	cmd := &cobra.Command{
		Use:   "diff <from> <to>",
		Short: "Show structural differences between two snapshots",
		Long: `Show structural differences between two stored snapshots.

Arguments are full hashes or unique prefixes. Changes are listed by JSON path.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, store, err := a.openStore()
			if err != nil {
				return err
			}
			defer r.Close()

			from, err := resolveHash(ctx, store, args[0])
			if err != nil {
				return err
			}
			to, err := resolveHash(ctx, store, args[1])
			if err != nil {
				return err
			}
			a1, err := store.Get(ctx, from)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", from.Short(), err)
			}
			a2, err := store.Get(ctx, to)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", to.Short(), err)
			}

			res := diff.Diff(a1, a2)
			out := cmd.OutOrStdout()
			switch {
			case a.jsonOutput:
				return outputJSON(out, res)
			case statOnly:
				fmt.Fprintf(out, "%d added, %d removed, %d modified\n", res.TotalAdded, res.TotalRemoved, res.TotalModified)
			default:
				fmt.Fprint(out, res.FormatHuman())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&statOnly, "stat", false, "show only counts")
	return cmd
}
