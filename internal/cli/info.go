package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradelab/draudit/internal/run"
	"github.com/tradelab/draudit/pkg/model"
)

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show runs under the root, or details of --run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			names, err := run.List(a.root)
			if err != nil {
				return err
			}
			info := map[string]any{
				"root":             a.root,
				"runs":             names,
				"snapshot_backend": a.cfg.SnapshotBackend,
				"schema_version":   model.CurrentSchema.String(),
			}

			r, err := a.openRun()
			if err != nil {
				return err
			}
			defer r.Close()
			if r.Exists() {
				records, err := r.Log().Len(ctx)
				if err != nil {
					return err
				}
				store, err := r.Store()
				if err != nil {
					return err
				}
				hashes, err := store.List(ctx)
				if err != nil {
					return err
				}
				info["run"] = r.Name
				info["records"] = records
				info["snapshots"] = len(hashes)
			}

			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), info)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Root: %s\n", a.root)
			fmt.Fprintf(out, "  Schema version: %s\n", model.CurrentSchema)
			fmt.Fprintf(out, "  Snapshot backend: %s\n", a.cfg.SnapshotBackend)
			fmt.Fprintf(out, "  Runs: %d\n", len(names))
			if r.Exists() {
				fmt.Fprintf(out, "Run: %s\n", r.Name)
				fmt.Fprintf(out, "  Records: %d\n", info["records"])
				fmt.Fprintf(out, "  Snapshots: %d\n", info["snapshots"])
			}
			return nil
		},
	}
}
