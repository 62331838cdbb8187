package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradelab/draudit/pkg/color"
	"github.com/tradelab/draudit/pkg/draudit"
	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/model"
)

func (a *app) recordCmd() *cobra.Command {
	var (
		snapshotFiles []string
		cursor        int
	)
	cmd := &cobra.Command{
		Use:   "record [file|-]",
		Short: "Append a decision record to the run's log",
		Long: `Append a decision record to the run's log.

The input is a JSON object with at least "facts". Missing members are filled
in: schema_version (current), decision_id (random UUID), timestamp (now).
Each --snapshot file is stored first and its hash is added to
snapshot_hashes. Every referenced snapshot must exist in the run.

--cursor N makes the append resumable: it writes line N+1 only when the log
holds exactly N lines, and is a no-op when line N+1 already holds the
same record (timestamps aside).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stdinUses := 0
			if len(args) == 0 || args[0] == "-" {
				stdinUses++
			}
			for _, f := range snapshotFiles {
				if f == "-" {
					stdinUses++
				}
			}
			if stdinUses > 1 {
				return errclass.ErrRecordInvalid.WithMessage("standard input can feed only one of the record and its snapshots")
			}
			raw, err := readJSON(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if raw.Kind() != jsonutil.KindObject {
				return errclass.ErrRecordInvalid.WithMessagef("record must be a JSON object, got %s", raw.Kind())
			}

			r, err := a.openRun()
			if err != nil {
				return err
			}
			defer r.Close()
			store, err := r.Store()
			if err != nil {
				return err
			}

			var hashes []jsonutil.Value
			if existing, ok := raw.Get(model.FieldSnapshotHashes); ok {
				if existing.Kind() != jsonutil.KindArray {
					return errclass.ErrRecordInvalid.WithMessage("snapshot_hashes must be an array")
				}
				hashes = existing.Items()
			}
			for _, f := range snapshotFiles {
				payload, err := readJSON(cmd.InOrStdin(), []string{f})
				if err != nil {
					return fmt.Errorf("snapshot %s: %w", f, err)
				}
				h, err := store.Put(ctx, payload)
				if err != nil {
					return fmt.Errorf("snapshot %s: %w", f, err)
				}
				hashes = append(hashes, jsonutil.String(string(h)))
			}
			if len(snapshotFiles) > 0 {
				raw = raw.With(model.FieldSnapshotHashes, jsonutil.Array(hashes...))
			}
			if _, ok := raw.Get(model.FieldSchemaVersion); !ok {
				raw = raw.With(model.FieldSchemaVersion, jsonutil.String(model.CurrentSchema.String()))
			}
			if _, ok := raw.Get(model.FieldDecisionID); !ok {
				raw = raw.With(model.FieldDecisionID, jsonutil.String(draudit.NewDecisionID()))
			}
			if _, ok := raw.Get(model.FieldTimestamp); !ok {
				raw = raw.With(model.FieldTimestamp, jsonutil.String(time.Now().UTC().Format(time.RFC3339)))
			}

			rec, err := model.DecodeRecord(raw)
			if err != nil {
				return err
			}
			for _, h := range rec.SnapshotHashes {
				ok, err := store.Exists(ctx, h)
				if err != nil {
					return err
				}
				if !ok {
					return errclass.ErrNotFound.WithMessagef("record references unstored snapshot %s", h)
				}
			}

			log := r.Log()
			if cursor >= 0 {
				err = log.AppendAt(ctx, cursor, rec)
			} else {
				err = log.Append(ctx, rec)
			}
			if err != nil {
				return fmt.Errorf("record: %w", err)
			}

			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]any{
					"decision_id": rec.DecisionID,
					"core_hash":   rec.CoreHash,
					"run":         r.Name,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s (core %s)\n", rec.DecisionID, color.Hash(rec.CoreHash.Short()))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&snapshotFiles, "snapshot", nil, "snapshot JSON file to store and reference (repeatable)")
	cmd.Flags().IntVar(&cursor, "cursor", -1, "expected line count before this append")
	return cmd
}
