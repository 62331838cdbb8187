package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tradelab/draudit/internal/migrate"
	"github.com/tradelab/draudit/internal/replay"
	"github.com/tradelab/draudit/pkg/color"
	"github.com/tradelab/draudit/pkg/model"
)

func (a *app) replayCmd() *cobra.Command {
	var decisionCmd, strict string
	cmd := &cobra.Command{
		Use:   "replay <decision-id>",
		Short: "Replay one recorded decision and compare its facts",
		Long: `Replay one recorded decision.

The referenced snapshots are read back and re-hashed, passed as a JSON array
on stdin to --decision-cmd, and the facts it prints on stdout are compared
with the recorded ones. --strict core compares selection, risk state,
permission, action and reason codes; --strict full compares every fact
except the record's volatile paths.

Exits 1 unless the outcome is match.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mode, err := a.mode(strict)
			if err != nil {
				return err
			}
			fn, err := a.decisionFunc(decisionCmd)
			if err != nil {
				return err
			}
			timeout, err := a.cfg.ReplayTimeoutDuration()
			if err != nil {
				return err
			}
			r, store, err := a.openStore()
			if err != nil {
				return err
			}
			defer r.Close()

			line, rec, err := migrate.New().FindRecord(ctx, r.Log(), args[0])
			if err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			res := replay.NewVerifier(store, replay.WithTimeout(timeout)).Verify(ctx, rec, fn, mode)
			res.Line = line

			if a.jsonOutput {
				if err := outputJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printResult(cmd.OutOrStdout(), res)
			}
			if res.Outcome != model.OutcomeMatch {
				return fmt.Errorf("replay %s: %s", res.DecisionID, res.Outcome)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&decisionCmd, "decision-cmd", "", "command that recomputes facts from snapshots on stdin")
	cmd.Flags().StringVar(&strict, "strict", "", "comparison mode: core or full (default from config)")
	return cmd
}

func printResult(w io.Writer, res *replay.Result) {
	fmt.Fprintf(w, "%s (line %d, %s): %s\n", res.DecisionID, res.Line, res.Mode, color.Outcome(string(res.Outcome)))
	if res.Detail != "" && res.Outcome != model.OutcomeMatch {
		fmt.Fprintf(w, "  %s\n", res.Detail)
	}
	if res.Diff != nil && !res.Diff.Empty() {
		for _, l := range res.Diff.Lines() {
			fmt.Fprintf(w, "    %s\n", l)
		}
	}
}
