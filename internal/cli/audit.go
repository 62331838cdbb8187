package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tradelab/draudit/internal/auditreport"
	"github.com/tradelab/draudit/internal/replay"
	"github.com/tradelab/draudit/pkg/color"
	"github.com/tradelab/draudit/pkg/logging"
	"github.com/tradelab/draudit/pkg/metrics"
	"github.com/tradelab/draudit/pkg/model"
	"github.com/tradelab/draudit/pkg/progress"
	"github.com/tradelab/draudit/pkg/webhook"
)

func (a *app) auditCmd() *cobra.Command {
	var (
		decisionCmd     string
		strict          string
		workers         int
		metricsTextfile string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Replay every record of the run and accept or reject it",
		Long: `Replay every record of the run in parallel and write audit_summary.json.

The run is accepted only when every record matches. Any mismatch, hash
mismatch, unreadable line or replay error rejects it and exits 1.

Examples:
  draudit audit --run 2024-06-01 --decision-cmd "python gate.py"
  draudit audit --strict full --metrics-textfile /var/lib/node_exporter/draudit.prom`,
		Args: cobra.NoArgs,
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
			if workers <= 0 {
				workers = a.cfg.AuditWorkers
			}
			r, store, err := a.openStore()
			if err != nil {
				return err
			}
			defer r.Close()

			log := r.Log()
			total, err := log.Len(ctx)
			if err != nil {
				return err
			}
			reporter := progress.New("audit", total, a.cfg.Progress && !a.jsonOutput, cmd.ErrOrStderr())

			agg := auditreport.New(log, replay.NewVerifier(store, replay.WithTimeout(timeout)),
				auditreport.WithWorkers(workers),
				auditreport.WithRun(r.Name),
				auditreport.WithProgress(reporter.Callback()),
			)
			s, err := agg.Audit(ctx, fn, mode)
			reporter.Done("")
			if err != nil {
				return fmt.Errorf("audit: %w", err)
			}
			if err := auditreport.WriteSummary(r.SummaryPath(), s); err != nil {
				return err
			}
			if metricsTextfile != "" {
				if err := metrics.Default().WriteTextfile(metricsTextfile); err != nil {
					return err
				}
			}
			a.notify(cmd, s)

			if a.jsonOutput {
				if err := outputJSON(cmd.OutOrStdout(), s); err != nil {
					return err
				}
			} else {
				printSummary(cmd.OutOrStdout(), s, r.SummaryPath())
			}
			if !s.Accepted {
				return fmt.Errorf("audit rejected: %d mismatched, %d hash mismatch, %d errors",
					s.Mismatched, s.HashMismatch, s.Errors)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&decisionCmd, "decision-cmd", "", "command that recomputes facts from snapshots on stdin")
	cmd.Flags().StringVar(&strict, "strict", "", "comparison mode: core or full (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel replays (default from config)")
	cmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file")
	return cmd
}

// notify posts the result to the configured webhook. Delivery failures are
// reported but do not change the audit outcome.
func (a *app) notify(cmd *cobra.Command, s *model.AuditSummary) {
	wh := a.cfg.Webhook
	if wh.URL == "" {
		return
	}
	timeout, _ := a.cfg.WebhookTimeoutDuration()
	events := make([]webhook.EventType, len(wh.Events))
	for i, e := range wh.Events {
		events[i] = webhook.EventType(e)
	}
	client := webhook.NewClient(webhook.Config{
		URL:        wh.URL,
		Secret:     wh.Secret,
		Events:     events,
		MaxRetries: wh.MaxRetries,
		Timeout:    timeout,
	})
	if err := client.NotifyAudit(cmd.Context(), s); err != nil {
		logging.Warn("webhook notification failed", map[string]any{"error": err.Error()})
		fmtErr(cmd.ErrOrStderr(), "warning: %v", err)
	}
}

func printSummary(w io.Writer, s *model.AuditSummary, path string) {
	verdict := color.Success("ACCEPTED")
	if !s.Accepted {
		verdict = color.Error("REJECTED")
	}
	fmt.Fprintf(w, "%s run %s (%s)\n", verdict, s.Run, s.Mode)
	fmt.Fprintf(w, "  records:       %d\n", s.TotalRecords)
	fmt.Fprintf(w, "  matched:       %d\n", s.Matched)
	fmt.Fprintf(w, "  mismatched:    %d\n", s.Mismatched)
	fmt.Fprintf(w, "  hash mismatch: %d\n", s.HashMismatch)
	fmt.Fprintf(w, "  errors:        %d\n", s.Errors)
	if len(s.OffendingRecords) > 0 {
		fmt.Fprintln(w, color.Header("Offending records:"))
		for _, o := range s.OffendingRecords {
			id := o.DecisionID
			if id == "" {
				id = "?"
			}
			fmt.Fprintf(w, "  line %d %s [%s] %s\n", o.Line, id, color.Outcome(string(o.Kind)), o.Detail)
			for _, d := range o.Diff {
				fmt.Fprintf(w, "      %s\n", d)
			}
		}
	}
	fmt.Fprintln(w, color.Dim("summary: "+path))
}
