package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradelab/draudit/internal/doctor"
	"github.com/tradelab/draudit/pkg/color"
)

func (a *app) doctorCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check run health",
		Long: `Check run health.

Reports unreadable or torn log lines, referenced snapshots that are missing
or fail re-hashing, unreferenced snapshots and leftover temp files.
Use --strict to also re-hash unreferenced snapshots.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.requireRun()
			if err != nil {
				return err
			}
			defer r.Close()

			result, err := doctor.NewDoctor(r).Check(cmd.Context(), strict)
			if err != nil {
				return fmt.Errorf("doctor: %w", err)
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				if err := outputJSON(out, result); err != nil {
					return err
				}
			} else if len(result.Findings) == 0 {
				fmt.Fprintln(out, color.Success("Run is healthy."))
			} else {
				fmt.Fprintf(out, "Findings (%d):\n", len(result.Findings))
				for _, f := range result.Findings {
					where := ""
					if f.Line > 0 {
						where = fmt.Sprintf(" (line %d)", f.Line)
					}
					fmt.Fprintf(out, "  [%s] %s: %s%s\n", severity(f.Severity), f.Category, f.Description, where)
				}
			}
			if !result.Healthy {
				return fmt.Errorf("run %s is unhealthy", r.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "also re-hash unreferenced snapshots")
	return cmd
}

func severity(s string) string {
	switch s {
	case doctor.SeverityCritical, doctor.SeverityError:
		return color.Error(s)
	case doctor.SeverityWarning:
		return color.Warning(s)
	default:
		return color.Dim(s)
	}
}
