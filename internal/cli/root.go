package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tradelab/draudit/pkg/color"
	"github.com/tradelab/draudit/pkg/config"
	"github.com/tradelab/draudit/pkg/logging"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// app holds the persistent flags and the configuration loaded for one
// invocation.
type app struct {
	root       string
	runName    string
	jsonOutput bool
	noColor    bool

	cfg *config.Config
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "draudit",
		Short: "draudit - deterministic decision audit and replay",
		Long: `draudit stores the input snapshots of trading-analysis decisions under
their SHA-256 content hash, appends immutable decision records that reference
them, and replays decisions to prove that identical inputs reproduce
identical outputs. Any doubt about integrity rejects the run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.root, "root", envOr("DRAUDIT_ROOT", "."), "root directory holding runs/ and draudit.yaml")
	flags.StringVar(&a.runName, "run", envOr("DRAUDIT_RUN", "default"), "run name")
	flags.BoolVar(&a.jsonOutput, "json", false, "output in JSON format")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		a.snapshotCmd(),
		a.recordCmd(),
		a.replayCmd(),
		a.auditCmd(),
		a.migrateCmd(),
		a.doctorCmd(),
		a.diffCmd(),
		a.infoCmd(),
		a.configCmd(),
		a.versionCmd(),
		completionCmd(),
	)
	return rootCmd
}

// Execute runs the root command and exits 1 on any failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmtErr(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	color.Init(a.noColor)
	cfg, err := config.Load(a.root)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logger, err := logging.Configure(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	logging.SetGlobal(logger)
	return nil
}

// outputJSON prints v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtErr(w io.Writer, format string, args ...any) {
	prefix := "draudit: "
	if color.Enabled() {
		prefix = color.Error("draudit:") + " "
	}
	fmt.Fprintf(w, prefix+format+"\n", args...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
