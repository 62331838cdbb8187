package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tradelab/draudit/pkg/config"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config <command>",
		Short: "Manage draudit configuration",
		Long: `Manage draudit configuration stored in <root>/draudit.yaml.

Every key can be overridden by an environment variable: DRAUDIT_ plus the
upper-cased key, with "__" for nesting (DRAUDIT_LOGGING__LEVEL=debug).

Keys:
  ` + strings.Join(config.Keys(), "\n  "),
		DisableFlagsInUseLine: true,
	}
	cmd.AddCommand(a.configShowCmd(), a.configGetCmd(), a.configSetCmd())
	return cmd
}

func (a *app) configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shown := *a.cfg
			if shown.Webhook.Secret != "" {
				shown.Webhook.Secret = "********"
			}
			if a.jsonOutput {
				values := make(map[string]string)
				for _, k := range config.Keys() {
					values[k], _ = shown.Get(k)
				}
				return outputJSON(cmd.OutOrStdout(), values)
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# draudit configuration\n# Location: %s\n\n", config.Path(a.root))
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func (a *app) configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.cfg.Get(args[0])
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]string{args[0]: v})
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func (a *app) configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in <root>/draudit.yaml.

Examples:
  draudit config set snapshot_backend sqlite
  draudit config set replay_timeout 45s
  draudit config set decision_command "python gate.py"
  draudit config set webhook.events audit.rejected`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(a.root, a.cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}
}
