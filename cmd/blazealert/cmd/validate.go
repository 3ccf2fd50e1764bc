package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazealert/internal/alerting"
)

var validateCmd = &cobra.Command{
	Use:   "validate <definitions-file>",
	Short: "Validate an alert definitions file",
	Long: `Validate an alert definitions file without touching the database.

Checks YAML syntax, alert rules, references between projects, channels and
alerts, and every channel config against its provider. Email channels
need notifiers.smtp in the config file.

Example:
  blazealert validate alerts.yaml --config blazealert.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := buildRegistry(cfg)
		if err != nil {
			return fmt.Errorf("build notifiers: %w", err)
		}

		defs, err := alerting.LoadDefinitionsFile(args[0], registry)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d project(s), %d channel(s), %d alert(s))\n",
			args[0], len(defs.Projects), len(defs.Channels), len(defs.Alerts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
