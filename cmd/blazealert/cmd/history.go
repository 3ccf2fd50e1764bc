package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	historyAlertID string
	historyLimit   int
	historyOffset  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the history of an alert",
	Long: `Show the most recent history entries of an alert, newest first.

Example:
  blazealert history --alert checkout-errors --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyAlertID == "" {
			return fmt.Errorf("--alert is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		if _, err := store.Alerts().GetByID(ctx, historyAlertID); err != nil {
			return fmt.Errorf("get alert: %w", err)
		}
		entries, total, err := store.AlertHistory().ListByAlert(ctx, historyAlertID, historyLimit, historyOffset)
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(out, map[string]any{"entries": entries, "total": total})
		}

		if len(entries) == 0 {
			fmt.Fprintln(out, "No history found.")
			return nil
		}

		fmt.Fprintf(out, "\n%-19s  %-9s  %-9s  %10s  %10s  %s\n",
			"TIME", "FROM", "TO", "VALUE", "THRESHOLD", "NOTIFIED VIA")
		fmt.Fprintln(out, strings.Repeat("-", 90))
		for _, e := range entries {
			via := strings.Join(e.NotifiedVia, ",")
			if via == "" {
				via = "-"
			}
			fmt.Fprintf(out, "%-19s  %-9s  %-9s  %10.2f  %10.2f  %s\n",
				e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				e.PreviousState, e.State, e.Value, e.Threshold, via)
		}
		fmt.Fprintf(out, "\nShowing %d of %d entr(ies)\n", len(entries), total)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyAlertID, "alert", "", "alert id (required)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "entries to skip")
	rootCmd.AddCommand(historyCmd)
}
