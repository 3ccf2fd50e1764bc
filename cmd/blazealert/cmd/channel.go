package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazealert/internal/alerting"
	"github.com/good-yellow-bee/blazealert/internal/models"
	"github.com/good-yellow-bee/blazealert/internal/notifier"
)

var testChannelFile string

var testChannelCmd = &cobra.Command{
	Use:   "test-channel <channel-id>",
	Short: "Send a test notification to a channel",
	Long: `Send a synthetic notification through a channel to check its
configuration end to end.

The channel is read from the database, or from a definitions file with
--file.

Examples:
  blazealert test-channel ops-slack
  blazealert test-channel ops-slack --file alerts.yaml`,
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

		ch, err := findChannel(cmd.Context(), cfg, registry, args[0])
		if err != nil {
			return err
		}

		adapter, chCfg, err := registry.ValidateChannel(ch)
		if err != nil {
			return fmt.Errorf("channel %s: %w", ch.ID, err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		res := adapter.SendTest(ctx, chCfg)

		if output == "json" {
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else if res.Success {
			fmt.Fprintf(cmd.OutOrStdout(), "Test notification sent via %s channel %q", res.Provider, ch.Name)
			if res.MessageID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (message id %s)", res.MessageID)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		}
		if limited, ok := adapter.(notifier.RateLimited); ok && verbose {
			st := limited.RateLimitStatus()
			if st.Enabled {
				fmt.Fprintf(cmd.OutOrStdout(), "Rate limit: %d/min, burst %d, %.1f available, %d dropped\n",
					st.PerMinute, st.Burst, st.Available, st.Dropped)
			}
		}

		if !res.Success {
			return fmt.Errorf("test notification failed: %s", res.Error)
		}
		return nil
	},
}

func init() {
	testChannelCmd.Flags().StringVarP(&testChannelFile, "file", "f", "", "read the channel from a definitions file")
	rootCmd.AddCommand(testChannelCmd)
}

func findChannel(ctx context.Context, cfg *Config, registry *notifier.Registry, id string) (*models.NotificationChannel, error) {
	if testChannelFile != "" {
		defs, err := alerting.LoadDefinitionsFile(testChannelFile, registry)
		if err != nil {
			return nil, err
		}
		for _, ch := range defs.Channels {
			if ch.ID == id {
				return ch, nil
			}
		}
		return nil, fmt.Errorf("channel %q not found in %s", id, testChannelFile)
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ch, err := store.Channels().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}
