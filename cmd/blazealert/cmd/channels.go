package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

var channelsProject string

// channelView is a channel without its config, which may hold secrets.
type channelView struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Provider  models.Provider `json:"provider"`
	Enabled   bool            `json:"enabled"`
}

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List notification channels",
	Long: `List the notification channels stored in the database, grouped by
project. Channel configs are not printed.

Examples:
  blazealert channels
  blazealert channels --project checkout -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		var projectIDs []string
		if channelsProject != "" {
			if _, err := store.Projects().GetByID(ctx, channelsProject); err != nil {
				return fmt.Errorf("get project: %w", err)
			}
			projectIDs = []string{channelsProject}
		} else {
			projects, err := store.Projects().List(ctx)
			if err != nil {
				return fmt.Errorf("list projects: %w", err)
			}
			for _, p := range projects {
				projectIDs = append(projectIDs, p.ID)
			}
		}

		views := []channelView{}
		for _, id := range projectIDs {
			channels, err := store.Channels().ListByProject(ctx, id)
			if err != nil {
				return fmt.Errorf("list channels: %w", err)
			}
			for _, ch := range channels {
				views = append(views, channelView{
					ID: ch.ID, ProjectID: ch.ProjectID, Name: ch.Name,
					Provider: ch.Provider, Enabled: ch.Enabled,
				})
			}
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(out, map[string]any{"channels": views})
		}
		if len(views) == 0 {
			fmt.Fprintln(out, "No channels found.")
			return nil
		}

		fmt.Fprintf(out, "\n%-20s  %-16s  %-10s  %-8s  %s\n", "ID", "PROJECT", "PROVIDER", "ENABLED", "NAME")
		fmt.Fprintln(out, strings.Repeat("-", 80))
		for _, v := range views {
			fmt.Fprintf(out, "%-20s  %-16s  %-10s  %-8t  %s\n", v.ID, v.ProjectID, v.Provider, v.Enabled, v.Name)
		}
		return nil
	},
}

func init() {
	channelsCmd.Flags().StringVar(&channelsProject, "project", "", "only list channels of this project")
	rootCmd.AddCommand(channelsCmd)
}
