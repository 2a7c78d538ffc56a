package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/radar/internal/models"
	"github.com/spf13/cobra"
)

var clusterID string

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Group saved signals into themes",
	Long: `Group the saved signal set into named themes.

The server clusters with the configured model and falls back to lexical
grouping when the model is unavailable. The resulting theme set is
persisted under a short id; pass --id to print a stored set instead of
clustering again.

Examples:
  radar cluster
  radar cluster --id 3f2a9c1d`,
	RunE: runCluster,
}

func init() {
	clusterCmd.Flags().StringVar(&clusterID, "id", "", "print a stored theme set instead of clustering")
}

func runCluster(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Titles for member display. The theme set only carries signal ids.
	saved, err := api.Saved(ctx, 0)
	if err != nil {
		return fmt.Errorf("list saved signals: %w", err)
	}
	titles := make(map[string]string, len(saved))
	for _, sig := range saved {
		titles[sig.ID] = sig.Title
	}

	var set models.ThemeSet
	if clusterID != "" {
		set, err = api.Themes(ctx, clusterID)
		if err != nil {
			return fmt.Errorf("get theme set: %w", err)
		}
	} else {
		set, err = api.Cluster(ctx, nil)
		if err != nil {
			return fmt.Errorf("cluster: %w", err)
		}
	}

	if len(set.Themes) == 0 {
		fmt.Println("No themes found.")
		return nil
	}

	fmt.Printf("Themes (%d):\n\n", len(set.Themes))
	for i, theme := range set.Themes {
		fmt.Printf("%d. %s [%s] (%d signals)\n", i+1, theme.Name, theme.Strength, len(theme.SignalIDs))
		if theme.Description != "" {
			fmt.Printf("   %s\n", theme.Description)
		}
		for _, id := range theme.SignalIDs {
			title, ok := titles[id]
			if !ok {
				title = id
			}
			fmt.Printf("   - %s\n", title)
		}
		fmt.Println()
	}

	if clusterID == "" && set.ID != "" {
		fmt.Printf("Theme set saved as %s (radar cluster --id %s)\n", set.ID, set.ID)
	}

	return nil
}
