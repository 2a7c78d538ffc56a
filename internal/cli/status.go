package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/radar/internal/models"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <url> <status>",
	Short: "Change the status of a saved signal",
	Long: `Change the status of a saved signal, identified by its URL.

Valid statuses: New, Active, Starred, Archived, Rejected, Shortlisted,
Saved (case-insensitive).

Examples:
  radar status https://example.com/post starred
  radar status https://example.com/post archived`,
	Args: cobra.ExactArgs(2),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	url := args[0]
	ctx := context.Background()

	// Parse locally so a typo fails before the round trip.
	status, err := models.ParseStatus(args[1])
	if err != nil {
		return err
	}

	if err := api.UpdateStatus(ctx, url, status); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	fmt.Printf("Marked %s as %s\n", url, status)
	return nil
}
