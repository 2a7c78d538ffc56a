package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/radar/internal/models"
	"github.com/spf13/cobra"
)

var savedLimit int

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "List saved signals",
	Long: `List saved signals, newest first.

Examples:
  radar saved
  radar saved --limit 10
  radar saved -v`,
	RunE: runSaved,
}

func init() {
	savedCmd.Flags().IntVarP(&savedLimit, "limit", "n", 50, "max results (0 = all)")
}

func runSaved(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	signals, err := api.Saved(ctx, savedLimit)
	if err != nil {
		return fmt.Errorf("list saved signals: %w", err)
	}

	if len(signals) == 0 {
		fmt.Println("No saved signals.")
		return nil
	}

	fmt.Printf("Saved signals (%d):\n\n", len(signals))
	for _, sig := range signals {
		statusMark := ""
		if sig.Status != "" && sig.Status != models.StatusNew {
			statusMark = fmt.Sprintf(" [%s]", strings.ToLower(string(sig.Status)))
		}
		fmt.Printf("- %s [%s]%s\n", sig.Title, sig.Mission, statusMark)
		if sig.URL != "" {
			fmt.Printf("  %s\n", sig.URL)
		}
		if verbose {
			if sig.Summary != "" {
				fmt.Printf("  %s\n", sig.Summary)
			}
			fmt.Printf("  Score: %.1f\n", sig.TotalScore())
		}
	}

	return nil
}
