package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/raphaelgruber/radar/internal/metrics"
	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show server metrics",
	Long: `Show server runtime metrics: operation timings, token usage, and
event counters. All values are in-memory and reset on server restart.

Examples:
  radar metrics`,
	RunE: runMetrics,
}

func runMetrics(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	snap, err := api.Metrics(ctx)
	if err != nil {
		return fmt.Errorf("get metrics: %w", err)
	}

	fmt.Printf("Radar Server Metrics (in-memory, since restart)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %.1f seconds\n", snap.UptimeSeconds)

	if snap.Scan != nil {
		fmt.Printf("\nScans:\n")
		printOpStats(snap.Scan)
	}

	if snap.LLMGenerate != nil {
		fmt.Printf("\nLLM Generate:\n")
		printOpStats(snap.LLMGenerate)
		printTokenStats(snap.LLMGenerate)
	}

	if snap.LLMTools != nil {
		fmt.Printf("\nLLM Tool Rounds:\n")
		printOpStats(snap.LLMTools)
		printTokenStats(snap.LLMTools)
	}

	if snap.StoreUpsert != nil {
		fmt.Printf("\nStore Upserts:\n")
		printOpStats(snap.StoreUpsert)
	}

	if snap.StoreQuery != nil {
		fmt.Printf("\nStore Queries:\n")
		printOpStats(snap.StoreQuery)
	}

	if snap.FeedFetch != nil {
		fmt.Printf("\nFeed Fetches:\n")
		printOpStats(snap.FeedFetch)
	}

	if len(snap.Counters) > 0 {
		fmt.Printf("\nCounters:\n")
		names := make([]string, 0, len(snap.Counters))
		for name := range snap.Counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-22s %d\n", name, snap.Counters[name])
		}
	}

	return nil
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Printf("  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgInputTokens)
	}
	fmt.Println()

	fmt.Printf("  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgOutputTokens)
	}
	fmt.Println()
}
