package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/raphaelgruber/radar/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	scanMission string
	scanMode    string
	scanLimit   int
	scanNoSave  bool
	scanPlain   bool
	scanWS      bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <topic>",
	Short: "Scan a topic and stream discovered signals",
	Long: `Scan a topic and stream signals as the server discovers them.

Agent mode (the default) drives a tool-using model run and emits one
line per signal. Snapshot mode asks for the whole set in a single
generation, feeds mode sweeps the RSS watchlist instead of calling
the model.

On a terminal the scan renders a live view; pipe the output or pass
--plain to get one line per event instead.

Examples:
  radar scan "quantum networking"
  radar scan "GLP-1 research" --mission "Health & Longevity"
  radar scan "solid-state batteries" --mode feeds --limit 5
  radar scan "fusion startups" --mode snapshot
  radar scan "coding agents" --no-save --plain`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanMission, "mission", "m", "", "mission label for discovered signals")
	scanCmd.Flags().StringVar(&scanMode, "mode", "agent", "scan mode: agent, snapshot, or feeds")
	scanCmd.Flags().IntVarP(&scanLimit, "limit", "n", 0, "max signals to ask for (0 = server default)")
	scanCmd.Flags().BoolVar(&scanNoSave, "no-save", false, "stream without saving signals")
	scanCmd.Flags().BoolVar(&scanPlain, "plain", false, "plain line output even on a terminal")
	scanCmd.Flags().BoolVar(&scanWS, "ws", false, "stream over WebSocket instead of NDJSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	req := models.ScanRequest{
		Topic:   args[0],
		Mission: scanMission,
		Mode:    scanMode,
		Limit:   scanLimit,
		NoSave:  scanNoSave,
	}
	ctx := context.Background()

	// Snapshot mode returns one document instead of a stream.
	if models.ParseMode(scanMode) == models.ModeSnapshot {
		signals, err := api.ScanSnapshot(ctx, req)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		printSignals(signals)
		return nil
	}

	stream := api.Scan
	if scanWS {
		stream = api.ScanWS
	}

	if !scanPlain && term.IsTerminal(int(os.Stdout.Fd())) {
		return runScanView(req, stream)
	}

	return stream(ctx, req, printStreamLine)
}

// printStreamLine writes one scan event as a plain text line.
func printStreamLine(line models.StreamLine) error {
	if sig := line.Payload(); sig != nil {
		fmt.Printf("- %s [%s]\n", sig.Title, sig.Mission)
		if verbose {
			if sig.Summary != "" {
				fmt.Printf("  %s\n", sig.Summary)
			}
			if sig.URL != "" {
				fmt.Printf("  %s\n", sig.URL)
			}
		}
		return nil
	}
	if line.Status == models.LineError {
		fmt.Fprintf(os.Stderr, "warning: %s\n", line.Msg)
		return nil
	}
	if line.Msg != "" {
		fmt.Println(line.Msg)
	}
	return nil
}

// printSignals renders a ranked signal list.
func printSignals(signals []models.Signal) {
	if len(signals) == 0 {
		fmt.Println("No signals found.")
		return
	}

	fmt.Printf("Found %d signals:\n\n", len(signals))
	for i, sig := range signals {
		fmt.Printf("%d. %s [%s]\n", i+1, sig.Title, sig.Mission)
		if sig.Summary != "" {
			fmt.Printf("   %s\n", sig.Summary)
		}
		if sig.URL != "" {
			fmt.Printf("   %s\n", sig.URL)
		}
		if verbose {
			fmt.Printf("   Score: %.1f\n", sig.TotalScore())
		}
		fmt.Println()
	}
}
