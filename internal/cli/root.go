// Package cli provides the command-line interface for radar.
package cli

import (
	"github.com/raphaelgruber/radar/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// api talks to the radar server. Set before any command runs.
	api *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "radar",
	Short: "Tech signal scanner",
	Long: `Radar scans a topic for emerging tech signals using a tool-driven
model run, a single snapshot generation, or the RSS watchlist, and
streams results as they land.

Discovered signals are normalized, deduplicated, and saved on the
server; curate the saved set with 'saved' and 'status', and group it
into themes with 'cluster'.

All commands talk to a radar server (default http://localhost:8484,
override with --server or RADAR_SERVER_URL).`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		api = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "radar server URL (defaults to RADAR_SERVER_URL)")

	// Add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(savedCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(metricsCmd)
}
