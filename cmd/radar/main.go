// Package main provides the entry point for the radar CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/raphaelgruber/radar/internal/cli"
)

func main() {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
