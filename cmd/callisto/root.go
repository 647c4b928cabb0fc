package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "callisto",
	Short: "Callisto - per-key admission-control server",
	Long: `Callisto is a per-key admission-control server combining a token-bucket
rate limiter with a bounded FIFO waiting queue.

Each key (client IP, API token, tenant) gets its own token bucket; requests
that cannot pay their cost immediately either fail fast with a retry estimate
or wait their turn in a bounded per-key queue.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
