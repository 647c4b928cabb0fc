package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/callisto/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the server.

All validation errors are reported at once, not just the first one.

Examples:
  # Validate the default config
  callisto validate

  # Validate a specific file, printing the effective configuration
  callisto validate --config /etc/callisto/config.yaml --verbose`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(os.Stderr, "✗ %s is invalid:\n", cfgFile)
			for _, fieldErr := range verr.Errors {
				fmt.Fprintf(os.Stderr, "  - %s\n", fieldErr)
			}
			os.Exit(1)
		}
		return err
	}

	fmt.Printf("✓ %s is valid\n", cfgFile)

	if verbose {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render effective config: %w", err)
		}
		fmt.Println("\nEffective configuration (defaults and overrides applied):")
		fmt.Print(string(out))
	}
	return nil
}
