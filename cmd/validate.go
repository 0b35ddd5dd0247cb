package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file without running the pipeline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		fmt.Println("Configuration is valid.")
		fmt.Printf("  Input:    %s (%s)\n", cfg.IO.InputFile, cfg.IO.InputFormat)
		fmt.Printf("  Output:   %s (%s)\n", cfg.IO.OutputFile, cfg.IO.OutputFormat)
		fmt.Printf("  Cleaning: %d rules (enabled: %t)\n", len(cfg.Cleaning.Rules), cfg.Cleaning.Enabled)
		fmt.Printf("  Mapping:  %d sources (enabled: %t)\n", len(cfg.Mapping.Sources), cfg.Mapping.Enabled)
		fmt.Printf("  Quality:  %d checks (enabled: %t)\n", len(cfg.Quality.Checks), cfg.Quality.Enabled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
