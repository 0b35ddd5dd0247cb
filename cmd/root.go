package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalstats/harmonize/internal/config"
)

var (
	cfg     *config.Config
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "harmonize",
	Short: "Health cause-of-death data harmonization pipeline",
	Long:  "Loads tabular cause-of-death data, applies cleaning rules, maps source codes (e.g. ICD-10) to a target taxonomy (e.g. GBD causes) via a direct/fuzzy/AI cascade, runs quality checks, and emits output, report, review artifact, and a provenance ledger.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init writes a fresh config; don't require one to exist.
		if cmd.Name() == "init" {
			return config.InitLogger(config.LogConfig{Level: "info", Format: "console"})
		}

		c, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to the configuration YAML file (default config.yaml)")
}
