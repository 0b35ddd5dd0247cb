package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vitalstats/harmonize/internal/config"
)

var initOutPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat(initOutPath); err == nil {
			return eris.Errorf("init: %s already exists", initOutPath)
		}

		data, err := yaml.Marshal(defaultConfig())
		if err != nil {
			return eris.Wrap(err, "init: marshal config")
		}
		if err := os.WriteFile(initOutPath, data, 0o644); err != nil {
			return eris.Wrap(err, "init: write config")
		}

		fmt.Printf("Wrote starter configuration to %s\n", initOutPath)
		return nil
	},
}

func defaultConfig() *config.Config {
	return &config.Config{
		IO: config.IOConfig{
			InputFile:    "data/input.csv",
			OutputFile:   "output/harmonized_data.csv",
			InputFormat:  "csv",
			OutputFormat: "csv",
		},
		Cleaning: config.CleaningConfig{
			Enabled: true,
			Rules: []config.Rule{
				{Name: "normalize_column_names", Enabled: true},
				{Name: "remove_duplicates", Enabled: true},
				{Name: "normalize_sex", Enabled: true, Parameters: config.Params{"column": "sex"}},
				{Name: "standardize_ages", Enabled: true, Parameters: config.Params{
					"column": "age", "min_age": 0, "max_age": 150,
				}},
			},
		},
		Mapping: config.MappingConfig{
			Enabled:      true,
			SourceColumn: "icd10_code",
			TargetColumn: "gbd_cause",
			ReviewFile:   "human_review_required.csv",
			Sources: []config.MappingSource{
				{Type: config.SourceDirect, File: "mappings/icd10_to_gbd.csv", Version: "2024-01", Threshold: config.DefaultThreshold, Enabled: true},
				{Type: config.SourceFuzzy, File: "mappings/gbd_causes.csv", Threshold: config.DefaultThreshold, Enabled: false},
				{Type: config.SourceAI, File: "mappings/gbd_causes.csv", Threshold: config.DefaultThreshold, Enabled: false},
			},
		},
		Quality: config.QualityConfig{
			Enabled: true,
			Checks: []config.Rule{
				{Name: "check_age_range", Enabled: true},
				{Name: "check_sex_values", Enabled: true},
				{Name: "check_unmapped_codes", Enabled: true, Parameters: config.Params{
					"target_column": "gbd_cause", "source_column": "icd10_code",
				}},
				{Name: "check_completeness", Enabled: true, Parameters: config.Params{
					"required_columns": []string{"icd10_code", "age", "sex"},
				}},
			},
		},
		Reporting: config.ReportingConfig{
			Enabled:    true,
			OutputFile: "harmonization_report.md",
			Format:     "markdown",
		},
		Log: config.LogConfig{Level: "info", Format: "json"},
	}
}

func init() {
	initCmd.Flags().StringVar(&initOutPath, "out", "config.yaml", "path for the generated configuration file")
	rootCmd.AddCommand(initCmd)
}
