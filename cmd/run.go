package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalstats/harmonize/internal/pipeline"
	"github.com/vitalstats/harmonize/internal/provenance"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the harmonization pipeline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(); err != nil {
			return err
		}

		prov := provenance.New()
		p := pipeline.New(cfg, prov, nil)

		result, err := p.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "run")
		}

		summary := prov.Summarize()
		zap.L().Info("harmonization complete",
			zap.String("run_id", summary.RunID),
			zap.Int("rows", result.Data.NumRows()),
			zap.Int("provenance_entries", summary.TotalEntries),
		)

		fmt.Printf("Harmonization complete.\n")
		fmt.Printf("  Rows processed:  %d\n", result.Data.NumRows())
		fmt.Printf("  Output file:     %s\n", cfg.IO.OutputFile)
		if result.Quality != nil {
			fmt.Printf("  Quality score:   %.1f / 100 (%d issues)\n",
				result.Quality.QualityScore, len(result.Quality.Issues))
		}
		fmt.Printf("  Provenance log:  %s\n", result.ProvenanceFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
