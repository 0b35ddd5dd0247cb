package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalstats/harmonize/internal/mapping"
)

var (
	reviewFilePath  string
	reviewMappingTo string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Merge human review decisions into a direct mapping file",
	Long:  "Reads a completed human review CSV (rows with human_mapping filled in) and folds the decisions into a direct mapping file, so the next run resolves those codes via the direct source.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		merged, err := mapping.MergeReview(reviewFilePath, reviewMappingTo)
		if err != nil {
			return eris.Wrap(err, "review")
		}

		zap.L().Info("review merge complete",
			zap.String("review", reviewFilePath),
			zap.String("mapping", reviewMappingTo),
			zap.Int("merged", merged),
		)
		fmt.Printf("Merged %d human decisions into %s\n", merged, reviewMappingTo)
		return nil
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewFilePath, "review", "", "path to the completed review CSV (required)")
	reviewCmd.Flags().StringVar(&reviewMappingTo, "mapping", "", "path to the direct mapping CSV to update (required)")
	_ = reviewCmd.MarkFlagRequired("review")
	_ = reviewCmd.MarkFlagRequired("mapping")
	rootCmd.AddCommand(reviewCmd)
}
