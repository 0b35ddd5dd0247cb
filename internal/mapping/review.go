package mapping

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vitalstats/harmonize/internal/provenance"
)

// ReviewRow is one line of the human-review artifact. human_mapping is
// left empty for a reviewer to fill in.
type ReviewRow struct {
	SourceCode     string  `csv:"source_code"`
	SuggestionRank int     `csv:"suggestion_rank"`
	SuggestedCause string  `csv:"suggested_gbd_cause"`
	Confidence     float64 `csv:"confidence_score"`
	HumanMapping   string  `csv:"human_mapping"`
}

// writeReview builds and persists the review artifact for the given
// distinct unresolved codes: one row per code and ranked suggestion, or a
// single rank-0 placeholder row when no suggestions exist for a code.
func (e *Engine) writeReview(ctx context.Context, codes []string) error {
	var rows []ReviewRow
	for _, code := range codes {
		suggestions, ok := e.pending[code]
		if !ok {
			suggestions = e.suggester.Suggest(ctx, code, 3)
		}
		if len(suggestions) == 0 {
			rows = append(rows, ReviewRow{SourceCode: code})
			continue
		}
		for rank, s := range suggestions {
			rows = append(rows, ReviewRow{
				SourceCode:     code,
				SuggestionRank: rank + 1,
				SuggestedCause: s.TargetCause,
				Confidence:     s.Confidence,
			})
		}
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "mapping: marshal review file")
	}
	if dir := filepath.Dir(e.reviewPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "mapping: create review dir")
		}
	}
	if err := os.WriteFile(e.reviewPath, data, 0o644); err != nil {
		return eris.Wrap(err, "mapping: write review file")
	}

	e.prov.Log("mapping", "review_file_generated", map[string]any{
		"review_file":          e.reviewPath,
		"unmapped_codes_count": len(codes),
	}, provenance.WithFile(e.reviewPath))
	zap.L().Info("review file generated",
		zap.String("file", e.reviewPath),
		zap.Int("unmapped_codes", len(codes)),
	)
	return nil
}

// MergeReview folds human decisions from a completed review file into a
// direct mapping CSV, creating it when absent. Rows with an empty
// human_mapping are ignored; later decisions for the same code win.
// It returns the number of codes merged.
func MergeReview(reviewPath, mappingPath string) (int, error) {
	data, err := os.ReadFile(reviewPath)
	if err != nil {
		return 0, eris.Wrap(err, "mapping: read review file")
	}
	var reviewed []ReviewRow
	if err := csvutil.Unmarshal(data, &reviewed); err != nil {
		return 0, eris.Wrap(err, "mapping: parse review file")
	}

	decisions := map[string]string{}
	var order []string
	for _, r := range reviewed {
		if r.HumanMapping == "" || r.SourceCode == "" {
			continue
		}
		if _, ok := decisions[r.SourceCode]; !ok {
			order = append(order, r.SourceCode)
		}
		decisions[r.SourceCode] = r.HumanMapping
	}
	if len(decisions) == 0 {
		return 0, nil
	}

	// Merge with any existing mapping file, preserving its row order.
	var rows []directRow
	existing := map[string]int{}
	if prior, err := os.ReadFile(mappingPath); err == nil {
		if err := csvutil.Unmarshal(prior, &rows); err != nil {
			return 0, eris.Wrap(err, "mapping: parse existing mapping file")
		}
		for i, r := range rows {
			existing[r.SourceCode] = i
		}
	}
	for _, code := range order {
		if i, ok := existing[code]; ok {
			rows[i].TargetCode = decisions[code]
		} else {
			rows = append(rows, directRow{SourceCode: code, TargetCode: decisions[code]})
		}
	}

	out, err := csvutil.Marshal(rows)
	if err != nil {
		return 0, eris.Wrap(err, "mapping: marshal mapping file")
	}
	if dir := filepath.Dir(mappingPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, eris.Wrap(err, "mapping: create mapping dir")
		}
	}
	if err := os.WriteFile(mappingPath, out, 0o644); err != nil {
		return 0, eris.Wrap(err, "mapping: write mapping file")
	}

	zap.L().Info("review decisions merged",
		zap.String("review", reviewPath),
		zap.String("mapping", mappingPath),
		zap.Int("corrections", len(decisions)),
	)
	return len(decisions), nil
}
