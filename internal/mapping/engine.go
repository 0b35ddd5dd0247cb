// Package mapping resolves source cause codes to a target taxonomy
// through an ordered cascade of mapping sources: exact lookups first,
// fuzzy string similarity next, AI-assisted similarity last. Each source
// sees only the rows its predecessors left unresolved, so a row is
// resolved at most once and source order is a priority cascade.
package mapping

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/vitalstats/harmonize/internal/config"
	"github.com/vitalstats/harmonize/internal/dataset"
	"github.com/vitalstats/harmonize/internal/provenance"
)

// Engine maps source codes to target causes.
type Engine struct {
	sourceColumn string
	targetColumn string
	suggester    Suggester
	prov         *provenance.Tracker
	reviewPath   string

	// Suggestions retained from the ai source for the review artifact,
	// keyed by source code.
	pending map[string][]Suggestion
}

// NewEngine creates a mapping Engine. suggester may be nil (treated as
// NoopSuggester); the tracker may be nil. reviewPath is where the
// human-review artifact is written when codes stay unresolved.
func NewEngine(sourceColumn, targetColumn string, suggester Suggester, prov *provenance.Tracker, reviewPath string) *Engine {
	if suggester == nil {
		suggester = NoopSuggester{}
	}
	if reviewPath == "" {
		reviewPath = "human_review_required.csv"
	}
	return &Engine{
		sourceColumn: sourceColumn,
		targetColumn: targetColumn,
		suggester:    suggester,
		prov:         prov,
		reviewPath:   reviewPath,
		pending:      map[string][]Suggestion{},
	}
}

// Apply runs the enabled sources in configured order on a copy of d and
// returns the copy with the target column filled where resolution
// succeeded. Rows that remain unresolved are routed to the review
// artifact. A missing source column is non-fatal: the input is returned
// unchanged.
func (e *Engine) Apply(ctx context.Context, d *dataset.Dataset, sources []config.MappingSource) (*dataset.Dataset, error) {
	log := zap.L().With(zap.String("stage", "mapping"))

	if !d.HasColumn(e.sourceColumn) {
		log.Error("source column not found", zap.String("column", e.sourceColumn))
		e.prov.Log("mapping", "error", map[string]any{
			"error": fmt.Sprintf("source column %q not found", e.sourceColumn),
		})
		return d, nil
	}

	// Retained suggestions are scoped to one run.
	e.pending = map[string][]Suggestion{}

	result := d.Clone()
	result.AddColumn(e.targetColumn, dataset.NA())
	initialUnresolved := result.NumRows()

	for _, source := range sources {
		if !source.Enabled {
			continue
		}

		var err error
		switch source.Type {
		case config.SourceDirect:
			err = e.applyDirect(result, source)
		case config.SourceFuzzy:
			err = e.applyFuzzy(result, source)
		case config.SourceAI:
			err = e.applyAI(ctx, result, source)
		}
		if err != nil {
			return nil, err
		}
	}

	unresolved := e.unresolvedCodes(result)
	if len(unresolved) > 0 {
		if err := e.writeReview(ctx, unresolved); err != nil {
			return nil, err
		}
	}

	stillUnresolved := e.countUnresolved(result)
	resolved := initialUnresolved - stillUnresolved
	rate := 0.0
	if initialUnresolved > 0 {
		rate = float64(resolved) / float64(initialUnresolved) * 100
	}

	e.prov.Log("mapping", "mapping_complete", map[string]any{
		"initial_rows":   initialUnresolved,
		"mapped_count":   resolved,
		"unmapped_count": stillUnresolved,
		"mapping_rate":   fmt.Sprintf("%.2f%%", rate),
	}, provenance.WithRows(resolved))
	log.Info("mapping complete",
		zap.Int("resolved", resolved),
		zap.Int("unresolved", stillUnresolved),
		zap.Float64("resolution_rate_pct", rate),
	)

	return result, nil
}

// countUnresolved counts rows whose target column is still the
// unresolved marker.
func (e *Engine) countUnresolved(d *dataset.Dataset) int {
	var n int
	for i := 0; i < d.NumRows(); i++ {
		if v, _ := d.Value(i, e.targetColumn); v.IsMissing() {
			n++
		}
	}
	return n
}

// unresolvedCodes returns the distinct non-missing source codes of
// still-unresolved rows, in first-seen order.
func (e *Engine) unresolvedCodes(d *dataset.Dataset) []string {
	var codes []string
	seen := map[string]bool{}
	for i := 0; i < d.NumRows(); i++ {
		if tgt, _ := d.Value(i, e.targetColumn); !tgt.IsMissing() {
			continue
		}
		src, _ := d.Value(i, e.sourceColumn)
		if src.IsMissing() {
			continue
		}
		code := src.String()
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes
}

// broadcast sets the target cause for every still-unresolved row whose
// source code appears in the mapping, returning the number of rows
// resolved.
func (e *Engine) broadcast(d *dataset.Dataset, mapping map[string]string) int {
	var n int
	for i := 0; i < d.NumRows(); i++ {
		if tgt, _ := d.Value(i, e.targetColumn); !tgt.IsMissing() {
			continue
		}
		src, _ := d.Value(i, e.sourceColumn)
		if src.IsMissing() {
			continue
		}
		if cause, ok := mapping[src.String()]; ok {
			d.Set(i, e.targetColumn, dataset.Str(cause))
			n++
		}
	}
	return n
}

type directRow struct {
	SourceCode string `csv:"source_code"`
	TargetCode string `csv:"target_code"`
}

// loadDirectMapping reads a direct mapping CSV. Both source_code and
// target_code columns are required; their absence is fatal.
func loadDirectMapping(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "mapping: read mapping file")
	}
	if err := requireColumns(data, "source_code", "target_code"); err != nil {
		return nil, err
	}

	var rows []directRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrap(err, "mapping: parse mapping file")
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		if r.SourceCode == "" {
			continue
		}
		out[r.SourceCode] = r.TargetCode
	}
	return out, nil
}

// requireColumns verifies the CSV header contains every required column.
func requireColumns(data []byte, cols ...string) error {
	reader := csv.NewReader(strings.NewReader(string(data)))
	header, err := reader.Read()
	if err != nil {
		return eris.Wrap(err, "mapping: read mapping header")
	}
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	for _, c := range cols {
		if !have[c] {
			return eris.Errorf("mapping: mapping file must contain %q column", c)
		}
	}
	return nil
}

func (e *Engine) applyDirect(d *dataset.Dataset, source config.MappingSource) error {
	if source.File == "" {
		return nil
	}
	if _, err := os.Stat(source.File); err != nil {
		zap.L().Warn("mapping: direct mapping file not found, skipping",
			zap.String("file", source.File))
		e.prov.Log("mapping", "error", map[string]any{
			"error": "mapping file not found: " + source.File,
		}, provenance.WithFile(source.File))
		return nil
	}

	mapping, err := loadDirectMapping(source.File)
	if err != nil {
		return err
	}

	resolved := e.broadcast(d, mapping)

	e.prov.Log("mapping", "direct_mapping", map[string]any{
		"mapping_file": source.File,
		"version":      source.Version,
		"mapped_count": resolved,
	}, provenance.WithRows(resolved), provenance.WithFile(source.File))
	zap.L().Info("direct mapping applied",
		zap.String("file", source.File),
		zap.Int("resolved", resolved),
	)
	return nil
}

type candidateRow struct {
	TargetCode string `csv:"target_code"`
}

// loadCandidates reads the fuzzy candidate list. The target_code column
// is required; its absence is fatal.
func loadCandidates(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "mapping: read candidate file")
	}
	if err := requireColumns(data, "target_code"); err != nil {
		return nil, err
	}

	var rows []candidateRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrap(err, "mapping: parse candidate file")
	}

	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.TargetCode != "" {
			out = append(out, r.TargetCode)
		}
	}
	return out, nil
}

func (e *Engine) applyFuzzy(d *dataset.Dataset, source config.MappingSource) error {
	if source.File == "" {
		return nil
	}
	if _, err := os.Stat(source.File); err != nil {
		zap.L().Warn("mapping: fuzzy candidate file not found, skipping",
			zap.String("file", source.File))
		e.prov.Log("mapping", "error", map[string]any{
			"error": "candidate file not found: " + source.File,
		}, provenance.WithFile(source.File))
		return nil
	}

	candidates, err := loadCandidates(source.File)
	if err != nil {
		return err
	}

	cutoff := source.Threshold * 100
	mapping := map[string]string{}
	for _, code := range e.unresolvedCodes(d) {
		if match, score, ok := bestMatch(code, candidates); ok && score >= cutoff {
			mapping[code] = match
		}
	}

	resolved := e.broadcast(d, mapping)

	e.prov.Log("mapping", "fuzzy_mapping", map[string]any{
		"mapping_file": source.File,
		"threshold":    source.Threshold,
		"mapped_count": len(mapping),
	}, provenance.WithRows(resolved), provenance.WithFile(source.File))
	zap.L().Info("fuzzy mapping applied",
		zap.String("file", source.File),
		zap.Int("codes_matched", len(mapping)),
		zap.Int("resolved", resolved),
	)
	return nil
}

// bestMatch returns the candidate with the highest similarity score on a
// 0-100 scale. Ties keep the first-seen candidate.
func bestMatch(code string, candidates []string) (match string, score float64, ok bool) {
	normCode := normalizeForMatch(code)
	best := -1.0
	for _, cand := range candidates {
		s := levenshtein.Match(normCode, normalizeForMatch(cand), nil) * 100
		if s > best {
			best = s
			match = cand
		}
	}
	if best < 0 {
		return "", 0, false
	}
	return match, best, true
}

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeForMatch lowercases, trims and strips diacritics so that
// accents and casing do not dominate the edit distance.
func normalizeForMatch(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if folded, _, err := transform.String(foldDiacritics, s); err == nil {
		return folded
	}
	return s
}

func (e *Engine) applyAI(ctx context.Context, d *dataset.Dataset, source config.MappingSource) error {
	codes := e.unresolvedCodes(d)
	if len(codes) == 0 {
		return nil
	}

	auto := map[string]string{}
	for _, code := range codes {
		suggestions := e.suggester.Suggest(ctx, code, 3)
		if len(suggestions) > 0 && suggestions[0].Confidence >= source.Threshold {
			auto[code] = suggestions[0].TargetCause
		} else {
			e.pending[code] = suggestions
		}
	}

	if len(auto) == 0 {
		return nil
	}

	resolved := e.broadcast(d, auto)

	e.prov.Log("mapping", "ai_mapping_auto", map[string]any{
		"threshold":         source.Threshold,
		"auto_mapped_count": len(auto),
	}, provenance.WithRows(resolved))
	zap.L().Info("ai mapping applied",
		zap.Int("codes_matched", len(auto)),
		zap.Int("resolved", resolved),
	)
	return nil
}
