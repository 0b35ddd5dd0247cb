package mapping

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/vitalstats/harmonize/internal/provenance"
	"github.com/vitalstats/harmonize/pkg/jina"
)

// Suggestion is one ranked candidate mapping for a source code.
// Confidence is a cosine similarity rescaled to [0,1].
type Suggestion struct {
	TargetCause string
	Confidence  float64
}

// Suggester ranks target causes for a source code. Implementations never
// fail the caller: on backend errors they log and return no suggestions.
type Suggester interface {
	Suggest(ctx context.Context, code string, topK int) []Suggestion
}

// NoopSuggester returns no suggestions. It stands in when no embeddings
// backend is configured.
type NoopSuggester struct{}

// Suggest implements Suggester.
func (NoopSuggester) Suggest(context.Context, string, int) []Suggestion { return nil }

// defaultCauses is the minimal built-in taxonomy used when no cause list
// file is configured or the configured one cannot be read.
var defaultCauses = []string{
	"Cardiovascular diseases",
	"Neoplasms",
	"Infectious diseases",
	"Respiratory diseases",
	"Digestive diseases",
	"Neurological disorders",
	"Injuries",
	"Maternal and neonatal conditions",
}

// taxonomyColumns are tried in order when loading a cause list file.
var taxonomyColumns = []string{"gbd_cause", "cause_name", "name", "cause"}

// LoadTaxonomy reads an ordered cause list from a CSV file. A missing or
// unreadable file falls back to the built-in default list.
func LoadTaxonomy(path string) []string {
	if path == "" {
		return defaultCauses
	}
	f, err := os.Open(path)
	if err != nil {
		zap.L().Warn("mapping: cause list not readable, using defaults",
			zap.String("path", path), zap.Error(err))
		return defaultCauses
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil || len(records) == 0 {
		zap.L().Warn("mapping: cause list not parseable, using defaults",
			zap.String("path", path))
		return defaultCauses
	}

	col := -1
	for _, want := range taxonomyColumns {
		for j, name := range records[0] {
			if name == want {
				col = j
				break
			}
		}
		if col >= 0 {
			break
		}
	}
	if col < 0 {
		zap.L().Warn("mapping: cause list has no recognized cause column, using defaults",
			zap.String("path", path))
		return defaultCauses
	}

	var causes []string
	seen := map[string]bool{}
	for _, rec := range records[1:] {
		if col >= len(rec) || rec[col] == "" || seen[rec[col]] {
			continue
		}
		seen[rec[col]] = true
		causes = append(causes, rec[col])
	}
	if len(causes) == 0 {
		return defaultCauses
	}
	return causes
}

// EmbeddingSuggester ranks causes by embedding cosine similarity against
// a fixed taxonomy. Taxonomy embeddings are computed once and cached.
type EmbeddingSuggester struct {
	client jina.Client
	causes []string
	prov   *provenance.Tracker

	causeVecs [][]float64
}

// NewEmbeddingSuggester creates a suggester over the given taxonomy.
func NewEmbeddingSuggester(client jina.Client, causes []string, prov *provenance.Tracker) *EmbeddingSuggester {
	if len(causes) == 0 {
		causes = defaultCauses
	}
	return &EmbeddingSuggester{client: client, causes: causes, prov: prov}
}

// Suggest returns up to topK causes sorted by descending confidence.
// Backend errors are logged and yield an empty result.
func (s *EmbeddingSuggester) Suggest(ctx context.Context, code string, topK int) []Suggestion {
	if s.client == nil || len(s.causes) == 0 {
		return nil
	}

	if s.causeVecs == nil {
		vecs, err := s.client.Embed(ctx, s.causes)
		if err != nil {
			s.logError(code, err)
			return nil
		}
		s.causeVecs = vecs
	}

	codeVecs, err := s.client.Embed(ctx, []string{code})
	if err != nil {
		s.logError(code, err)
		return nil
	}
	codeVec := codeVecs[0]

	suggestions := make([]Suggestion, 0, len(s.causes))
	for i, cause := range s.causes {
		cos := cosine(codeVec, s.causeVecs[i])
		suggestions = append(suggestions, Suggestion{
			TargetCause: cause,
			// Cosine similarity is in [-1,1]; rescale to [0,1].
			Confidence: (cos + 1) / 2,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	if topK < len(suggestions) {
		suggestions = suggestions[:topK]
	}
	return suggestions
}

func (s *EmbeddingSuggester) logError(code string, err error) {
	zap.L().Warn("mapping: suggestion backend failed",
		zap.String("source_code", code), zap.Error(err))
	s.prov.Log("mapping", "ai_suggestion_error",
		map[string]any{"error": err.Error(), "source_code": code})
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
