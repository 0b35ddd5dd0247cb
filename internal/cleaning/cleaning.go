// Package cleaning applies configured, ordered transformation rules to a
// dataset.
package cleaning

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vitalstats/harmonize/internal/config"
	"github.com/vitalstats/harmonize/internal/dataset"
	"github.com/vitalstats/harmonize/internal/provenance"
)

type ruleFunc func(d *dataset.Dataset, params config.Params) (*dataset.Dataset, error)

// Engine applies cleaning rules in configured order. The rule set is
// closed; unknown names in configuration are skipped and logged so that
// forward-compatible config files keep working.
type Engine struct {
	prov  *provenance.Tracker
	rules map[string]ruleFunc
}

// New creates a cleaning Engine. The tracker may be nil.
func New(prov *provenance.Tracker) *Engine {
	return &Engine{
		prov: prov,
		rules: map[string]ruleFunc{
			"normalize_column_names": normalizeColumnNames,
			"remove_duplicates":      removeDuplicates,
			"normalize_sex":          normalizeSex,
			"standardize_ages":       standardizeAges,
			"handle_missing_values":  handleMissingValues,
			"normalize_text":         normalizeText,
			"remove_outliers":        removeOutliers,
			"standardize_dates":      standardizeDates,
		},
	}
}

// Apply runs the enabled rules strictly in list order on a copy of d.
// A failing rule aborts the stage with an error; unknown rules are
// skipped.
func (e *Engine) Apply(d *dataset.Dataset, rules []config.Rule) (*dataset.Dataset, error) {
	log := zap.L().With(zap.String("stage", "cleaning"))

	result := d.Clone()
	initialRows := result.NumRows()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		fn, ok := e.rules[rule.Name]
		if !ok {
			log.Warn("unknown cleaning rule, skipping", zap.String("rule", rule.Name))
			e.prov.Log("cleaning", "rule_skipped",
				map[string]any{"reason": "unknown rule: " + rule.Name},
				provenance.WithRule(rule.Name))
			continue
		}

		rowsBefore := result.NumRows()
		next, err := fn(result, rule.Parameters)
		if err != nil {
			e.prov.Log("cleaning", "rule_error",
				map[string]any{"error": err.Error(), "rule": rule.Name},
				provenance.WithRule(rule.Name))
			return nil, eris.Wrapf(err, "cleaning: rule %s", rule.Name)
		}
		result = next
		rowsAffected := absInt(result.NumRows() - rowsBefore)

		log.Debug("applied cleaning rule",
			zap.String("rule", rule.Name),
			zap.Int("rows_affected", rowsAffected),
		)
		e.prov.Log("cleaning", rule.Name, map[string]any(rule.Parameters),
			provenance.WithRows(rowsAffected),
			provenance.WithRule(rule.Name))
	}

	finalRows := result.NumRows()
	e.prov.Log("cleaning", "cleaning_complete", map[string]any{
		"initial_rows": initialRows,
		"final_rows":   finalRows,
		"rows_removed": initialRows - finalRows,
	})
	log.Info("cleaning complete",
		zap.Int("initial_rows", initialRows),
		zap.Int("final_rows", finalRows),
	)

	return result, nil
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func normalizeColumnNames(d *dataset.Dataset, _ config.Params) (*dataset.Dataset, error) {
	d.RenameColumns(func(c string) string {
		return strings.ReplaceAll(strings.ToLower(c), " ", "_")
	})
	return d, nil
}

func removeDuplicates(d *dataset.Dataset, params config.Params) (*dataset.Dataset, error) {
	subset, err := params.StringSlice("subset")
	if err != nil {
		return nil, err
	}
	keep, err := keepPolicy(params)
	if err != nil {
		return nil, err
	}
	if len(subset) == 0 {
		subset = d.Columns()
	}

	keyOf := func(i int) string {
		var b strings.Builder
		for _, col := range subset {
			v, _ := d.Value(i, col)
			if v.IsMissing() {
				b.WriteString("\x00")
			} else {
				b.WriteString(v.String())
			}
			b.WriteString("\x1f")
		}
		return b.String()
	}

	switch keep {
	case "first":
		seen := map[string]bool{}
		return d.Filter(func(i int) bool {
			k := keyOf(i)
			if seen[k] {
				return false
			}
			seen[k] = true
			return true
		}), nil
	case "last":
		lastIdx := map[string]int{}
		for i := 0; i < d.NumRows(); i++ {
			lastIdx[keyOf(i)] = i
		}
		return d.Filter(func(i int) bool { return lastIdx[keyOf(i)] == i }), nil
	case "none", "false":
		counts := map[string]int{}
		for i := 0; i < d.NumRows(); i++ {
			counts[keyOf(i)]++
		}
		return d.Filter(func(i int) bool { return counts[keyOf(i)] == 1 }), nil
	default:
		return nil, eris.Errorf("remove_duplicates: invalid keep policy %q (first, last, none)", keep)
	}
}

// keepPolicy reads the keep parameter, accepting the boolean false as an
// alias for "none" (drop every duplicated row).
func keepPolicy(params config.Params) (string, error) {
	raw, ok := params["keep"]
	if !ok || raw == nil {
		return "first", nil
	}
	switch k := raw.(type) {
	case string:
		return k, nil
	case bool:
		if !k {
			return "none", nil
		}
		return "", eris.New("remove_duplicates: keep: true is ambiguous, use first, last, none or false")
	default:
		return "", eris.Errorf("remove_duplicates: keep: expected string or false, got %T", raw)
	}
}

// baseSexMapping is the fixed normalization table; custom overrides from
// configuration are applied on top.
var baseSexMapping = map[string]string{
	"m":       "male",
	"male":    "male",
	"1":       "male",
	"f":       "female",
	"female":  "female",
	"2":       "female",
	"0":       "unknown",
	"unknown": "unknown",
	"u":       "unknown",
}

func normalizeSex(d *dataset.Dataset, params config.Params) (*dataset.Dataset, error) {
	column, err := params.String("column", "sex")
	if err != nil {
		return nil, err
	}
	custom, err := params.StringMap("custom_mapping")
	if err != nil {
		return nil, err
	}
	if !d.HasColumn(column) {
		return d, nil
	}

	for i := 0; i < d.NumRows(); i++ {
		v, _ := d.Value(i, column)
		if v.IsMissing() {
			continue
		}
		s := strings.TrimSpace(strings.ToLower(v.String()))
		if mapped, ok := baseSexMapping[s]; ok {
			s = mapped
		}
		if mapped, ok := custom[s]; ok {
			s = mapped
		}
		d.Set(i, column, dataset.Str(s))
	}
	return d, nil
}

func standardizeAges(d *dataset.Dataset, params config.Params) (*dataset.Dataset, error) {
	column, err := params.String("column", "age")
	if err != nil {
		return nil, err
	}
	minAge, err := params.Float("min_age", 0)
	if err != nil {
		return nil, err
	}
	maxAge, err := params.Float("max_age", 150)
	if err != nil {
		return nil, err
	}
	removeInvalid, err := params.Bool("remove_invalid", false)
	if err != nil {
		return nil, err
	}
	if !d.HasColumn(column) {
		return d, nil
	}

	invalid := make(map[int]bool)
	for i := 0; i < d.NumRows(); i++ {
		v, _ := d.Value(i, column)
		if v.IsMissing() {
			continue
		}
		f, ok := v.Float()
		if !ok {
			d.Set(i, column, dataset.NA())
			continue
		}
		if f < minAge || f > maxAge {
			if removeInvalid {
				invalid[i] = true
			} else {
				d.Set(i, column, dataset.NA())
			}
			continue
		}
		d.Set(i, column, dataset.Num(f))
	}

	if removeInvalid && len(invalid) > 0 {
		return d.Filter(func(i int) bool { return !invalid[i] }), nil
	}
	return d, nil
}

func handleMissingValues(d *dataset.Dataset, params config.Params) (*dataset.Dataset, error) {
	strategy, err := params.String("strategy", "keep")
	if err != nil {
		return nil, err
	}

	switch strategy {
	case "keep":
		return d, nil
	case "drop":
		subset, err := params.StringSlice("subset")
		if err != nil {
			return nil, err
		}
		if len(subset) == 0 {
			subset = d.Columns()
		}
		return d.Filter(func(i int) bool {
			for _, col := range subset {
				if v, ok := d.Value(i, col); ok && v.IsMissing() {
					return false
				}
			}
			return true
		}), nil
	case "fill":
		columns, err := params.StringSlice("columns")
		if err != nil {
			return nil, err
		}
		if len(columns) == 0 {
			columns = d.Columns()
		}
		fill := fillValue(params["value"])
		for _, col := range columns {
			if !d.HasColumn(col) {
				continue
			}
			for i := 0; i < d.NumRows(); i++ {
				if v, _ := d.Value(i, col); v.IsMissing() {
					d.Set(i, col, fill)
				}
			}
		}
		return d, nil
	default:
		return nil, eris.Errorf("handle_missing_values: invalid strategy %q (keep, drop, fill)", strategy)
	}
}

func fillValue(raw any) dataset.Value {
	switch v := raw.(type) {
	case nil:
		return dataset.Str("")
	case string:
		return dataset.Str(v)
	case float64:
		return dataset.Num(v)
	case int:
		return dataset.Num(float64(v))
	case int64:
		return dataset.Num(float64(v))
	case bool:
		if v {
			return dataset.Str("true")
		}
		return dataset.Str("false")
	default:
		return dataset.Str("")
	}
}

func normalizeText(d *dataset.Dataset, params config.Params) (*dataset.Dataset, error) {
	columns, err := params.StringSlice("columns")
	if err != nil {
		return nil, err
	}
	for _, col := range columns {
		if !d.HasColumn(col) {
			continue
		}
		for i := 0; i < d.NumRows(); i++ {
			v, _ := d.Value(i, col)
			if v.IsMissing() {
				continue
			}
			d.Set(i, col, dataset.Str(strings.ToLower(strings.TrimSpace(v.String()))))
		}
	}
	return d, nil
}

func removeOutliers(d *dataset.Dataset, params config.Params) (*dataset.Dataset, error) {
	column, err := params.String("column", "")
	if err != nil {
		return nil, err
	}
	if column == "" || !d.HasColumn(column) {
		return d, nil
	}

	var nums []float64
	for i := 0; i < d.NumRows(); i++ {
		v, _ := d.Value(i, column)
		if f, ok := v.Float(); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return d, nil
	}

	q1 := quantile(nums, 0.25)
	q3 := quantile(nums, 0.75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	// Rows without a numeric value in the column are dropped along with
	// the outliers, matching a range filter on a coerced column.
	return d.Filter(func(i int) bool {
		v, _ := d.Value(i, column)
		f, ok := v.Float()
		return ok && f >= lower && f <= upper
	}), nil
}

// quantile computes the q-th quantile with linear interpolation between
// the two nearest order statistics.
func quantile(vals []float64, q float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// dateLayouts are tried in order when no explicit format is configured.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"January 2, 2006",
	"2006-01-02T15:04:05Z07:00",
}

func standardizeDates(d *dataset.Dataset, params config.Params) (*dataset.Dataset, error) {
	column, err := params.String("column", "")
	if err != nil {
		return nil, err
	}
	layout, err := params.String("format", "")
	if err != nil {
		return nil, err
	}
	if column == "" || !d.HasColumn(column) {
		return d, nil
	}

	for i := 0; i < d.NumRows(); i++ {
		v, _ := d.Value(i, column)
		if v.IsMissing() {
			continue
		}
		if _, ok := v.Time(); ok {
			continue
		}
		// Unparseable values become missing, never an error.
		if t, ok := parseDate(v.String(), layout); ok {
			d.Set(i, column, dataset.Date(t))
		} else {
			d.Set(i, column, dataset.NA())
		}
	}
	return d, nil
}

func parseDate(s, layout string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if layout != "" {
		t, err := time.Parse(layout, s)
		return t, err == nil
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
