// Package quality runs configured validation checks over a dataset and
// computes a composite quality score.
package quality

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitalstats/harmonize/internal/config"
	"github.com/vitalstats/harmonize/internal/dataset"
	"github.com/vitalstats/harmonize/internal/provenance"
)

// Severity classifies an issue.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is one finding produced by a check.
type Issue struct {
	Check          string   `json:"check"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Count          int      `json:"count,omitempty"`
	Column         string   `json:"column,omitempty"`
	InvalidValues  []string `json:"invalid_values,omitempty"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

// Result summarizes a quality run.
type Result struct {
	TotalRows    int      `json:"total_rows"`
	ChecksRun    []string `json:"checks_run"`
	Issues       []Issue  `json:"issues_found"`
	QualityScore float64  `json:"quality_score"`
}

// ErrorCount returns the number of error-severity issues.
func (r *Result) ErrorCount() int {
	var n int
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			n++
		}
	}
	return n
}

type checkFunc func(d *dataset.Dataset, params config.Params) ([]Issue, error)

// Checker runs quality checks. Checks are independent and
// order-insensitive; one failing check never aborts the run.
type Checker struct {
	prov   *provenance.Tracker
	checks map[string]checkFunc
}

// New creates a Checker. The tracker may be nil.
func New(prov *provenance.Tracker) *Checker {
	return &Checker{
		prov: prov,
		checks: map[string]checkFunc{
			"check_age_range":            checkAgeRange,
			"check_sex_values":           checkSexValues,
			"check_missing_values":       checkMissingValues,
			"check_unmapped_codes":       checkUnmappedCodes,
			"check_death_count_validity": checkDeathCountValidity,
			"check_value_ranges":         checkValueRanges,
			"check_duplicates":           checkDuplicates,
			"check_date_validity":        checkDateValidity,
			"check_completeness":         checkCompleteness,
		},
	}
}

// Run executes the enabled checks and computes the composite score.
// A check that errors contributes a synthetic error-severity issue.
func (c *Checker) Run(d *dataset.Dataset, checks []config.Rule) *Result {
	log := zap.L().With(zap.String("stage", "quality"))

	result := &Result{
		TotalRows: d.NumRows(),
		ChecksRun: []string{},
		Issues:    []Issue{},
	}

	for _, check := range checks {
		if !check.Enabled {
			continue
		}

		fn, ok := c.checks[check.Name]
		if !ok {
			log.Warn("unknown quality check, skipping", zap.String("check", check.Name))
			c.prov.Log("quality", "check_skipped",
				map[string]any{"reason": "unknown check: " + check.Name})
			continue
		}

		issues, err := fn(d, check.Parameters)
		if err != nil {
			c.prov.Log("quality", "check_error",
				map[string]any{"error": err.Error(), "check": check.Name})
			result.Issues = append(result.Issues, Issue{
				Check:    check.Name,
				Severity: SeverityError,
				Message:  "check failed with error: " + err.Error(),
			})
			continue
		}

		result.ChecksRun = append(result.ChecksRun, check.Name)
		result.Issues = append(result.Issues, issues...)
		c.prov.Log("quality", check.Name, map[string]any{
			"issues": len(issues),
		})
	}

	result.QualityScore = score(d, result.Issues)

	c.prov.Log("quality", "quality_check_complete", map[string]any{
		"checks_run":    len(result.ChecksRun),
		"issues_found":  len(result.Issues),
		"quality_score": result.QualityScore,
	})
	log.Info("quality checks complete",
		zap.Int("checks_run", len(result.ChecksRun)),
		zap.Int("issues_found", len(result.Issues)),
		zap.Float64("quality_score", result.QualityScore),
	)

	return result
}

// score starts at 100, subtracts 10 per error and 2 per warning, then
// blends in a completeness bonus: 70% penalized score, 30% fraction of
// non-missing cells. Clamped to [0,100]; an empty dataset scores 0.
func score(d *dataset.Dataset, issues []Issue) float64 {
	if d.NumRows() == 0 {
		return 0
	}

	s := 100.0
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			s -= 10
		case SeverityWarning:
			s -= 2
		}
	}

	totalCells := d.NumRows() * d.NumCols()
	completeness := 1.0
	if totalCells > 0 {
		completeness = 1.0 - float64(d.MissingCells())/float64(totalCells)
	}
	s = s*0.7 + completeness*100*0.3

	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func checkAgeRange(d *dataset.Dataset, params config.Params) ([]Issue, error) {
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
	if !d.HasColumn(column) {
		return nil, nil
	}

	var count int
	for i := 0; i < d.NumRows(); i++ {
		v, _ := d.Value(i, column)
		if f, ok := v.Float(); ok && (f < minAge || f > maxAge) {
			count++
		}
	}
	if count == 0 {
		return nil, nil
	}
	return []Issue{{
		Check:    "check_age_range",
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("found %d rows with ages outside range [%v, %v]", count, minAge, maxAge),
		Count:    count,
		Column:   column,
	}}, nil
}

func checkSexValues(d *dataset.Dataset, params config.Params) ([]Issue, error) {
	column, err := params.String("column", "sex")
	if err != nil {
		return nil, err
	}
	valid, err := params.StringSlice("valid_values")
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		valid = []string{"male", "female", "unknown"}
	}
	if !d.HasColumn(column) {
		return nil, nil
	}

	validSet := make(map[string]bool, len(valid))
	for _, v := range valid {
		validSet[v] = true
	}

	var count int
	var invalid []string
	seen := map[string]bool{}
	for i := 0; i < d.NumRows(); i++ {
		v, _ := d.Value(i, column)
		if v.IsMissing() {
			continue
		}
		s := v.String()
		if !validSet[s] {
			count++
			if !seen[s] {
				seen[s] = true
				invalid = append(invalid, s)
			}
		}
	}
	if count == 0 {
		return nil, nil
	}
	return []Issue{{
		Check:         "check_sex_values",
		Severity:      SeverityWarning,
		Message:       fmt.Sprintf("found %d rows with invalid sex values: %s", count, strings.Join(invalid, ", ")),
		Count:         count,
		Column:        column,
		InvalidValues: invalid,
	}}, nil
}

func checkMissingValues(d *dataset.Dataset, params config.Params) ([]Issue, error) {
	columns, err := params.StringSlice("columns")
	if err != nil {
		return nil, err
	}
	threshold, err := params.Float("threshold", 0.1)
	if err != nil {
		return nil, err
	}
	if d.NumRows() == 0 {
		return nil, nil
	}

	var issues []Issue
	for _, col := range columns {
		if !d.HasColumn(col) {
			continue
		}
		var missing int
		for _, v := range d.Column(col) {
			if v.IsMissing() {
				missing++
			}
		}
		pct := float64(missing) / float64(d.NumRows())
		if pct > threshold {
			issues = append(issues, Issue{
				Check:    "check_missing_values",
				Severity: SeverityWarning,
				Message: fmt.Sprintf("column %q has %d (%.1f%%) missing values (threshold: %.1f%%)",
					col, missing, pct*100, threshold*100),
				Count:  missing,
				Column: col,
			})
		}
	}
	return issues, nil
}

func checkUnmappedCodes(d *dataset.Dataset, params config.Params) ([]Issue, error) {
	targetColumn, err := params.String("target_column", "gbd_cause")
	if err != nil {
		return nil, err
	}
	sourceColumn, err := params.String("source_column", "")
	if err != nil {
		return nil, err
	}
	threshold, err := params.Float("threshold", 0.05)
	if err != nil {
		return nil, err
	}
	if !d.HasColumn(targetColumn) || d.NumRows() == 0 {
		return nil, nil
	}

	var unmapped int
	uniqueCodes := map[string]bool{}
	for i := 0; i < d.NumRows(); i++ {
		v, _ := d.Value(i, targetColumn)
		if !v.IsMissing() {
			continue
		}
		unmapped++
		if sourceColumn != "" && d.HasColumn(sourceColumn) {
			if src, _ := d.Value(i, sourceColumn); !src.IsMissing() {
				uniqueCodes[src.String()] = true
			}
		}
	}

	pct := float64(unmapped) / float64(d.NumRows())
	if pct <= threshold {
		return nil, nil
	}
	return []Issue{{
		Check:    "check_unmapped_codes",
		Severity: SeverityWarning,
		Message: fmt.Sprintf("found %d (%.1f%%) unmapped codes (threshold: %.1f%%), %d distinct",
			unmapped, pct*100, threshold*100, len(uniqueCodes)),
		Count:  unmapped,
		Column: targetColumn,
	}}, nil
}

func checkDeathCountValidity(d *dataset.Dataset, params config.Params) ([]Issue, error) {
	column, err := params.String("column", "deaths")
	if err != nil {
		return nil, err
	}
	maxReasonable, err := params.Float("max_reasonable", 1_000_000)
	if err != nil {
		return nil, err
	}
	if !d.HasColumn(column) {
		return nil, nil
	}

	var negative, tooLarge int
	for _, v := range d.Column(column) {
		f, ok := v.Float()
		if !ok {
			continue
		}
		if f < 0 {
			negative++
		} else if f > maxReasonable {
			tooLarge++
		}
	}

	var issues []Issue
	if negative > 0 {
		issues = append(issues, Issue{
			Check:    "check_death_count_validity",
			Severity: SeverityError,
			Message:  fmt.Sprintf("found %d rows with negative death counts", negative),
			Count:    negative,
			Column:   column,
		})
	}
	if tooLarge > 0 {
		issues = append(issues, Issue{
			Check:    "check_death_count_validity",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("found %d rows with death counts > %v", tooLarge, maxReasonable),
			Count:    tooLarge,
			Column:   column,
		})
	}
	return issues, nil
}

func checkValueRanges(d *dataset.Dataset, params config.Params) ([]Issue, error) {
	column, err := params.String("column", "")
	if err != nil {
		return nil, err
	}
	if column == "" || !d.HasColumn(column) {
		return nil, nil
	}
	minVal, err := params.Float("min_value", 0)
	if err != nil {
		return nil, err
	}
	maxVal, err := params.Float("max_value", 0)
	if err != nil {
		return nil, err
	}
	hasMin := params.Has("min_value")
	hasMax := params.Has("max_value")
	if !hasMin && !hasMax {
		return nil, nil
	}

	var count int
	for _, v := range d.Column(column) {
		f, ok := v.Float()
		if !ok {
			continue
		}
		if (hasMin && f < minVal) || (hasMax && f > maxVal) {
			count++
		}
	}
	if count == 0 {
		return nil, nil
	}
	return []Issue{{
		Check:    "check_value_ranges",
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("found %d rows with %q outside range [%v, %v]", count, column, minVal, maxVal),
		Count:    count,
		Column:   column,
	}}, nil
}

func checkDuplicates(d *dataset.Dataset, params config.Params) ([]Issue, error) {
	subset, err := params.StringSlice("subset")
	if err != nil {
		return nil, err
	}
	allow, err := params.Bool("allow_duplicates", false)
	if err != nil {
		return nil, err
	}
	if allow {
		return nil, nil
	}
	if len(subset) == 0 {
		subset = d.Columns()
	}

	seen := map[string]bool{}
	var dupes int
	for i := 0; i < d.NumRows(); i++ {
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
		k := b.String()
		if seen[k] {
			dupes++
		}
		seen[k] = true
	}
	if dupes == 0 {
		return nil, nil
	}
	return []Issue{{
		Check:    "check_duplicates",
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("found %d duplicate rows", dupes),
		Count:    dupes,
	}}, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"January 2, 2006",
	time.RFC3339,
}

func checkDateValidity(d *dataset.Dataset, params config.Params) ([]Issue, error) {
	column, err := params.String("column", "")
	if err != nil {
		return nil, err
	}
	if column == "" || !d.HasColumn(column) {
		return nil, nil
	}

	var invalid int
	for _, v := range d.Column(column) {
		if v.IsMissing() {
			continue
		}
		if _, ok := v.Time(); ok {
			continue
		}
		if !parseableDate(v.String()) {
			invalid++
		}
	}
	if invalid == 0 {
		return nil, nil
	}
	return []Issue{{
		Check:    "check_date_validity",
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("found %d rows with invalid dates in column %q", invalid, column),
		Count:    invalid,
		Column:   column,
	}}, nil
}

func parseableDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if _, err := time.Parse(l, s); err == nil {
			return true
		}
	}
	return false
}

func checkCompleteness(d *dataset.Dataset, params config.Params) ([]Issue, error) {
	required, err := params.StringSlice("required_columns")
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, col := range required {
		if !d.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	return []Issue{{
		Check:          "check_completeness",
		Severity:       SeverityError,
		Message:        "missing required columns: " + strings.Join(missing, ", "),
		MissingColumns: missing,
	}}, nil
}
