// Package report renders a human-readable harmonization summary.
package report

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/vitalstats/harmonize/internal/dataset"
	"github.com/vitalstats/harmonize/internal/provenance"
	"github.com/vitalstats/harmonize/internal/quality"
)

// Data collects everything the report renders.
type Data struct {
	InputFile    string
	OutputFile   string
	TargetColumn string
	Dataset      *dataset.Dataset
	Quality      *quality.Result // nil when the quality stage was disabled
	Provenance   provenance.Summary
}

// Write renders the report in the given format ("markdown" or "html")
// and writes it to path, creating parent directories.
func Write(path, format string, data Data) error {
	var content string
	switch strings.ToLower(format) {
	case "markdown", "":
		content = formatMarkdown(data)
	case "html":
		content = formatHTML(data)
	default:
		return eris.Errorf("report: unsupported format %q (markdown, html)", format)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "report: create dir")
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return eris.Wrap(err, "report: write file")
	}
	return nil
}

func formatMarkdown(data Data) string {
	var b strings.Builder

	b.WriteString("# Harmonization Report\n\n")
	fmt.Fprintf(&b, "Run ID: %s\n\n", data.Provenance.RunID)

	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Input: %s\n", data.InputFile)
	fmt.Fprintf(&b, "- Output: %s\n", data.OutputFile)
	fmt.Fprintf(&b, "- Rows: %d\n", data.Dataset.NumRows())
	fmt.Fprintf(&b, "- Columns: %d\n\n", data.Dataset.NumCols())

	if data.TargetColumn != "" && data.Dataset.HasColumn(data.TargetColumn) {
		resolved, unresolved := resolutionCounts(data.Dataset, data.TargetColumn)
		b.WriteString("## Mapping\n")
		fmt.Fprintf(&b, "- Resolved: %d\n", resolved)
		fmt.Fprintf(&b, "- Unresolved: %d\n", unresolved)
		if total := resolved + unresolved; total > 0 {
			fmt.Fprintf(&b, "- Resolution rate: %.1f%%\n", float64(resolved)/float64(total)*100)
		}
		b.WriteString("\n")
	}

	if data.Quality != nil {
		b.WriteString("## Quality\n")
		fmt.Fprintf(&b, "- Score: %.1f / 100\n", data.Quality.QualityScore)
		fmt.Fprintf(&b, "- Checks run: %d\n", len(data.Quality.ChecksRun))
		fmt.Fprintf(&b, "- Issues: %d\n\n", len(data.Quality.Issues))
		if len(data.Quality.Issues) > 0 {
			b.WriteString("| Check | Severity | Message |\n")
			b.WriteString("|---|---|---|\n")
			for _, issue := range data.Quality.Issues {
				fmt.Fprintf(&b, "| %s | %s | %s |\n", issue.Check, issue.Severity, issue.Message)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Provenance\n")
	fmt.Fprintf(&b, "- Total entries: %d\n\n", data.Provenance.TotalEntries)
	steps := make([]string, 0, len(data.Provenance.Steps))
	for s := range data.Provenance.Steps {
		steps = append(steps, s)
	}
	sort.Strings(steps)
	for _, s := range steps {
		step := data.Provenance.Steps[s]
		fmt.Fprintf(&b, "- **%s**: %d entries, %d rows affected\n",
			s, step.EntryCount, step.TotalRowsAffected)
	}

	return b.String()
}

func formatHTML(data Data) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head><title>Harmonization Report</title></head>\n<body>\n")
	b.WriteString("<h1>Harmonization Report</h1>\n")
	fmt.Fprintf(&b, "<p>Run ID: %s</p>\n", html.EscapeString(data.Provenance.RunID))

	b.WriteString("<h2>Summary</h2>\n<ul>\n")
	fmt.Fprintf(&b, "<li>Input: %s</li>\n", html.EscapeString(data.InputFile))
	fmt.Fprintf(&b, "<li>Output: %s</li>\n", html.EscapeString(data.OutputFile))
	fmt.Fprintf(&b, "<li>Rows: %d</li>\n", data.Dataset.NumRows())
	fmt.Fprintf(&b, "<li>Columns: %d</li>\n", data.Dataset.NumCols())
	b.WriteString("</ul>\n")

	if data.TargetColumn != "" && data.Dataset.HasColumn(data.TargetColumn) {
		resolved, unresolved := resolutionCounts(data.Dataset, data.TargetColumn)
		b.WriteString("<h2>Mapping</h2>\n<ul>\n")
		fmt.Fprintf(&b, "<li>Resolved: %d</li>\n", resolved)
		fmt.Fprintf(&b, "<li>Unresolved: %d</li>\n", unresolved)
		b.WriteString("</ul>\n")
	}

	if data.Quality != nil {
		b.WriteString("<h2>Quality</h2>\n")
		fmt.Fprintf(&b, "<p>Score: %.1f / 100, %d issues</p>\n",
			data.Quality.QualityScore, len(data.Quality.Issues))
		if len(data.Quality.Issues) > 0 {
			b.WriteString("<table border=\"1\">\n<tr><th>Check</th><th>Severity</th><th>Message</th></tr>\n")
			for _, issue := range data.Quality.Issues {
				fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>\n",
					html.EscapeString(issue.Check),
					html.EscapeString(string(issue.Severity)),
					html.EscapeString(issue.Message))
			}
			b.WriteString("</table>\n")
		}
	}

	b.WriteString("<h2>Provenance</h2>\n")
	fmt.Fprintf(&b, "<p>Total entries: %d</p>\n", data.Provenance.TotalEntries)
	b.WriteString("</body>\n</html>\n")

	return b.String()
}

func resolutionCounts(d *dataset.Dataset, targetColumn string) (resolved, unresolved int) {
	for _, v := range d.Column(targetColumn) {
		if v.IsMissing() {
			unresolved++
		} else {
			resolved++
		}
	}
	return resolved, unresolved
}
