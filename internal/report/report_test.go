package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalstats/harmonize/internal/dataset"
	"github.com/vitalstats/harmonize/internal/provenance"
	"github.com/vitalstats/harmonize/internal/quality"
)

func sampleData(t *testing.T) Data {
	t.Helper()

	d := dataset.New("icd10_code", "gbd_cause")
	require.NoError(t, d.AppendRow([]dataset.Value{dataset.Str("A00"), dataset.Str("Cholera")}))
	require.NoError(t, d.AppendRow([]dataset.Value{dataset.Str("J44"), dataset.NA()}))

	tr := provenance.NewWithRunID("run-report")
	tr.Log("mapping", "direct_mapping", nil, provenance.WithRows(1))

	return Data{
		InputFile:    "in.csv",
		OutputFile:   "out.csv",
		TargetColumn: "gbd_cause",
		Dataset:      d,
		Quality: &quality.Result{
			TotalRows:    2,
			ChecksRun:    []string{"check_unmapped_codes"},
			QualityScore: 83.5,
			Issues: []quality.Issue{
				{Check: "check_unmapped_codes", Severity: quality.SeverityWarning, Message: "found 1 unmapped"},
			},
		},
		Provenance: tr.Summarize(),
	}
}

func TestWrite_Markdown(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reports", "report.md")
	require.NoError(t, Write(path, "markdown", sampleData(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "# Harmonization Report")
	assert.Contains(t, content, "Run ID: run-report")
	assert.Contains(t, content, "- Rows: 2")
	assert.Contains(t, content, "- Resolved: 1")
	assert.Contains(t, content, "- Unresolved: 1")
	assert.Contains(t, content, "Resolution rate: 50.0%")
	assert.Contains(t, content, "Score: 83.5 / 100")
	assert.Contains(t, content, "| check_unmapped_codes | warning | found 1 unmapped |")
	assert.Contains(t, content, "**mapping**: 1 entries, 1 rows affected")
}

func TestWrite_HTML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, Write(path, "html", sampleData(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "<h1>Harmonization Report</h1>")
	assert.Contains(t, content, "<li>Resolved: 1</li>")
	assert.Contains(t, content, "<td>check_unmapped_codes</td>")
}

func TestWrite_HTMLEscapes(t *testing.T) {
	t.Parallel()

	d := sampleData(t)
	d.InputFile = "<script>alert(1)</script>.csv"

	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, Write(path, "html", d))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "<script>")
	assert.Contains(t, string(data), "&lt;script&gt;")
}

func TestWrite_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	err := Write(filepath.Join(t.TempDir(), "r.pdf"), "pdf", sampleData(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported format "pdf"`)
}

func TestWrite_NoQualitySection(t *testing.T) {
	t.Parallel()

	d := sampleData(t)
	d.Quality = nil

	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, Write(path, "markdown", d))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "## Quality")
}
