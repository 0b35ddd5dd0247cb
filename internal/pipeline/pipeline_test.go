package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalstats/harmonize/internal/config"
	"github.com/vitalstats/harmonize/internal/dataset"
	"github.com/vitalstats/harmonize/internal/provenance"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// fullConfig builds a runnable configuration over temp files: input with
// duplicates and messy values, a direct mapping that covers some codes.
func fullConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	input := writeFile(t, filepath.Join(dir, "input.csv"), strings.Join([]string{
		"ICD10 Code,Age,Sex,Deaths",
		"A00,34,M,3",
		"A00,34,M,3",
		"B20,51,F,7",
		"I21,200,1,2",
		"J44,60,female,5",
	}, "\n")+"\n")

	mappingFile := writeFile(t, filepath.Join(dir, "map.csv"),
		"source_code,target_code\nA00,Cholera\nB20,HIV/AIDS\nI21,Ischemic heart disease\n")

	return &config.Config{
		IO: config.IOConfig{
			InputFile:    input,
			OutputFile:   filepath.Join(dir, "out", "harmonized.csv"),
			InputFormat:  "csv",
			OutputFormat: "csv",
		},
		Cleaning: config.CleaningConfig{
			Enabled: true,
			Rules: []config.Rule{
				{Name: "normalize_column_names", Enabled: true},
				{Name: "remove_duplicates", Enabled: true},
				{Name: "normalize_sex", Enabled: true},
				{Name: "standardize_ages", Enabled: true, Parameters: config.Params{
					"min_age": 0, "max_age": 150,
				}},
			},
		},
		Mapping: config.MappingConfig{
			Enabled:      true,
			SourceColumn: "icd10_code",
			TargetColumn: "gbd_cause",
			ReviewFile:   "human_review_required.csv",
			Sources: []config.MappingSource{
				{Type: config.SourceDirect, File: mappingFile, Threshold: 0.85, Enabled: true},
			},
		},
		Quality: config.QualityConfig{
			Enabled: true,
			Checks: []config.Rule{
				{Name: "check_age_range", Enabled: true},
				{Name: "check_sex_values", Enabled: true},
				{Name: "check_unmapped_codes", Enabled: true, Parameters: config.Params{
					"source_column": "icd10_code",
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

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	cfg := fullConfig(t)
	p := New(cfg, provenance.NewWithRunID("run-e2e"), nil)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	// duplicate row removed
	assert.Equal(t, 4, result.Data.NumRows())
	assert.True(t, result.Data.HasColumn("gbd_cause"))

	byCode := map[string]string{}
	unresolvedByCode := map[string]bool{}
	for i := 0; i < result.Data.NumRows(); i++ {
		code, _ := result.Data.Value(i, "icd10_code")
		cause, _ := result.Data.Value(i, "gbd_cause")
		byCode[code.String()] = cause.String()
		unresolvedByCode[code.String()] = cause.IsMissing()
	}
	assert.Equal(t, "Cholera", byCode["A00"])
	assert.Equal(t, "HIV/AIDS", byCode["B20"])
	assert.Equal(t, "Ischemic heart disease", byCode["I21"])
	assert.True(t, unresolvedByCode["J44"])

	// cleaned values survive to the output
	sexes := map[string]bool{}
	for _, v := range result.Data.Column("sex") {
		sexes[v.String()] = true
	}
	assert.True(t, sexes["male"])
	assert.True(t, sexes["female"])

	// age 200 became missing
	age, _ := result.Data.Value(2, "age")
	assert.True(t, age.IsMissing())

	require.NotNil(t, result.Quality)
	assert.Greater(t, result.Quality.QualityScore, 0.0)

	outDir := filepath.Dir(cfg.IO.OutputFile)

	// output file written
	_, err = os.Stat(cfg.IO.OutputFile)
	require.NoError(t, err)

	// report written beside the output
	reportData, err := os.ReadFile(filepath.Join(outDir, "harmonization_report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(reportData), "# Harmonization Report")
	assert.Contains(t, string(reportData), "Run ID: run-e2e")

	// review artifact for the unresolved code, beside the output
	reviewData, err := os.ReadFile(filepath.Join(outDir, "human_review_required.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(reviewData), "J44")

	// provenance ledger persisted
	provData, err := os.ReadFile(result.ProvenanceFile)
	require.NoError(t, err)
	var log provenance.RunLog
	require.NoError(t, json.Unmarshal(provData, &log))
	assert.Equal(t, "run-e2e", log.RunID)
	assert.NotEmpty(t, log.Entries)

	steps := map[string]bool{}
	for _, e := range log.Entries {
		steps[e.Step] = true
	}
	for _, step := range []string{"pipeline", "io", "cleaning", "mapping", "quality", "reporting"} {
		assert.True(t, steps[step], "ledger covers step %s", step)
	}
}

func TestRun_StagesCanBeDisabled(t *testing.T) {
	t.Parallel()

	cfg := fullConfig(t)
	cfg.Cleaning.Enabled = false
	cfg.Mapping.Enabled = false
	cfg.Quality.Enabled = false
	cfg.Reporting.Enabled = false

	p := New(cfg, nil, nil)
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	// raw passthrough: duplicates kept, no target column added
	assert.Equal(t, 5, result.Data.NumRows())
	assert.False(t, result.Data.HasColumn("gbd_cause"))
	assert.Nil(t, result.Quality)

	_, err = os.Stat(filepath.Join(filepath.Dir(cfg.IO.OutputFile), "harmonization_report.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_MissingInputFails(t *testing.T) {
	t.Parallel()

	cfg := fullConfig(t)
	cfg.IO.InputFile = filepath.Join(t.TempDir(), "absent.csv")

	p := New(cfg, nil, nil)
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: load")

	// nothing persisted on failure
	_, err = os.Stat(filepath.Join(filepath.Dir(cfg.IO.OutputFile), "provenance.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_CleaningErrorAborts(t *testing.T) {
	t.Parallel()

	cfg := fullConfig(t)
	cfg.Cleaning.Rules = []config.Rule{
		{Name: "remove_duplicates", Enabled: true, Parameters: config.Params{"keep": "bogus"}},
	}

	p := New(cfg, nil, nil)
	_, err := p.Run(context.Background())
	require.Error(t, err)

	_, err = os.Stat(cfg.IO.OutputFile)
	assert.True(t, os.IsNotExist(err), "output not written on abort")
}

func TestRun_RuntimeRegisteredFormat(t *testing.T) {
	t.Parallel()

	cfg := fullConfig(t)
	cfg.IO.OutputFormat = "parquet"
	cfg.IO.OutputFile = filepath.Join(t.TempDir(), "out.parquet")
	cfg.Reporting.Enabled = false

	p := New(cfg, nil, nil)

	var saved *dataset.Dataset
	p.Registry().Register("parquet", dataset.Handler{
		Save: func(d *dataset.Dataset, path string) error {
			saved = d
			return os.WriteFile(path, []byte("parquet placeholder"), 0o644)
		},
	})

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, result.Data.NumRows(), saved.NumRows())
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	cfg := fullConfig(t)
	p := New(cfg, nil, nil)
	assert.NotNil(t, p.Tracker())
	assert.NotEmpty(t, p.Tracker().RunID())
	assert.Contains(t, p.Registry().Formats(), "csv")
}
