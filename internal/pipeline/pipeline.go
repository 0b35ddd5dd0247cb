// Package pipeline orchestrates one harmonization run: load, clean, map,
// quality-check, save, report, and persist the provenance ledger.
package pipeline

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vitalstats/harmonize/internal/cleaning"
	"github.com/vitalstats/harmonize/internal/config"
	"github.com/vitalstats/harmonize/internal/dataset"
	"github.com/vitalstats/harmonize/internal/mapping"
	"github.com/vitalstats/harmonize/internal/provenance"
	"github.com/vitalstats/harmonize/internal/quality"
	"github.com/vitalstats/harmonize/internal/report"
	"github.com/vitalstats/harmonize/pkg/jina"
)

// Result carries the outcome of a completed run.
type Result struct {
	Data           *dataset.Dataset
	Quality        *quality.Result // nil when the quality stage was disabled
	ProvenanceFile string
}

// Pipeline sequences the harmonization stages. Stages run strictly one
// after another; the provenance tracker is the only shared mutable
// resource and is injected into every stage for append-only writes.
type Pipeline struct {
	cfg     *config.Config
	prov    *provenance.Tracker
	io      *dataset.Registry
	cleaner *cleaning.Engine
	mapper  *mapping.Engine
	checker *quality.Checker
}

// New wires a Pipeline from configuration. A nil tracker gets replaced
// with a fresh one; a nil suggester selects the embeddings backend when a
// Jina key is configured, and the no-op suggester otherwise.
func New(cfg *config.Config, prov *provenance.Tracker, suggester mapping.Suggester) *Pipeline {
	if prov == nil {
		prov = provenance.New()
	}

	if suggester == nil {
		suggester = buildSuggester(cfg, prov)
	}

	reviewPath := cfg.Mapping.ReviewFile
	if reviewPath != "" && !filepath.IsAbs(reviewPath) && filepath.Dir(reviewPath) == "." {
		// Bare file names land beside the output file.
		reviewPath = filepath.Join(filepath.Dir(cfg.IO.OutputFile), reviewPath)
	}

	return &Pipeline{
		cfg:     cfg,
		prov:    prov,
		io:      dataset.NewRegistry(),
		cleaner: cleaning.New(prov),
		mapper:  mapping.NewEngine(cfg.Mapping.SourceColumn, cfg.Mapping.TargetColumn, suggester, prov, reviewPath),
		checker: quality.New(prov),
	}
}

// buildSuggester selects the AI suggestion backend. The taxonomy comes
// from the first enabled ai source's file, when one is configured.
func buildSuggester(cfg *config.Config, prov *provenance.Tracker) mapping.Suggester {
	if cfg.Jina.Key == "" {
		return mapping.NoopSuggester{}
	}

	var taxonomyFile string
	for _, s := range cfg.Mapping.Sources {
		if s.Type == config.SourceAI && s.Enabled {
			taxonomyFile = s.File
			break
		}
	}

	client := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithModel(cfg.Jina.Model),
	)
	return mapping.NewEmbeddingSuggester(client, mapping.LoadTaxonomy(taxonomyFile), prov)
}

// Registry exposes the format handler registry so callers can register
// additional formats (e.g. parquet) before Run.
func (p *Pipeline) Registry() *dataset.Registry { return p.io }

// Tracker returns the run's provenance tracker.
func (p *Pipeline) Tracker() *provenance.Tracker { return p.prov }

// Run executes the configured stages in order. Any fatal error aborts the
// run before later stages execute; the ledger accumulated so far is not
// persisted on failure.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("run_id", p.prov.RunID()))
	log.Info("pipeline starting", zap.String("input", p.cfg.IO.InputFile))

	p.prov.Log("pipeline", "start", map[string]any{
		"input_file":  p.cfg.IO.InputFile,
		"output_file": p.cfg.IO.OutputFile,
	})

	// Load.
	p.prov.Log("io", "load_data",
		map[string]any{"input_file": p.cfg.IO.InputFile},
		provenance.WithFile(p.cfg.IO.InputFile))
	data, err := p.io.Load(p.cfg.IO.InputFile, p.cfg.IO.InputFormat,
		dataset.LoadOptions{SheetName: p.cfg.IO.SheetName})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load")
	}
	p.prov.Log("io", "data_loaded", map[string]any{
		"rows":    data.NumRows(),
		"columns": data.Columns(),
	}, provenance.WithRows(data.NumRows()))

	// Clean.
	if p.cfg.Cleaning.Enabled {
		p.prov.Log("cleaning", "start_cleaning", map[string]any{
			"rules_enabled": countEnabled(p.cfg.Cleaning.Rules),
		})
		data, err = p.cleaner.Apply(data, p.cfg.Cleaning.Rules)
		if err != nil {
			return nil, err
		}
	}

	// Map.
	if p.cfg.Mapping.Enabled {
		p.prov.Log("mapping", "start_mapping", map[string]any{
			"source_column": p.cfg.Mapping.SourceColumn,
			"target_column": p.cfg.Mapping.TargetColumn,
		})
		data, err = p.mapper.Apply(ctx, data, p.cfg.Mapping.Sources)
		if err != nil {
			return nil, err
		}
	}

	// Quality.
	var qualityResult *quality.Result
	if p.cfg.Quality.Enabled {
		p.prov.Log("quality", "start_quality_checks", map[string]any{
			"checks_enabled": countEnabled(p.cfg.Quality.Checks),
		})
		qualityResult = p.checker.Run(data, p.cfg.Quality.Checks)
	}

	// Save.
	p.prov.Log("io", "save_data", map[string]any{"output_file": p.cfg.IO.OutputFile})
	if err := p.io.Save(data, p.cfg.IO.OutputFile, p.cfg.IO.OutputFormat); err != nil {
		return nil, eris.Wrap(err, "pipeline: save")
	}
	p.prov.Log("io", "data_saved",
		map[string]any{"rows": data.NumRows()},
		provenance.WithRows(data.NumRows()))

	// Report.
	if p.cfg.Reporting.Enabled {
		reportPath := p.cfg.Reporting.OutputFile
		if !filepath.IsAbs(reportPath) {
			reportPath = filepath.Join(filepath.Dir(p.cfg.IO.OutputFile), reportPath)
		}
		p.prov.Log("reporting", "generate_report", map[string]any{"output_file": reportPath})
		err := report.Write(reportPath, p.cfg.Reporting.Format, report.Data{
			InputFile:    p.cfg.IO.InputFile,
			OutputFile:   p.cfg.IO.OutputFile,
			TargetColumn: p.cfg.Mapping.TargetColumn,
			Dataset:      data,
			Quality:      qualityResult,
			Provenance:   p.prov.Summarize(),
		})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: report")
		}
		p.prov.Log("reporting", "report_generated",
			map[string]any{"report_path": reportPath},
			provenance.WithFile(reportPath))
	}

	p.prov.Log("pipeline", "complete", map[string]any{"rows_final": data.NumRows()})

	// Persist provenance beside the output.
	provPath := filepath.Join(filepath.Dir(p.cfg.IO.OutputFile), "provenance.json")
	if err := p.prov.Save(provPath); err != nil {
		return nil, eris.Wrap(err, "pipeline: persist provenance")
	}

	log.Info("pipeline complete",
		zap.Int("rows", data.NumRows()),
		zap.String("output", p.cfg.IO.OutputFile),
	)

	return &Result{
		Data:           data,
		Quality:        qualityResult,
		ProvenanceFile: provPath,
	}, nil
}

func countEnabled(rules []config.Rule) int {
	var n int
	for _, r := range rules {
		if r.Enabled {
			n++
		}
	}
	return n
}
