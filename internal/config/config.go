// Package config loads and validates the harmonization run configuration.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Source types for mapping sources.
const (
	SourceDirect = "direct"
	SourceFuzzy  = "fuzzy"
	SourceAI     = "ai"
)

// DefaultThreshold is applied to mapping sources that leave threshold
// unset.
const DefaultThreshold = 0.85

// Config holds the full run configuration.
type Config struct {
	IO        IOConfig        `yaml:"io" mapstructure:"io"`
	Cleaning  CleaningConfig  `yaml:"cleaning" mapstructure:"cleaning"`
	Mapping   MappingConfig   `yaml:"mapping" mapstructure:"mapping"`
	Quality   QualityConfig   `yaml:"quality" mapstructure:"quality"`
	Reporting ReportingConfig `yaml:"reporting" mapstructure:"reporting"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// IOConfig configures data input and output.
type IOConfig struct {
	InputFile    string `yaml:"input_file" mapstructure:"input_file"`
	OutputFile   string `yaml:"output_file" mapstructure:"output_file"`
	InputFormat  string `yaml:"input_format" mapstructure:"input_format"`
	OutputFormat string `yaml:"output_format" mapstructure:"output_format"`
	SheetName    string `yaml:"sheet_name,omitempty" mapstructure:"sheet_name"`
}

// Params holds free-form rule/check parameters from the config file.
type Params map[string]any

// Rule is one configured cleaning rule or quality check.
type Rule struct {
	Name       string `yaml:"name" mapstructure:"name"`
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	Parameters Params `yaml:"parameters,omitempty" mapstructure:"parameters"`
}

// CleaningConfig configures the cleaning stage.
type CleaningConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Rules   []Rule `yaml:"rules" mapstructure:"rules"`
}

// MappingSource is one ordered mapping strategy.
type MappingSource struct {
	Type      string  `yaml:"type" mapstructure:"type"`
	File      string  `yaml:"file,omitempty" mapstructure:"file"`
	Version   string  `yaml:"version,omitempty" mapstructure:"version"`
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
}

// MappingConfig configures the mapping stage.
type MappingConfig struct {
	Enabled      bool            `yaml:"enabled" mapstructure:"enabled"`
	SourceColumn string          `yaml:"source_column" mapstructure:"source_column"`
	TargetColumn string          `yaml:"target_column" mapstructure:"target_column"`
	ReviewFile   string          `yaml:"review_file" mapstructure:"review_file"`
	Sources      []MappingSource `yaml:"sources" mapstructure:"sources"`
}

// QualityConfig configures the quality stage.
type QualityConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Checks  []Rule `yaml:"checks" mapstructure:"checks"`
}

// ReportingConfig configures report generation.
type ReportingConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	OutputFile string `yaml:"output_file" mapstructure:"output_file"`
	Format     string `yaml:"format" mapstructure:"format"`
}

// JinaConfig holds the embeddings backend settings used by AI-assisted
// mapping. An empty key disables the backend (suggestions become empty).
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var validFormats = map[string]bool{
	"csv":     true,
	"excel":   true,
	"xlsx":    true,
	"json":    true,
	"parquet": true,
}

// Load reads configuration from the given YAML file and the HARMONIZE_*
// environment. With an empty path it searches the working directory for
// config.yaml; a missing file there is not an error (defaults apply), but
// an explicit path that cannot be read is.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HARMONIZE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("io.input_format", "csv")
	v.SetDefault("io.output_format", "csv")
	v.SetDefault("cleaning.enabled", true)
	v.SetDefault("mapping.enabled", true)
	v.SetDefault("mapping.target_column", "gbd_cause")
	v.SetDefault("mapping.review_file", "human_review_required.csv")
	v.SetDefault("quality.enabled", true)
	v.SetDefault("reporting.enabled", true)
	v.SetDefault("reporting.output_file", "harmonization_report.md")
	v.SetDefault("reporting.format", "markdown")
	v.SetDefault("jina.base_url", "https://api.jina.ai")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// Per-source threshold default. Only sources that omit the key get
	// the default: an explicit 0.0 is a valid threshold and must survive.
	rawSources, _ := v.Get("mapping.sources").([]any)
	for i := range cfg.Mapping.Sources {
		if thresholdSet(rawSources, i) {
			continue
		}
		cfg.Mapping.Sources[i].Threshold = DefaultThreshold
	}

	return &cfg, nil
}

// thresholdSet reports whether the i-th mapping source in the raw config
// carries an explicit threshold key.
func thresholdSet(rawSources []any, i int) bool {
	if i >= len(rawSources) {
		return false
	}
	m, ok := rawSources[i].(map[string]any)
	if !ok {
		return false
	}
	_, set := m["threshold"]
	return set
}

// Validate checks the configuration for a run. It must pass before any
// stage executes.
func (c *Config) Validate() error {
	if c.IO.InputFile == "" {
		return eris.New("config: validation failed: io.input_file is required")
	}
	if c.IO.OutputFile == "" {
		return eris.New("config: validation failed: io.output_file is required")
	}
	if !validFormats[strings.ToLower(c.IO.InputFormat)] {
		return eris.Errorf("config: validation failed: invalid io.input_format %q (csv, excel, xlsx, json, parquet)", c.IO.InputFormat)
	}
	if !validFormats[strings.ToLower(c.IO.OutputFormat)] {
		return eris.Errorf("config: validation failed: invalid io.output_format %q (csv, excel, xlsx, json, parquet)", c.IO.OutputFormat)
	}

	if c.Mapping.Enabled {
		if c.Mapping.SourceColumn == "" {
			return eris.New("config: validation failed: mapping.source_column is required when mapping is enabled")
		}
		if c.Mapping.TargetColumn == "" {
			return eris.New("config: validation failed: mapping.target_column must not be empty")
		}
		for i, s := range c.Mapping.Sources {
			switch s.Type {
			case SourceDirect, SourceFuzzy, SourceAI:
			default:
				return eris.Errorf("config: validation failed: mapping.sources[%d]: unknown type %q (direct, fuzzy, ai)", i, s.Type)
			}
			if s.Threshold < 0 || s.Threshold > 1 {
				return eris.Errorf("config: validation failed: mapping.sources[%d]: threshold %v outside [0,1]", i, s.Threshold)
			}
		}
	}

	if c.Reporting.Enabled {
		switch strings.ToLower(c.Reporting.Format) {
		case "markdown", "html":
		default:
			return eris.Errorf("config: validation failed: invalid reporting.format %q (markdown, html)", c.Reporting.Format)
		}
	}

	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
