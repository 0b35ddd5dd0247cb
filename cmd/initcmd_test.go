package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vitalstats/harmonize/internal/config"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfig_RoundTripsThroughYAML(t *testing.T) {
	t.Parallel()

	data, err := yaml.Marshal(defaultConfig())
	require.NoError(t, err)

	var decoded config.Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))

	assert.Equal(t, "data/input.csv", decoded.IO.InputFile)
	assert.Equal(t, "icd10_code", decoded.Mapping.SourceColumn)
	assert.Len(t, decoded.Mapping.Sources, 3)
	assert.Equal(t, config.SourceDirect, decoded.Mapping.Sources[0].Type)
	assert.True(t, decoded.Mapping.Sources[0].Enabled)
	assert.False(t, decoded.Mapping.Sources[1].Enabled)
	assert.NoError(t, decoded.Validate())
}

func TestInitCommand_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("io: {}\n"), 0o644))

	prev := initOutPath
	initOutPath = path
	defer func() { initOutPath = prev }()

	err := initCmd.RunE(initCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitCommand_WritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	prev := initOutPath
	initOutPath = path
	defer func() { initOutPath = prev }()

	require.NoError(t, initCmd.RunE(initCmd, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded config.Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.NoError(t, decoded.Validate())
}
