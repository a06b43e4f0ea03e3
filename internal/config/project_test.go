package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProjectConfig(t *testing.T) {
	cfg := DefaultProjectConfig()

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, "outputs", cfg.OutputDir)
	assert.Equal(t, "llama3.2", cfg.Selection.Model)
	assert.Equal(t, "smart_selection_results.json", cfg.Selection.Report)
	assert.NotNil(t, cfg.Phases)
}

func TestLoadProjectConfig_NoFile(t *testing.T) {
	cfg, err := LoadProjectConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultProjectConfig(), cfg)
}

func TestLoadProjectConfig_WithPhases(t *testing.T) {
	dir := t.TempDir()
	content := `version: "1.0"
output_dir: reports
selection:
  model: qwen2.5:7b
phases:
  code-review:
    final_model: llama3.1
    levels:
      - left:
          model: deepseek-coder
        right:
          model: codegemma
          prompt: "Review {source_code} with {feedback}"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".stlc.yaml"), []byte(content), 0644))

	cfg, err := LoadProjectConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "reports", cfg.OutputDir)
	assert.Equal(t, "qwen2.5:7b", cfg.Selection.Model)
	assert.Equal(t, "smart_selection_results.json", cfg.Selection.Report, "unset fields keep defaults")

	phase, ok := cfg.Phase("code-review")
	require.True(t, ok)
	assert.Equal(t, "llama3.1", phase.FinalModel)
	require.Len(t, phase.Levels, 1)
	assert.Equal(t, "deepseek-coder", phase.Levels[0].Left.Model)
	assert.Equal(t, "Review {source_code} with {feedback}", phase.Levels[0].Right.Prompt)

	_, ok = cfg.Phase("test-planning")
	assert.False(t, ok)
}

func TestLoadProjectConfig_YmlExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".stlc.yml"), []byte("output_dir: out\n"), 0644))

	assert.Equal(t, filepath.Join(dir, ".stlc.yml"), FindProjectConfig(dir))

	cfg, err := LoadProjectConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.OutputDir)
}

func TestLoadProjectConfig_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".stlc.yaml"), []byte("phases: [unclosed"), 0644))

	_, err := LoadProjectConfig(dir)
	assert.Error(t, err)
}

func TestLoadProjectConfig_LevelWithoutModel(t *testing.T) {
	dir := t.TempDir()
	content := `phases:
  test-planning:
    levels:
      - left:
          model: llama3.1
        right:
          prompt: "orphan"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".stlc.yaml"), []byte(content), 0644))

	_, err := LoadProjectConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test-planning level 1")
}

func TestSaveProjectConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultProjectConfig()
	cfg.Phases["test-reporting"] = PhaseConfig{
		FinalModel: "llama3.1",
		Levels: []LevelConfig{
			{Left: NodeConfig{Model: "codellama"}, Right: NodeConfig{Model: "mathstral"}},
		},
	}

	require.NoError(t, SaveProjectConfig(dir, cfg))

	loaded, err := LoadProjectConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
