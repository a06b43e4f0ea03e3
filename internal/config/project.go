package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFileNames are the names searched for a project configuration
var ProjectFileNames = []string{".stlc.yaml", ".stlc.yml"}

// ProjectConfig represents a .stlc.yaml file
type ProjectConfig struct {
	Version string `yaml:"version"`

	// Where outputs are written, relative to the config file
	OutputDir string `yaml:"output_dir,omitempty"`

	// Smart selection settings
	Selection ProjectSelection `yaml:"selection"`

	// Prompt chain structure per phase (code-review, test-planning, ...)
	Phases map[string]PhaseConfig `yaml:"phases,omitempty"`
}

// ProjectSelection holds smart selection preferences
type ProjectSelection struct {
	Model  string `yaml:"model,omitempty"`
	Report string `yaml:"report,omitempty"`
}

// PhaseConfig configures the prompt chain of one lifecycle phase
type PhaseConfig struct {
	// Levels run top to bottom; each level has a left and a right node
	Levels []LevelConfig `yaml:"levels,omitempty"`

	// Model that summarizes the chain
	FinalModel string `yaml:"final_model,omitempty"`
}

// LevelConfig is one level of a prompt chain
type LevelConfig struct {
	Left  NodeConfig `yaml:"left"`
	Right NodeConfig `yaml:"right"`
}

// NodeConfig names the model of a node and an optional prompt override
type NodeConfig struct {
	Model  string `yaml:"model"`
	Prompt string `yaml:"prompt,omitempty"`
}

// DefaultProjectConfig returns sensible defaults
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Version:   "1.0",
		OutputDir: "outputs",
		Selection: ProjectSelection{
			Model:  "llama3.2",
			Report: "smart_selection_results.json",
		},
		Phases: map[string]PhaseConfig{},
	}
}

// FindProjectConfig returns the path of the first project file in dir, or ""
func FindProjectConfig(dir string) string {
	for _, name := range ProjectFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadProjectConfig loads the project file from dir, falling back to defaults
func LoadProjectConfig(dir string) (*ProjectConfig, error) {
	path := FindProjectConfig(dir)
	if path == "" {
		return DefaultProjectConfig(), nil
	}
	return LoadProjectFile(path)
}

// LoadProjectFile loads a project configuration from an explicit path
func LoadProjectFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	cfg := DefaultProjectConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveProjectConfig saves the config to dir/.stlc.yaml
func SaveProjectConfig(dir string, cfg *ProjectConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, ProjectFileNames[0]), data, 0644)
}

// Validate checks that every configured node names a model
func (c *ProjectConfig) Validate() error {
	for phase, pc := range c.Phases {
		for i, level := range pc.Levels {
			if level.Left.Model == "" || level.Right.Model == "" {
				return fmt.Errorf("phase %s level %d: both nodes need a model", phase, i+1)
			}
		}
	}
	return nil
}

// Phase returns the chain configuration of a phase
func (c *ProjectConfig) Phase(name string) (PhaseConfig, bool) {
	pc, ok := c.Phases[name]
	return pc, ok
}
