package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/QTest-hq/stlc/internal/config"
	"github.com/QTest-hq/stlc/internal/llm"
)

// env is what every command shares, resolved once per invocation
type env struct {
	cfg     *config.Config
	project *config.ProjectConfig
	dir     string
}

var cliEnv *env

func loadEnv(dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	project, err := config.LoadProjectConfig(dir)
	if err != nil {
		return err
	}

	cliEnv = &env{cfg: cfg, project: project, dir: dir}
	return nil
}

// outputDir is the project's output_dir, relative to the project directory,
// or STLC_OUTPUT_DIR when the project sets none
func (e *env) outputDir() string {
	if e.project.OutputDir == "" {
		return e.cfg.OutputDir
	}
	if filepath.IsAbs(e.project.OutputDir) {
		return e.project.OutputDir
	}
	return filepath.Join(e.dir, e.project.OutputDir)
}

// selectionModel prefers the flag, then the project file, then the environment
func (e *env) selectionModel(flag string) string {
	switch {
	case flag != "":
		return flag
	case e.project.Selection.Model != "":
		return e.project.Selection.Model
	default:
		return e.cfg.Selection.Model
	}
}

// completer builds the cached LLM router and checks that a server answers
func (e *env) completer() (llm.Completer, *llm.Router, error) {
	completer, router, err := llm.NewFromConfig(e.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM router: %w", err)
	}
	if err := router.HealthCheck(); err != nil {
		return nil, router, fmt.Errorf("LLM not available: %w\nMake sure Ollama is running: ollama serve", err)
	}
	return completer, router, nil
}

// parseDocs reads key=path pairs into document contents
func parseDocs(pairs []string) (map[string]string, error) {
	docs := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, path, ok := strings.Cut(pair, "=")
		if !ok || key == "" || path == "" {
			return nil, fmt.Errorf("invalid --doc %q, want key=path", pair)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		docs[key] = string(data)
	}
	return docs, nil
}

// maskConnectionString hides the password of a connection URL for display
func maskConnectionString(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	if _, ok := u.User.Password(); !ok {
		return s
	}
	return strings.Replace(u.String(), u.User.String()+"@", u.User.Username()+":****@", 1)
}
