package selection

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Summary holds the counts of a selection pass
type Summary struct {
	Input       int `json:"input"`
	Unique      int `json:"unique"`
	Duplicates  int `json:"duplicates"`
	Comparisons int `json:"comparisons"`
	Warnings    int `json:"warnings"`
}

// Summary returns the counts of the result
func (r *Result) Summary() Summary {
	return Summary{
		Input:       len(r.Unique) + len(r.Duplicates),
		Unique:      len(r.Unique),
		Duplicates:  len(r.Duplicates),
		Comparisons: len(r.Log),
		Warnings:    len(r.Warnings),
	}
}

// Encode writes the result as indented JSON
func (r *Result) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

// WriteReport writes the result to path, creating parent directories
func WriteReport(path string, r *Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	if err := r.Encode(f); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport
func ReadReport(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
