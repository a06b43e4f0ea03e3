package chain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Node is one model invocation within a level
type Node struct {
	Model  string `json:"llm_model" yaml:"model"`
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
}

// Level pairs a left and a right node that see the same feedback
type Level struct {
	Left  Node `json:"left_node" yaml:"left"`
	Right Node `json:"right_node" yaml:"right"`
}

// LevelOutput records what each node of a level was asked and answered
type LevelOutput struct {
	Level       int    `json:"level"`
	LeftModel   string `json:"left_model"`
	LeftPrompt  string `json:"left_prompt"`
	LeftOutput  string `json:"left_output"`
	RightModel  string `json:"right_model"`
	RightPrompt string `json:"right_prompt"`
	RightOutput string `json:"right_output"`
}

func (o LevelOutput) fields() [][2]string {
	return [][2]string{
		{"level", fmt.Sprint(o.Level)},
		{"left_model", o.LeftModel},
		{"left_prompt", o.LeftPrompt},
		{"left_output", o.LeftOutput},
		{"right_model", o.RightModel},
		{"right_prompt", o.RightPrompt},
		{"right_output", o.RightOutput},
	}
}

// Feedback combines both outputs into the input of the next level
func (o LevelOutput) Feedback() string {
	return fmt.Sprintf("Left Model Feedback: %s\nRight Model Feedback: %s", o.LeftOutput, o.RightOutput)
}

// FinalOutput is the closing evaluation over the last level's feedback
type FinalOutput struct {
	FinalModel  string `json:"final_model"`
	FinalPrompt string `json:"final_prompt"`
	FinalOutput string `json:"final_output"`
}

func (o FinalOutput) fields() [][2]string {
	return [][2]string{
		{"final_model", o.FinalModel},
		{"final_prompt", o.FinalPrompt},
		{"final_output", o.FinalOutput},
	}
}

// Session is the full record of one chain run
type Session struct {
	ID          string        `json:"id"`
	Phase       string        `json:"phase"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Levels      []LevelOutput `json:"levels"`
	Final       *FinalOutput  `json:"final,omitempty"`
}

// Records returns the level outputs followed by the final output, the
// layout of the saved session files.
func (s *Session) Records() []any {
	records := make([]any, 0, len(s.Levels)+1)
	for _, l := range s.Levels {
		records = append(records, l)
	}
	if s.Final != nil {
		records = append(records, *s.Final)
	}
	return records
}

// Feedback returns the combined feedback of the last level
func (s *Session) Feedback() string {
	if len(s.Levels) == 0 {
		return ""
	}
	return s.Levels[len(s.Levels)-1].Feedback()
}

func prefixOf(s *Session) string {
	if p, err := LookupPhase(s.Phase); err == nil {
		return p.OutputPrefix
	}
	return strings.ReplaceAll(s.Phase, "-", "_")
}

// LevelFileName names the saved output of level n (1-based)
func LevelFileName(s *Session, n int, ext string) string {
	return fmt.Sprintf("%s_outputs_level_%d.%s", prefixOf(s), n, ext)
}

// FinalFileName names the saved output of the whole session
func FinalFileName(s *Session, ext string) string {
	return fmt.Sprintf("final_%s_outputs.%s", prefixOf(s), ext)
}

// WriteLevelJSON writes level n (1-based) to dir and returns its path
func WriteLevelJSON(dir string, s *Session, n int) (string, error) {
	if n < 1 || n > len(s.Levels) {
		return "", fmt.Errorf("level %d out of range 1..%d", n, len(s.Levels))
	}
	path := filepath.Join(dir, LevelFileName(s, n, "json"))
	return path, writeJSON(path, s.Levels[n-1])
}

// WriteLevelText writes level n (1-based) as "key: value" lines
func WriteLevelText(dir string, s *Session, n int) (string, error) {
	if n < 1 || n > len(s.Levels) {
		return "", fmt.Errorf("level %d out of range 1..%d", n, len(s.Levels))
	}
	path := filepath.Join(dir, LevelFileName(s, n, "txt"))
	return path, writeText(path, [][][2]string{s.Levels[n-1].fields()})
}

// WriteJSON writes every record of the session to dir and returns the path
func WriteJSON(dir string, s *Session) (string, error) {
	path := filepath.Join(dir, FinalFileName(s, "json"))
	return path, writeJSON(path, s.Records())
}

// WriteText writes every record of the session as "key: value" lines,
// one blank line between records.
func WriteText(dir string, s *Session) (string, error) {
	blocks := make([][][2]string, 0, len(s.Levels)+1)
	for _, l := range s.Levels {
		blocks = append(blocks, l.fields())
	}
	if s.Final != nil {
		blocks = append(blocks, s.Final.fields())
	}
	path := filepath.Join(dir, FinalFileName(s, "txt"))
	return path, writeText(path, blocks)
}

// WriteAll saves every level and the whole session in both formats
func WriteAll(dir string, s *Session) ([]string, error) {
	var paths []string
	for n := 1; n <= len(s.Levels); n++ {
		for _, write := range []func(string, *Session, int) (string, error){WriteLevelJSON, WriteLevelText} {
			p, err := write(dir, s, n)
			if err != nil {
				return paths, err
			}
			paths = append(paths, p)
		}
	}
	for _, write := range []func(string, *Session) (string, error){WriteJSON, WriteText} {
		p, err := write(dir, s)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}
	return writeFile(path, data)
}

func writeText(path string, blocks [][][2]string) error {
	var b strings.Builder
	for _, fields := range blocks {
		for _, kv := range fields {
			fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
		}
		b.WriteString("\n")
	}
	return writeFile(path, []byte(b.String()))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
