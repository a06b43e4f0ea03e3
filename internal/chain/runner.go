package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/QTest-hq/stlc/internal/config"
	"github.com/QTest-hq/stlc/internal/extract"
	"github.com/QTest-hq/stlc/internal/llm"
)

const (
	// DefaultFinalModel evaluates the last level's feedback
	DefaultFinalModel = "llama3.1"

	// SuggestionFile is the name a suggested chain is saved under
	SuggestionFile = "suggested_structure.json"
)

var (
	// ErrNoPrompt is returned when a node has no prompt and its model has
	// no default template in the phase
	ErrNoPrompt = errors.New("no prompt for model")

	// ErrNoSuggestion is returned when the suggestion model's answer holds
	// no usable chain
	ErrNoSuggestion = errors.New("no chain suggestion in response")
)

// Runner executes prompt chains against a completer
type Runner struct {
	llm          llm.Completer
	finalModel   string
	suggestModel string
	sink         extract.Sink
	now          func() time.Time
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithFinalModel sets the model of the closing evaluation
func WithFinalModel(model string) RunnerOption {
	return func(r *Runner) {
		if model != "" {
			r.finalModel = model
		}
	}
}

// WithSuggestionModel sets the model asked for chain suggestions
func WithSuggestionModel(model string) RunnerOption {
	return func(r *Runner) {
		if model != "" {
			r.suggestModel = model
		}
	}
}

// WithSuggestionSink saves every parsed suggestion as SuggestionFile
func WithSuggestionSink(sink extract.Sink) RunnerOption {
	return func(r *Runner) {
		r.sink = sink
	}
}

// WithRunnerClock overrides the session timestamps
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a runner
func NewRunner(completer llm.Completer, opts ...RunnerOption) *Runner {
	r := &Runner{
		llm:          completer,
		finalModel:   DefaultFinalModel,
		suggestModel: DefaultFinalModel,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FinalModel returns the model used for the closing evaluation
func (r *Runner) FinalModel() string {
	return r.finalModel
}

// Run executes levels top to bottom. Both nodes of a level receive the
// combined feedback of the previous level; the final model then evaluates
// the feedback of the last level. With no levels, a single level of the
// final model on both sides is used.
//
// A node that fails records "An error occurred: ..." as its output and the
// chain continues. Cancelling ctx returns the levels completed so far.
func (r *Runner) Run(ctx context.Context, phase *Phase, docs map[string]string, levels []Level) (*Session, error) {
	if err := phase.Validate(docs); err != nil {
		return nil, err
	}

	if len(levels) == 0 {
		levels = []Level{{Left: Node{Model: r.finalModel}, Right: Node{Model: r.finalModel}}}
	}
	resolved, err := r.resolve(phase, levels)
	if err != nil {
		return nil, err
	}
	finalPrompt, ok := phase.Template(r.finalModel)
	if !ok {
		return nil, fmt.Errorf("%w %s in phase %s", ErrNoPrompt, r.finalModel, phase.Name)
	}

	session := &Session{
		ID:        uuid.NewString(),
		Phase:     phase.Name,
		StartedAt: r.now(),
		Levels:    make([]LevelOutput, 0, len(resolved)),
	}

	feedback := ""
	for i, level := range resolved {
		if err := ctx.Err(); err != nil {
			return session, err
		}

		out := LevelOutput{
			Level:      i + 1,
			LeftModel:  level.Left.Model,
			RightModel: level.Right.Model,
		}

		var g errgroup.Group
		g.Go(func() error {
			out.LeftPrompt, out.LeftOutput = r.invoke(ctx, phase, docs, level.Left, feedback)
			return nil
		})
		g.Go(func() error {
			out.RightPrompt, out.RightOutput = r.invoke(ctx, phase, docs, level.Right, feedback)
			return nil
		})
		g.Wait()

		if err := ctx.Err(); err != nil {
			return session, err
		}

		session.Levels = append(session.Levels, out)
		feedback = out.Feedback()

		log.Debug().
			Str("phase", phase.Name).
			Int("level", out.Level).
			Str("left", out.LeftModel).
			Str("right", out.RightModel).
			Msg("chain level complete")
	}

	prompt, output := r.invoke(ctx, phase, docs, Node{Model: r.finalModel, Prompt: finalPrompt}, feedback)
	if err := ctx.Err(); err != nil {
		return session, err
	}
	session.Final = &FinalOutput{
		FinalModel:  r.finalModel,
		FinalPrompt: prompt,
		FinalOutput: output,
	}
	session.CompletedAt = r.now()

	log.Info().
		Str("session", session.ID).
		Str("phase", phase.Name).
		Int("levels", len(session.Levels)).
		Msg("chain complete")

	return session, nil
}

// resolve fills empty prompts from the phase templates
func (r *Runner) resolve(phase *Phase, levels []Level) ([]Level, error) {
	out := make([]Level, len(levels))
	for i, level := range levels {
		for _, node := range []*Node{&level.Left, &level.Right} {
			if node.Model == "" {
				return nil, fmt.Errorf("level %d: node has no model", i+1)
			}
			if node.Prompt != "" {
				continue
			}
			tmpl, ok := phase.Template(node.Model)
			if !ok {
				return nil, fmt.Errorf("level %d: %w %s in phase %s", i+1, ErrNoPrompt, node.Model, phase.Name)
			}
			node.Prompt = tmpl
		}
		out[i] = level
	}
	return out, nil
}

// invoke renders the node's prompt and asks its model. Failures are
// returned as the output text.
func (r *Runner) invoke(ctx context.Context, phase *Phase, docs map[string]string, node Node, feedback string) (string, string) {
	prompt, err := Render(node.Prompt, phase.Variables(docs, feedback))
	if err != nil {
		log.Warn().Err(err).Str("model", node.Model).Msg("failed to render prompt")
		return "", fmt.Sprintf("An error occurred: %v", err)
	}

	resp, err := r.llm.Complete(ctx, &llm.Request{
		Tier:     llm.Tier2,
		Model:    node.Model,
		Messages: llm.UserMessage(prompt),
	})
	if err != nil {
		log.Warn().Err(err).Str("model", node.Model).Msg("chain node failed")
		return prompt, fmt.Sprintf("An error occurred: %v", err)
	}
	return prompt, resp.Content
}

type suggestionDoc struct {
	Suggestions []struct {
		Level any   `json:"level"`
		Left  *Node `json:"left_node"`
		Right *Node `json:"right_node"`
	} `json:"suggestions"`
}

// Suggest asks the suggestion model for a chain structure for phase and
// returns its levels. Suggestions missing a node or a model are skipped.
// The raw answer is returned alongside for display.
func (r *Runner) Suggest(ctx context.Context, phase *Phase, docs map[string]string) ([]Level, string, error) {
	if err := phase.Validate(docs); err != nil {
		return nil, "", err
	}

	instruction := llm.ChainSuggestionPrompt(phase.Title, phase.Models(), phase.Placeholders())

	prompt := instruction
	if tmpl, ok := phase.Template(r.suggestModel); ok {
		rendered, err := Render(tmpl, phase.Variables(docs, instruction))
		if err != nil {
			return nil, "", err
		}
		prompt = rendered
		if !slices.Contains(Placeholders(tmpl), KeyFeedback) {
			prompt += "\n\n" + instruction
		}
	}

	resp, err := r.llm.Complete(ctx, &llm.Request{
		Tier:     llm.Tier2,
		Model:    r.suggestModel,
		Messages: llm.UserMessage(prompt),
		Format:   llm.JSONFormat,
	})
	if err != nil {
		return nil, "", fmt.Errorf("suggestion request failed: %w", err)
	}

	levels, err := ParseSuggestion(resp.Content)
	if err != nil {
		return nil, resp.Content, err
	}

	if r.sink != nil {
		msg, _ := extract.ExtractAndSave(resp.Content, SuggestionFile, r.sink, extract.StringAware())
		log.Info().Str("phase", phase.Name).Msg(msg)
	}

	return levels, resp.Content, nil
}

// ParseSuggestion reads {"suggestions": [...]} out of a model answer
func ParseSuggestion(content string) ([]Level, error) {
	raw, ok := extract.ExtractRaw(content, extract.StringAware())
	if !ok {
		return nil, ErrNoSuggestion
	}

	var doc suggestionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSuggestion, err)
	}

	var levels []Level
	for i, s := range doc.Suggestions {
		if s.Left == nil || s.Right == nil || s.Left.Model == "" || s.Right.Model == "" {
			log.Warn().Int("suggestion", i+1).Msg("missing node in suggestion, skipping")
			continue
		}
		levels = append(levels, Level{Left: *s.Left, Right: *s.Right})
	}
	if len(levels) == 0 {
		return nil, ErrNoSuggestion
	}
	return levels, nil
}

// LevelsFromConfig converts the configured levels of a phase
func LevelsFromConfig(pc config.PhaseConfig) []Level {
	levels := make([]Level, len(pc.Levels))
	for i, l := range pc.Levels {
		levels[i] = Level{
			Left:  Node{Model: l.Left.Model, Prompt: l.Left.Prompt},
			Right: Node{Model: l.Right.Model, Prompt: l.Right.Prompt},
		}
	}
	return levels
}
