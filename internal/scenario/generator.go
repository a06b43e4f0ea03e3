package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/QTest-hq/stlc/internal/db"
	"github.com/QTest-hq/stlc/internal/extract"
	"github.com/QTest-hq/stlc/internal/llm"
	"github.com/QTest-hq/stlc/pkg/model"
)

const (
	// DefaultAttempts is how many times a model is asked before its answer
	// is given up on
	DefaultAttempts = 3

	// DefaultConcurrency is how many scenarios get test cases at once
	DefaultConcurrency = 2
)

var (
	// ErrNoScenarios is returned when the model's answer holds no scenarios
	ErrNoScenarios = errors.New("no test scenarios in response")

	// ErrNoTestCases is returned when the model's answer holds no test cases
	ErrNoTestCases = errors.New("no test cases in response")
)

// failedTestCase is stored for a scenario whose test cases could not be
// generated
var failedTestCase = json.RawMessage(`{"error": "Failed to generate test case"}`)

// Output is the stored model output of a session
type Output struct {
	TestScenarios []Scenario  `json:"TestScenarios"`
	TestCases     []CaseGroup `json:"TestCases"`
}

// CaseGroup holds the test cases generated for one scenario. TestCase is the
// model's JSON, {"TestCases": [...]}, or an error object.
type CaseGroup struct {
	ScenarioID     string          `json:"scenario_id"`
	CombinedPrompt string          `json:"combined_prompt"`
	TestCase       json.RawMessage `json:"test_case"`
	Failed         bool            `json:"-"`
}

// Result is a finished generation session
type Result struct {
	Combination db.Combination
	Output      Output
}

// Failed counts the scenarios without test cases
func (r *Result) Failed() int {
	n := 0
	for _, g := range r.Output.TestCases {
		if g.Failed {
			n++
		}
	}
	return n
}

// Session builds the record to store for the result
func (r *Result) Session() (*db.Session, error) {
	data, err := json.Marshal(r.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model output: %w", err)
	}
	return &db.Session{
		ProcessTitle: r.Combination.ProcessTitle,
		Category:     r.Combination.Category,
		TestType:     r.Combination.TestType,
		ModelOutput:  data,
	}, nil
}

// TestCases flattens the result the same way a stored session is read back
func (r *Result) TestCases() ([]model.TestCase, int, error) {
	data, err := json.Marshal(r.Output)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode model output: %w", err)
	}
	return db.FlattenTestCases(data)
}

// Generator runs scenario and test case generation against a completer
type Generator struct {
	llm           llm.Completer
	scenarioModel string
	caseModel     string
	attempts      int
	concurrency   int
}

// Option configures a Generator
type Option func(*Generator)

// WithScenarioModel sets the model that writes scenarios. Empty uses the
// Tier2 default.
func WithScenarioModel(model string) Option {
	return func(g *Generator) {
		g.scenarioModel = model
	}
}

// WithCaseModel sets the model that writes test cases. Empty uses the
// scenario model.
func WithCaseModel(model string) Option {
	return func(g *Generator) {
		g.caseModel = model
	}
}

// WithAttempts sets how many times each answer is requested
func WithAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

// WithConcurrency bounds the scenarios processed at once
func WithConcurrency(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// NewGenerator creates a generator
func NewGenerator(completer llm.Completer, opts ...Option) *Generator {
	g := &Generator{
		llm:         completer,
		attempts:    DefaultAttempts,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.caseModel == "" {
		g.caseModel = g.scenarioModel
	}
	return g
}

// Generate asks for the scenarios of req's document and then for the test
// cases of each scenario. A scenario whose test cases cannot be generated
// records an error object and the session continues; failing to get any
// scenario fails the session.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	p, err := resolve(req)
	if err != nil {
		return nil, err
	}

	scenarios, err := g.scenarios(ctx, p)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("process", p.ProcessTitle).
		Str("test_type", p.TestType).
		Int("scenarios", len(scenarios)).
		Msg("generated scenarios")

	groups := make([]CaseGroup, len(scenarios))
	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, s := range scenarios {
		i, s := i, s
		eg.Go(func() error {
			groups[i] = g.testCases(ctx, p, s)
			return nil
		})
	}
	eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Combination: db.Combination{
			ProcessTitle: p.ProcessTitle,
			Category:     p.Category,
			TestType:     p.TestType,
		},
		Output: Output{TestScenarios: scenarios, TestCases: groups},
	}, nil
}

func (g *Generator) scenarios(ctx context.Context, p *plan) ([]Scenario, error) {
	prompt := p.scenarioPrompt()

	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		content, err := g.complete(ctx, g.scenarioModel, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		} else if scenarios, err := ParseScenarios(content); err != nil {
			lastErr = err
		} else {
			return scenarios, nil
		}
		log.Warn().Err(lastErr).Int("attempt", attempt).Msg("scenario generation failed")
	}
	return nil, fmt.Errorf("scenario generation failed after %d attempts: %w", g.attempts, lastErr)
}

func (g *Generator) testCases(ctx context.Context, p *plan, s Scenario) CaseGroup {
	group := CaseGroup{ScenarioID: s.ID(), CombinedPrompt: p.testCasePrompt(s)}

	for attempt := 1; attempt <= g.attempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		content, err := g.complete(ctx, g.caseModel, group.CombinedPrompt)
		if err == nil {
			var raw json.RawMessage
			if raw, err = ParseTestCases(content); err == nil {
				group.TestCase = raw
				return group
			}
		}
		log.Warn().
			Err(err).
			Str("scenario", group.ScenarioID).
			Int("attempt", attempt).
			Msg("test case generation failed")
	}

	group.TestCase = failedTestCase
	group.Failed = true
	return group
}

func (g *Generator) complete(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.llm.Complete(ctx, &llm.Request{
		Tier:     llm.Tier2,
		Model:    model,
		Messages: llm.UserMessage(prompt),
		Format:   llm.JSONFormat,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ParseScenarios reads {"TestScenarios": [...]} from a model answer. Numbers
// are kept exact and scenarios without a ScenarioID are numbered TS001 on.
func ParseScenarios(content string) ([]Scenario, error) {
	raw, ok := extract.ExtractRaw(content, extract.StringAware())
	if !ok {
		return nil, ErrNoScenarios
	}

	var out struct {
		TestScenarios []Scenario `json:"TestScenarios"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoScenarios, err)
	}
	if len(out.TestScenarios) == 0 {
		return nil, ErrNoScenarios
	}

	for i, s := range out.TestScenarios {
		if s == nil {
			s = Scenario{}
			out.TestScenarios[i] = s
		}
		if s.ID() == "" {
			s["ScenarioID"] = fmt.Sprintf("TS%03d", i+1)
		}
	}
	return out.TestScenarios, nil
}

// ParseTestCases returns the {"TestCases": [...]} object of a model answer
// as it was written
func ParseTestCases(content string) (json.RawMessage, error) {
	raw, ok := extract.ExtractRaw(content, extract.StringAware())
	if !ok {
		return nil, ErrNoTestCases
	}

	var out struct {
		TestCases []json.RawMessage `json:"TestCases"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTestCases, err)
	}
	if len(out.TestCases) == 0 {
		return nil, ErrNoTestCases
	}
	return raw, nil
}
