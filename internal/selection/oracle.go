package selection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/QTest-hq/stlc/internal/extract"
	"github.com/QTest-hq/stlc/internal/llm"
	"github.com/QTest-hq/stlc/pkg/model"
)

// ErrInvalidVerdict is returned when the model's answer cannot be read as a verdict
var ErrInvalidVerdict = errors.New("LLM response is not a valid verdict")

// LLMOracle asks a language model whether two test cases are the same
type LLMOracle struct {
	llm   llm.Completer
	model string
	tier  llm.Tier
}

// NewLLMOracle creates an oracle that queries model through completer.
// An empty model uses the Tier1 default.
func NewLLMOracle(completer llm.Completer, model string) *LLMOracle {
	return &LLMOracle{
		llm:   completer,
		model: model,
		tier:  llm.Tier1,
	}
}

// IsSame implements Oracle
func (o *LLMOracle) IsSame(ctx context.Context, candidate, kept model.TestCase) (bool, error) {
	prompt, err := llm.SimilarityPrompt(candidate, kept)
	if err != nil {
		return false, err
	}

	resp, err := o.llm.Complete(ctx, &llm.Request{
		Tier:     o.tier,
		Model:    o.model,
		Messages: llm.UserMessage(prompt),
		Format:   llm.SimilaritySchema,
	})
	if err != nil {
		return false, fmt.Errorf("similarity request failed: %w", err)
	}

	return parseVerdict(resp.Content)
}

// parseVerdict reads {"is_same": bool} out of a response.
// A JSON object without is_same counts as "not the same".
func parseVerdict(content string) (bool, error) {
	content = strings.TrimSpace(content)

	obj, ok := extract.Extract(content, extract.StringAware())
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrInvalidVerdict, content)
	}

	raw, present := obj["is_same"]
	if !present {
		return false, nil
	}
	same, isBool := raw.(bool)
	if !isBool {
		return false, fmt.Errorf("%w: is_same is %T", ErrInvalidVerdict, raw)
	}
	return same, nil
}
