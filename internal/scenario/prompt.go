package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ErrMissingField is returned when a generation request lacks a required field
var ErrMissingField = errors.New("missing required field")

// Request describes one generation session
type Request struct {
	ProcessTitle string `json:"process_title"`
	DocumentType string `json:"document_type"`
	Document     string `json:"document"`
	Category     string `json:"category,omitempty"`
	TestType     string `json:"test_type"`

	// Prompt replaces the test type's scenario prompt when set
	Prompt string `json:"prompt,omitempty"`

	// Element names; empty selects every element of the kind
	Instructions []string `json:"instructions,omitempty"`
	Scoring      []string `json:"scoring,omitempty"`
	CaseTypes    []string `json:"case_types,omitempty"`
}

// Validate checks the request without generating anything
func (r Request) Validate() error {
	_, err := resolve(r)
	return err
}

// plan is a validated request with its elements resolved
type plan struct {
	Request
	testType     TestType
	instructions []Element
	scoring      []Element
	caseTypes    []Element
}

// resolve validates req. An empty category takes the test type's; an empty
// document type is "Other".
func resolve(req Request) (*plan, error) {
	switch {
	case strings.TrimSpace(req.ProcessTitle) == "":
		return nil, fmt.Errorf("%w: process_title", ErrMissingField)
	case strings.TrimSpace(req.Document) == "":
		return nil, fmt.Errorf("%w: document", ErrMissingField)
	case req.TestType == "":
		return nil, fmt.Errorf("%w: test_type", ErrMissingField)
	}

	tt, err := LookupTestType(req.TestType)
	if err != nil {
		return nil, err
	}
	p := &plan{Request: req, testType: tt}
	p.TestType = tt.Name

	if p.Category == "" {
		p.Category = tt.Category
	} else if !strings.EqualFold(p.Category, tt.Category) {
		return nil, fmt.Errorf("test type %q is %s, not %s", tt.Name, tt.Category, p.Category)
	} else {
		p.Category = tt.Category
	}

	if p.DocumentType == "" {
		p.DocumentType = "Other"
	} else if !slices.Contains(DocumentTypes, p.DocumentType) {
		return nil, fmt.Errorf("unknown document type %q", p.DocumentType)
	}

	if p.instructions, err = pick("instruction", InstructionElements, req.Instructions); err != nil {
		return nil, err
	}
	if p.scoring, err = pick("scoring", ScoringElements, req.Scoring); err != nil {
		return nil, err
	}
	if p.caseTypes, err = pick("case type", CaseTypes, req.CaseTypes); err != nil {
		return nil, err
	}
	return p, nil
}

const scenarioStructure = `Return your response only as valid JSON with the following structure:

{
  "TestScenarios": [
    {
      "ScenarioID": "TS001",
      "Title": "<short title>",
      "Description": "<what the scenario covers>",
      "Priority": "<High, Medium or Low>",
      "Scores": {"<scoring element>": <score>}
    }
  ]
}`

const testCaseMainPrompt = `You are a senior QA engineer. Write detailed test cases for the test scenario below.
Every test case must belong to the scenario and have a unique TestCaseID.`

const testCaseStructure = `Return your response only as valid JSON with the following structure:

{
  "TestCases": [
    {
      "ScenarioID": "<scenario id>",
      "TestCaseID": "TC001",
      "Title": "<short title>",
      "Description": "<what is tested>",
      "Objective": "<why it is tested>",
      "Steps": ["<step>"],
      "ExpectedResult": "<expected outcome>"
    }
  ]
}`

// scenarioPrompt asks for the scenarios of the whole document
func (p *plan) scenarioPrompt() string {
	base := p.Prompt
	if base == "" {
		base = p.testType.Prompt
	}

	var b strings.Builder
	b.WriteString(base)
	fmt.Fprintf(&b, "\n\nProcess: %s\n", p.ProcessTitle)
	fmt.Fprintf(&b, "Document Type: %s\n", p.DocumentType)
	fmt.Fprintf(&b, "Test Category: %s\n", p.Category)
	fmt.Fprintf(&b, "Test Type: %s (%s)\n", p.TestType, p.testType.Approach)
	writeElements(&b, "Instructions", p.instructions)
	writeElements(&b, "Scoring", p.scoring)
	fmt.Fprintf(&b, "\nDocument:\n%s\n\n", p.Document)
	b.WriteString(scenarioStructure)
	return b.String()
}

// testCasePrompt asks for the test cases of one scenario
func (p *plan) testCasePrompt(s Scenario) string {
	caseTypes := make([]string, len(p.caseTypes))
	for i, ct := range p.caseTypes {
		caseTypes[i] = fmt.Sprintf("Test Case Type: %s\n%s", ct.Name, ct.Prompt)
	}

	return fmt.Sprintf("%s\n\nScenario Details:\n%s\n\nCombined Test Case Prompts:\n%s\n\n%s",
		testCaseMainPrompt, s.Details(), strings.Join(caseTypes, "\n\n"), testCaseStructure)
}

func writeElements(b *strings.Builder, heading string, elements []Element) {
	if len(elements) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", heading)
	for _, e := range elements {
		fmt.Fprintf(b, "- %s: %s\n", e.Name, e.Prompt)
	}
}

// Scenario is one generated test scenario. Its fields are whatever the model
// returned; ScenarioID is always set.
type Scenario map[string]any

// ID returns the scenario's ScenarioID as a string
func (s Scenario) ID() string {
	switch v := s["ScenarioID"].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Details renders the scenario as "key: value" lines, ScenarioID first and
// the rest sorted by key
func (s Scenario) Details() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		if k != "ScenarioID" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	keys = append([]string{"ScenarioID"}, keys...)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, detailValue(s[k])))
	}
	return strings.Join(lines, "\n")
}

func detailValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
