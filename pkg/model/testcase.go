// Package model defines the records that flow through the test lifecycle
// toolkit. A TestCase is the unit the smart selection pass deduplicates; it is
// the shape produced by scenario generation and stored alongside sessions.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoValidCases is returned when an upload contains no usable test case
var ErrNoValidCases = errors.New("no valid test cases found")

// TestCase is a single generated test case.
// Two test cases are never compared field by field; sameness is decided by
// an external oracle. Every field is always encoded, unset optional fields
// as null, so logged snapshots keep the full record.
type TestCase struct {
	ScenarioID  string  `json:"ScenarioID"`
	TestCaseID  string  `json:"TestCaseID"`
	Title       string  `json:"Title"`
	Description *string `json:"Description"`
	Objective   *string `json:"Objective"`
}

// NewTestCase builds a test case with optional description and objective.
// Empty strings leave the optional fields unset.
func NewTestCase(scenarioID, testCaseID, title, description, objective string) TestCase {
	tc := TestCase{
		ScenarioID: scenarioID,
		TestCaseID: testCaseID,
		Title:      title,
	}
	if description != "" {
		tc.Description = &description
	}
	if objective != "" {
		tc.Objective = &objective
	}
	return tc
}

// Key returns "<ScenarioID>_<TestCaseID>", used to address a case in a session
func (tc TestCase) Key() string {
	return tc.ScenarioID + "_" + tc.TestCaseID
}

// DescriptionOr returns the description or fallback when unset
func (tc TestCase) DescriptionOr(fallback string) string {
	if tc.Description == nil {
		return fallback
	}
	return *tc.Description
}

// ObjectiveOr returns the objective or fallback when unset
func (tc TestCase) ObjectiveOr(fallback string) string {
	if tc.Objective == nil {
		return fallback
	}
	return *tc.Objective
}

// Validate checks that all required fields are present
func (tc TestCase) Validate() error {
	var missing []string
	if strings.TrimSpace(tc.ScenarioID) == "" {
		missing = append(missing, "ScenarioID")
	}
	if strings.TrimSpace(tc.TestCaseID) == "" {
		missing = append(missing, "TestCaseID")
	}
	if strings.TrimSpace(tc.Title) == "" {
		missing = append(missing, "Title")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SkippedItem describes an input item that was rejected during decoding
type SkippedItem struct {
	Index  int             `json:"index"`
	Raw    json.RawMessage `json:"raw"`
	Reason string          `json:"reason"`
}

// DecodeResult holds the accepted cases and the items that were skipped
type DecodeResult struct {
	Cases   []TestCase    `json:"cases"`
	Skipped []SkippedItem `json:"skipped,omitempty"`
}

// DecodeTestCases reads a JSON array of test cases.
// Items that are not objects, or objects missing required fields, are skipped
// and reported instead of failing the whole upload.
func DecodeTestCases(r io.Reader) (*DecodeResult, error) {
	var items []json.RawMessage
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("input must be a JSON list of test cases: %w", err)
	}

	result := &DecodeResult{}
	for i, raw := range items {
		trimmed := strings.TrimSpace(string(raw))
		if !strings.HasPrefix(trimmed, "{") {
			result.Skipped = append(result.Skipped, SkippedItem{Index: i, Raw: raw, Reason: "not an object"})
			continue
		}

		var tc TestCase
		if err := json.Unmarshal(raw, &tc); err != nil {
			result.Skipped = append(result.Skipped, SkippedItem{Index: i, Raw: raw, Reason: err.Error()})
			continue
		}
		if err := tc.Validate(); err != nil {
			result.Skipped = append(result.Skipped, SkippedItem{Index: i, Raw: raw, Reason: err.Error()})
			continue
		}
		result.Cases = append(result.Cases, tc)
	}

	if len(result.Cases) == 0 {
		return result, ErrNoValidCases
	}
	return result, nil
}
