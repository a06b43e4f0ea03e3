// Package scenario generates test scenarios from a project document and then
// test cases for each scenario. Its output is the session model output that
// smart selection later reads back.
package scenario

import (
	"fmt"
	"slices"
	"strings"
)

// Test categories
const (
	CategoryFunctional    = "Functional"
	CategoryNonFunctional = "Non-Functional"
)

// TestType is a kind of testing a scenario set is generated for
type TestType struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Approach string `json:"approach"`
	Prompt   string `json:"prompt"`
}

var testTypes = []TestType{
	{
		Name:     "Performance and Load Testing",
		Category: CategoryNonFunctional,
		Approach: "Simulate user activity patterns",
		Prompt:   "Identify scenarios that stress the system under realistic and peak user activity, including sustained load, spikes and resource exhaustion.",
	},
	{
		Name:     "Integration Testing",
		Category: CategoryFunctional,
		Approach: "Define interactions between connected modules",
		Prompt:   "Identify scenarios covering the interactions between connected modules, services and external systems, including data handed across each boundary.",
	},
	{
		Name:     "Input Data Variety Testing",
		Category: CategoryFunctional,
		Approach: "Explore inputs with diverse attributes and formats",
		Prompt:   "Identify scenarios that feed the system inputs of diverse types, encodings, sizes and formats, valid and invalid.",
	},
	{
		Name:     "Functional Testing",
		Category: CategoryFunctional,
		Approach: "Cover required functionalities comprehensively",
		Prompt:   "Identify scenarios that together cover every required functionality described in the document.",
	},
	{
		Name:     "Edge Cases and Boundary Testing",
		Category: CategoryFunctional,
		Approach: "Test limits and unexpected scenarios",
		Prompt:   "Identify scenarios at and just beyond the limits of every input, state and resource, plus unexpected sequences of actions.",
	},
	{
		Name:     "Compatibility Testing",
		Category: CategoryNonFunctional,
		Approach: "Ensure adaptability across environments",
		Prompt:   "Identify scenarios that run the system across the platforms, browsers, devices, versions and configurations it must support.",
	},
	{
		Name:     "User Interface (GUI) Testing",
		Category: CategoryFunctional,
		Approach: "Focus on usability and responsiveness",
		Prompt:   "Identify scenarios that exercise the user interface for usability, layout, feedback and responsiveness.",
	},
	{
		Name:     "Security Testing",
		Category: CategoryNonFunctional,
		Approach: "Identify and address potential vulnerabilities intelligently",
		Prompt:   "Identify scenarios that examine authentication, authorization, input handling and data protection for vulnerabilities.",
	},
}

// DocumentTypes are the kinds of document scenarios can be generated from
var DocumentTypes = []string{
	"Source Code",
	"Test Scenario",
	"Test Plan",
	"Technical Design Document",
	"Requirements Document",
	"Use Case Document",
	"Traceability Matrix",
	"Other",
}

// Element is a named prompt fragment added to a generation prompt
type Element struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// InstructionElements shape how scenarios are written
var InstructionElements = []Element{
	{Name: "Clarity", Prompt: "Write each scenario so a tester unfamiliar with the system can follow it."},
	{Name: "Coverage", Prompt: "Cover the main flows, alternative flows and error handling described in the document."},
	{Name: "Traceability", Prompt: "Reference the part of the document each scenario comes from."},
	{Name: "Prioritization", Prompt: "Give each scenario a priority of High, Medium or Low based on business risk."},
}

// ScoringElements ask the model to rate each scenario
var ScoringElements = []Element{
	{Name: "Relevance", Prompt: "Score from 1 to 10 how relevant the scenario is to the selected test type."},
	{Name: "Risk", Prompt: "Score from 1 to 10 the impact on users if the scenario were to fail."},
	{Name: "Complexity", Prompt: "Score from 1 to 10 how much effort the scenario takes to execute."},
}

// CaseTypes are the kinds of test case requested for each scenario
var CaseTypes = []Element{
	{Name: "Positive", Prompt: "Write test cases where valid inputs and actions produce the expected outcome."},
	{Name: "Negative", Prompt: "Write test cases where invalid inputs or actions are rejected with a clear error."},
	{Name: "Boundary", Prompt: "Write test cases at the minimum, maximum and just outside the allowed values."},
}

// TestTypes returns every known test type
func TestTypes() []TestType {
	return slices.Clone(testTypes)
}

// LookupTestType finds a test type by name, ignoring case
func LookupTestType(name string) (TestType, error) {
	for _, tt := range testTypes {
		if strings.EqualFold(tt.Name, name) {
			return tt, nil
		}
	}
	return TestType{}, fmt.Errorf("unknown test type %q", name)
}

// Categories returns the distinct categories in catalog order
func Categories() []string {
	var out []string
	for _, tt := range testTypes {
		if !slices.Contains(out, tt.Category) {
			out = append(out, tt.Category)
		}
	}
	return out
}

// pick returns the elements named in names, or all of them when names is empty
func pick(kind string, all []Element, names []string) ([]Element, error) {
	if len(names) == 0 {
		return slices.Clone(all), nil
	}
	out := make([]Element, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(all, func(e Element) bool { return strings.EqualFold(e.Name, name) })
		if i < 0 {
			return nil, fmt.Errorf("unknown %s element %q", kind, name)
		}
		out = append(out, all[i])
	}
	return out, nil
}
