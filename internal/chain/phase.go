package chain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownPhase is returned when a phase name is not registered
var ErrUnknownPhase = errors.New("unknown phase")

// ErrInvalidDocuments is returned when a phase's documents are missing or too large
var ErrInvalidDocuments = errors.New("invalid documents")

// Phase names
const (
	PhaseCodeReview          = "code-review"
	PhaseRequirementAnalysis = "requirement-analysis"
	PhaseTestPlanning        = "test-planning"
	PhaseTestExecution       = "test-execution"
	PhaseTestReporting       = "test-reporting"
)

// Document keys shared by the phases
const (
	DocSourceCode      = "source_code"
	DocTechDesign      = "tech_design"
	DocReqSpec         = "req_spec"
	DocUseCase         = "use_case"
	DocTraceMatrix     = "trace_matrix"
	DocTestCases       = "test_cases"
	DocTestCode        = "test_code"
	DocTestEnvironment = "test_environment"
	DocTestTools       = "test_tools"
	DocTestData        = "test_data"
	DocExecutionOutput = "execution_output"
	DocTestResults     = "test_results"
	DocPerformanceData = "performance_data"
	DocUserFeedback    = "user_feedback"
	DocTestPlans       = "test_plans"

	// Filled by the runner, never supplied by callers
	KeyFeedback     = "feedback"
	KeyInputContent = "input_content"
)

// Document describes one input of a phase
type Document struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// Phase is one stage of the test lifecycle run as a prompt chain
type Phase struct {
	Name  string
	Title string

	// Documents in the order they are presented to the models
	Documents []Document

	// MaxDocumentSize bounds each document, in characters
	MaxDocumentSize int

	// Combined phases pass every document through {input_content}
	// as "Label: value" lines instead of one placeholder per key.
	Combined bool

	// Templates maps a model name to its default prompt template
	Templates map[string]string

	// OutputPrefix names saved outputs, e.g. code_review_outputs_level_1.json
	OutputPrefix string
}

// Models lists the models that have a default template, sorted
func (p *Phase) Models() []string {
	models := make([]string, 0, len(p.Templates))
	for m := range p.Templates {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Template returns the default template for model
func (p *Phase) Template(model string) (string, bool) {
	t, ok := p.Templates[model]
	return t, ok
}

// Placeholders lists the keys a template of this phase may reference
func (p *Phase) Placeholders() []string {
	if p.Combined {
		return []string{KeyInputContent, KeyFeedback}
	}
	keys := make([]string, 0, len(p.Documents)+1)
	for _, d := range p.Documents {
		keys = append(keys, d.Key)
	}
	return append(keys, KeyFeedback)
}

// Validate checks that required documents are present and within size
func (p *Phase) Validate(docs map[string]string) error {
	var missing []string
	for _, d := range p.Documents {
		v := docs[d.Key]
		if d.Required && strings.TrimSpace(v) == "" {
			missing = append(missing, d.Key)
			continue
		}
		if p.MaxDocumentSize > 0 && len([]rune(v)) > p.MaxDocumentSize {
			return fmt.Errorf("%w: document %s exceeds %d characters", ErrInvalidDocuments, d.Key, p.MaxDocumentSize)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required documents: %s", ErrInvalidDocuments, strings.Join(missing, ", "))
	}
	return nil
}

// Variables builds the placeholder values for a node of this phase
func (p *Phase) Variables(docs map[string]string, feedback string) map[string]string {
	vars := map[string]string{KeyFeedback: feedback}

	if p.Combined {
		lines := make([]string, 0, len(p.Documents))
		for _, d := range p.Documents {
			v, ok := docs[d.Key]
			if !ok && !d.Required {
				continue
			}
			lines = append(lines, d.Label+": "+v)
		}
		vars[KeyInputContent] = strings.Join(lines, "\n")
		return vars
	}

	for _, d := range p.Documents {
		vars[d.Key] = docs[d.Key]
	}
	return vars
}

var phases = map[string]*Phase{
	PhaseCodeReview: {
		Name:  PhaseCodeReview,
		Title: "Code Review",
		Documents: []Document{
			{Key: DocSourceCode, Label: "Source Code", Required: true},
			{Key: DocTechDesign, Label: "Technical Design", Required: true},
			{Key: DocReqSpec, Label: "Requirements Specification", Required: true},
		},
		MaxDocumentSize: 15000,
		OutputPrefix:    "code_review",
		Templates: map[string]string{
			"deepseek-coder": "Based on the following feedback, source code, technical design document, and requirements specification, identify potential security vulnerabilities, performance issues, and adherence to best coding practices. The source code is: {source_code}. Technical Design: {tech_design}. Requirements Specification: {req_spec}. Feedback: {feedback}",
			"codegemma":      "Following the previous review, analyze the code snippet for quality, performance, and adherence to best practices, considering the technical design and requirements specification. The source code is: {source_code}. Technical Design: {tech_design}. Requirements Specification: {req_spec}. Prior Feedback: {feedback}. Focus on readability, maintainability, and efficiency.",
			"codellama":      "Building on prior feedback, review the code for improvements in performance, security, and maintainability, taking into account the technical design and requirements specification. The source code is: {source_code}. Technical Design: {tech_design}. Requirements Specification: {req_spec}. Previous Feedback: {feedback}. Provide detailed recommendations.",
			"llama3.1":       "Evaluate the overall quality and potential issues in the code based on all prior reviews, along with the technical design and requirements specification. The source code is: {source_code}. Technical Design: {tech_design}. Requirements Specification: {req_spec}. Cumulative Feedback: {feedback}. Summarize strengths, weaknesses, and suggest improvements.",
			"mathstral":      "Review the code for mathematical or logical errors, ensuring formulas and numerical methods are correct and efficient, considering the technical design and requirements specification. The source code is: {source_code}. Technical Design: {tech_design}. Requirements Specification: {req_spec}. Previous Feedback: {feedback}. Suggest enhancements for accuracy and performance.",
		},
	},
	PhaseRequirementAnalysis: {
		Name:  PhaseRequirementAnalysis,
		Title: "Requirement Analysis",
		Documents: []Document{
			{Key: DocSourceCode, Label: "Source Code", Required: true},
			{Key: DocTechDesign, Label: "Technical Design", Required: true},
			{Key: DocReqSpec, Label: "Requirements Specification", Required: true},
			{Key: DocUseCase, Label: "Use Case", Required: true},
			{Key: DocTraceMatrix, Label: "Traceability Matrix", Required: true},
		},
		MaxDocumentSize: 12000,
		OutputPrefix:    "requirement_analysis",
		Templates: map[string]string{
			"deepseek-coder": "Based on the following feedback analyse the requirements, source code, technical design document, requirements specification, use case, and traceability matrix, identify potential security vulnerabilities, performance issues, and adherence to best coding practices. The source code is: {source_code}. Technical Design: {tech_design}. Requirements Specification: {req_spec}. Use Case: {use_case}. Traceability Matrix: {trace_matrix}. Feedback: {feedback}",
			"codegemma":      "Analyse the requirements for quality, performance, and adherence to best practices, considering the technical design, requirements specification, use case, and traceability matrix. The source code is: {source_code}. Technical Design: {tech_design}. Requirements Specification: {req_spec}. Use Case: {use_case}. Traceability Matrix: {trace_matrix}. Prior Feedback: {feedback}. Focus on readability, maintainability, and efficiency.",
			"codellama":      "Analyse the requirements for improvements in performance, security, and maintainability, taking into account the technical design, requirements specification, use case, and traceability matrix. The source code is: {source_code}. Technical Design: {tech_design}. Requirements Specification: {req_spec}. Use Case: {use_case}. Traceability Matrix: {trace_matrix}. Previous Feedback: {feedback}. Provide detailed recommendations.",
			"llama3.1":       "Analyse the requirements in the code based on all prior reviews, along with the technical design, requirements specification, use case, and traceability matrix. The source code is: {source_code}. Technical Design: {tech_design}. Requirements Specification: {req_spec}. Use Case: {use_case}. Traceability Matrix: {trace_matrix}. Cumulative Feedback: {feedback}. Summarize strengths, weaknesses, and suggest improvements.",
			"mathstral":      "Analyse the requirements for mathematical or logical errors, ensuring numerical methods are correct and efficient, considering the technical design, requirements specification, use case, and traceability matrix. The source code is: {source_code}. Technical Design: {tech_design}. Requirements Specification: {req_spec}. Use Case: {use_case}. Traceability Matrix: {trace_matrix}. Previous Feedback: {feedback}. Suggest enhancements for accuracy and performance.",
		},
	},
	PhaseTestPlanning: {
		Name:  PhaseTestPlanning,
		Title: "Test Planning",
		Documents: []Document{
			{Key: DocSourceCode, Label: "Source Code", Required: true},
			{Key: DocTechDesign, Label: "Technical Design", Required: true},
			{Key: DocReqSpec, Label: "Requirements Specification", Required: true},
			{Key: DocUseCase, Label: "Use Case", Required: true},
			{Key: DocTraceMatrix, Label: "Traceability Matrix", Required: true},
			{Key: DocTestCases, Label: "Test Cases", Required: true},
		},
		MaxDocumentSize: 10000,
		OutputPrefix:    "test_planning",
		Templates:       planningTemplates(),
	},
	PhaseTestExecution: {
		Name:  PhaseTestExecution,
		Title: "Test Execution",
		Documents: []Document{
			{Key: DocTestCode, Label: "Python Test Code", Required: true},
			{Key: DocTestEnvironment, Label: "Test Environment"},
			{Key: DocTestTools, Label: "Test Tools"},
			{Key: DocTestData, Label: "Test Data"},
			{Key: DocExecutionOutput, Label: "Execution Output"},
		},
		MaxDocumentSize: 15000,
		Combined:        true,
		OutputPrefix:    "test_execution",
		Templates: map[string]string{
			"deepseek-coder": "Based on the following inputs, execute the provided test scenarios and code. Inputs are: {input_content}. Record, analyze, and report the test results, including any errors or failures observed.",
			"codegemma":      "Analyze the given inputs to execute the provided test scenarios and code. The inputs are: {input_content}. Focus on recording, analyzing, and reporting the test results, highlighting any errors or failures.",
			"codellama":      "Review the inputs to execute the provided test scenarios and code. The inputs are: {input_content}. Provide detailed reports on the test results, including any errors or failures observed.",
			"llama3.1":       "Evaluate the inputs to execute the provided test scenarios and code. The inputs are: {input_content}. Summarize the test results, analyze any errors or failures, and suggest improvements.",
			"mathstral":      "Review the inputs to execute the provided test scenarios and code. The inputs are: {input_content}. Include detailed reports on the test results, highlight any errors or failures, and suggest improvements.",
		},
	},
	PhaseTestReporting: {
		Name:  PhaseTestReporting,
		Title: "Test Reporting",
		Documents: []Document{
			{Key: DocTestResults, Label: "Test Results", Required: true},
			{Key: DocPerformanceData, Label: "Performance Data"},
			{Key: DocUserFeedback, Label: "User Feedback"},
			{Key: DocTestPlans, Label: "Test Plans"},
		},
		Combined:     true,
		OutputPrefix: "test_reporting",
		Templates: map[string]string{
			"deepseek-coder": "Based on the following inputs, provide a detailed test report. Inputs are: {input_content}. Include analysis of test results, error reports, performance and load test data, user feedback and priorities, and test plans and scenarios.",
			"codegemma":      "Analyze the given inputs to prepare a comprehensive test report. The inputs are: {input_content}. Consider test results, error reports, performance and load test data, user feedback and priorities, and test plans and scenarios. Focus on accuracy and completeness.",
			"codellama":      "Review the inputs to create a detailed test report. The inputs are: {input_content}. Incorporate analysis of test results, error reports, performance and load test data, user feedback and priorities, and test plans and scenarios. Provide detailed recommendations.",
			"llama3.1":       "Evaluate the inputs to generate a comprehensive test report. The inputs are: {input_content}. Summarize strengths, weaknesses, and suggest improvements based on test results, error reports, performance and load test data, user feedback and priorities, and test plans and scenarios.",
			"mathstral":      "Review the inputs to provide an efficient and detailed test report. The inputs are: {input_content}. Include analysis of test results, error reports, performance and load test data, user feedback and priorities, and test plans and scenarios. Suggest enhancements for accuracy and completeness.",
		},
	},
}

// Every planning model gets the same mission statement.
func planningTemplates() map[string]string {
	const tmpl = "The main and only mission is 'Creating Test Plan using information taking from other documents like python code, requirements, etc.' Create a test plan as a table (including rows and columns) using the given file as a reference, while taking into account the technical design, requirements specification, use case, traceability matrix, and test cases. Detect and refine any gaps or areas that require adjustments. The source code is: {source_code}. Technical Design: {tech_design}. Requirements Specification: {req_spec}. Use Case: {use_case}. Traceability Matrix: {trace_matrix}. Test Cases: {test_cases}. Prior Feedback: {feedback}"
	templates := make(map[string]string)
	for _, m := range []string{"deepseek-coder", "codegemma", "codellama", "llama3.1", "mathstral"} {
		templates[m] = tmpl
	}
	return templates
}

// LookupPhase returns the registered phase with the given name
func LookupPhase(name string) (*Phase, error) {
	p, ok := phases[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPhase, name)
	}
	return p, nil
}

// PhaseNames lists the registered phases, sorted
func PhaseNames() []string {
	names := make([]string, 0, len(phases))
	for name := range phases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
