package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SimilaritySchema constrains the similarity answer to {"is_same": bool}
var SimilaritySchema = json.RawMessage(`{"type":"object","properties":{"is_same":{"type":"boolean"}},"required":["is_same"]}`)

// JSONFormat asks Ollama for any JSON object
var JSONFormat = json.RawMessage(`"json"`)

const similarityPrompt = `You are given two test cases, each with a certain set of fields:
- ScenarioID
- TestCaseID
- Title
- Description
- Objective

You will decide whether these two test cases are "contextually the same" based on the following criteria:

1. If both have the same Title (case-insensitive) OR their Titles are substantially similar in meaning,
2. AND they have either the same or very similar Description and/or Objective,
3. AND they serve essentially the same testing purpose for the same or very closely related scenarios,
4. THEN you should conclude that these two test cases are the same.

Otherwise, they are considered different.

Below are the two test cases in JSON format:

TestCase1:
%s

TestCase2:
%s

Return your response **only** in valid JSON with the following format:

{
  "is_same": <true or false>
}

Where:
- is_same = true if the test cases meet the criteria above
- is_same = false otherwise

Important:
- Do not provide any additional text outside the JSON object.
- Do not explain your reasoning, only provide the final JSON response.`

// SimilarityPrompt asks whether two test cases are contextually the same.
// Both cases are embedded as indented JSON.
func SimilarityPrompt(case1, case2 any) (string, error) {
	a, err := json.MarshalIndent(case1, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal first case: %w", err)
	}
	b, err := json.MarshalIndent(case2, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal second case: %w", err)
	}
	return fmt.Sprintf(similarityPrompt, a, b), nil
}

// ChainSuggestionPrompt asks a model to propose a prompt chain: levels of
// parallel left/right nodes, each naming a model and a prompt template.
func ChainSuggestionPrompt(task string, models, placeholders []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Provide a Chain of Thought and Prompt Chain structure suggestion for this %s process.\n", task)
	b.WriteString("The structure runs top to bottom in levels. Each level has a left and a right node, each node is one LLM. ")
	b.WriteString("The combined output of a level's nodes becomes the feedback input of the next level.\n")
	fmt.Fprintf(&b, "Models that can be used: %s.\n", strings.Join(models, ", "))

	quoted := make([]string, len(placeholders))
	for i, p := range placeholders {
		quoted[i] = "{" + p + "}"
	}
	fmt.Fprintf(&b, "Prompts may reference these placeholders: %s.\n", strings.Join(quoted, ", "))

	b.WriteString(`Give exactly one JSON object as output, in this format:
{
  "suggestions": [
    {
      "level": "<Level>",
      "left_node": {"llm_model": "<LLM Model Name>", "prompt": "<Prompt for Left Node>"},
      "right_node": {"llm_model": "<LLM Model Name>", "prompt": "<Prompt for Right Node>"}
    }
  ]
}`)
	return b.String()
}
