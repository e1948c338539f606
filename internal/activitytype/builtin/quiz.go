package builtin

import (
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"example.com/engage/internal/activitytype"
)

// Quiz is a single-answer quiz question with one correct option. First answer
// counts; participants cannot revise after submitting.
func Quiz() activitytype.Definition {
	return activitytype.Definition{
		ID:          "quiz",
		Name:        "Quiz",
		Description: "Quiz question with a correct answer and accuracy stats",
		Version:     "1.0.0",
		ConfigSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"question": {Type: "string", MinLength: intp(1), MaxLength: intp(500)},
				"options": {
					Type:     "array",
					Items:    &jsonschema.Schema{Type: "string", MinLength: intp(1), MaxLength: intp(200)},
					MinItems: intp(2),
					MaxItems: intp(10),
				},
				"correct_option_index": {Type: "integer", Minimum: floatp(0), Maximum: floatp(9)},
				"show_correct_answer":  {Type: "boolean"},
				"duration_seconds":     {Type: "integer", Minimum: floatp(10), Maximum: floatp(86400)},
			},
			Required:             []string{"question", "options", "correct_option_index"},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		},
		ResponseSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"selected_option_index": {Type: "integer", Minimum: floatp(0), Maximum: floatp(9)},
			},
			Required:             []string{"selected_option_index"},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		},
		Aggregate:    aggregateQuiz,
		Capabilities: activitytype.Capabilities{},
	}
}

func aggregateQuiz(config map[string]any, responses []activitytype.Response) (map[string]any, error) {
	options := stringsFromAny(config["options"])
	correctIndex := -1
	if parsed, ok := intFromAny(config["correct_option_index"]); ok {
		correctIndex = parsed
	}

	counts := make([]int, len(options))
	total := 0
	correct := 0
	for _, response := range responses {
		index, ok := intFromAny(response.Payload["selected_option_index"])
		if !ok {
			continue
		}
		if index < 0 || index >= len(options) {
			continue
		}
		counts[index]++
		total++
		if index == correctIndex {
			correct++
		}
	}

	accuracy := 0.0
	if total > 0 {
		accuracy = float64(correct) / float64(total) * 100
	}

	return map[string]any{
		"type":                 "quiz_results",
		"question":             config["question"],
		"options":              options,
		"vote_counts":          counts,
		"total_responses":      total,
		"correct_responses":    correct,
		"accuracy_percent":     accuracy,
		"correct_option_index": correctIndex,
		"last_updated":         time.Now().UTC().Format(time.RFC3339),
	}, nil
}
