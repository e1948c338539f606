package builtin

import (
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"example.com/engage/internal/activitytype"
)

// Poll is a multiple-choice poll. Participants may change their vote while the
// poll is active.
func Poll() activitytype.Definition {
	return activitytype.Definition{
		ID:          "poll",
		Name:        "Poll",
		Description: "Multiple choice poll with live vote counts",
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
				"allow_multiple_choice": {Type: "boolean"},
				"show_live_results":     {Type: "boolean"},
				"anonymous_voting":      {Type: "boolean"},
				"duration_seconds":      {Type: "integer", Minimum: floatp(10), Maximum: floatp(86400)},
			},
			Required:             []string{"question", "options"},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		},
		ResponseSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"selected_options": {
					Type:     "array",
					Items:    &jsonschema.Schema{Type: "string", MinLength: intp(1)},
					MinItems: intp(1),
					MaxItems: intp(10),
				},
			},
			Required:             []string{"selected_options"},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		},
		Aggregate:    aggregatePoll,
		Capabilities: activitytype.Capabilities{AllowRevote: true},
	}
}

func aggregatePoll(config map[string]any, responses []activitytype.Response) (map[string]any, error) {
	options := stringsFromAny(config["options"])
	counts := make(map[string]int, len(options))
	for _, option := range options {
		counts[option] = 0
	}

	total := 0
	for _, response := range responses {
		selected := stringsFromAny(response.Payload["selected_options"])
		for _, option := range selected {
			// Options removed from the config after votes landed are dropped
			// rather than resurrected in the result.
			if _, ok := counts[option]; ok {
				counts[option]++
			}
		}
		total++
	}

	percentages := make(map[string]float64, len(counts))
	maxVotes := 0
	for option, count := range counts {
		if total > 0 {
			percentages[option] = float64(count) / float64(total) * 100
		} else {
			percentages[option] = 0
		}
		if count > maxVotes {
			maxVotes = count
		}
	}

	mostPopular := make([]string, 0, 1)
	for _, option := range options {
		if counts[option] == maxVotes && maxVotes > 0 {
			mostPopular = append(mostPopular, option)
		}
	}

	return map[string]any{
		"type":            "poll_results",
		"question":        config["question"],
		"options":         options,
		"vote_counts":     counts,
		"percentages":     percentages,
		"total_responses": total,
		"most_popular":    mostPopular,
		"last_updated":    time.Now().UTC().Format(time.RFC3339),
	}, nil
}
