package builtin

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"example.com/engage/internal/activitytype"
)

var defaultPokerDeck = []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "?"}

// PlanningPoker is an estimation round. Estimates stay revisable until the
// round expires, mirroring how teams re-vote after discussion.
func PlanningPoker() activitytype.Definition {
	return activitytype.Definition{
		ID:          "planning_poker",
		Name:        "Planning Poker",
		Description: "Estimation round over a card deck with consensus detection",
		Version:     "1.0.0",
		ConfigSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"story": {Type: "string", MinLength: intp(1), MaxLength: intp(500)},
				"deck": {
					Type:     "array",
					Items:    &jsonschema.Schema{Type: "string", MinLength: intp(1), MaxLength: intp(10)},
					MinItems: intp(2),
					MaxItems: intp(20),
				},
				"reveal_on_expiry": {Type: "boolean"},
				"duration_seconds": {Type: "integer", Minimum: floatp(10), Maximum: floatp(86400)},
			},
			Required:             []string{"story"},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		},
		ResponseSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"estimate": {Type: "string", MinLength: intp(1), MaxLength: intp(10)},
			},
			Required:             []string{"estimate"},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		},
		Aggregate:    aggregatePlanningPoker,
		Capabilities: activitytype.Capabilities{AllowRevote: true},
	}
}

func aggregatePlanningPoker(config map[string]any, responses []activitytype.Response) (map[string]any, error) {
	deck := stringsFromAny(config["deck"])
	if len(deck) == 0 {
		deck = defaultPokerDeck
	}
	inDeck := make(map[string]struct{}, len(deck))
	for _, card := range deck {
		inDeck[card] = struct{}{}
	}

	votes := make(map[string]int)
	total := 0
	numericSum := 0.0
	numericCount := 0
	for _, response := range responses {
		estimate, ok := response.Payload["estimate"].(string)
		if !ok {
			continue
		}
		if _, ok := inDeck[estimate]; !ok {
			continue
		}
		votes[estimate]++
		total++
		if value, err := strconv.ParseFloat(estimate, 64); err == nil {
			numericSum += value
			numericCount++
		}
	}

	average := 0.0
	if numericCount > 0 {
		average = numericSum / float64(numericCount)
	}

	distinct := make([]string, 0, len(votes))
	for estimate := range votes {
		distinct = append(distinct, estimate)
	}
	sort.Strings(distinct)

	return map[string]any{
		"type":             "planning_poker_results",
		"story":            config["story"],
		"deck":             deck,
		"votes":            votes,
		"total_responses":  total,
		"distinct":         distinct,
		"average_estimate": average,
		"consensus":        total > 0 && len(votes) == 1,
		"last_updated":     time.Now().UTC().Format(time.RFC3339),
	}, nil
}
