package builtin

import (
	"sort"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"example.com/engage/internal/activitytype"
)

// WordCloud collects free-form words from participants. Every submission is a
// new record so a participant can contribute repeatedly; submissions are
// flagged for the moderation collaborator before display.
func WordCloud() activitytype.Definition {
	return activitytype.Definition{
		ID:          "word_cloud",
		Name:        "Word Cloud",
		Description: "Free-form word submissions rendered by frequency",
		Version:     "1.0.0",
		ConfigSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"prompt":                   {Type: "string", MinLength: intp(1), MaxLength: intp(300)},
				"max_words_per_submission": {Type: "integer", Minimum: floatp(1), Maximum: floatp(10)},
				"max_word_length":          {Type: "integer", Minimum: floatp(3), Maximum: floatp(50)},
				"case_sensitive":           {Type: "boolean"},
				"show_live_results":        {Type: "boolean"},
				"banned_words": {
					Type:  "array",
					Items: &jsonschema.Schema{Type: "string", MinLength: intp(1), MaxLength: intp(50)},
				},
				"duration_seconds": {Type: "integer", Minimum: floatp(10), Maximum: floatp(86400)},
			},
			Required:             []string{"prompt"},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		},
		ResponseSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"words": {
					Type:     "array",
					Items:    &jsonschema.Schema{Type: "string", MinLength: intp(1), MaxLength: intp(50)},
					MinItems: intp(1),
					MaxItems: intp(10),
				},
			},
			Required:             []string{"words"},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		},
		Aggregate: aggregateWordCloud,
		Capabilities: activitytype.Capabilities{
			AllowMultiple:      true,
			RequiresModeration: true,
		},
	}
}

func aggregateWordCloud(config map[string]any, responses []activitytype.Response) (map[string]any, error) {
	caseSensitive, _ := config["case_sensitive"].(bool)

	frequencies := make(map[string]int)
	totalWords := 0
	participants := make(map[string]struct{})
	for _, response := range responses {
		words := stringsFromAny(response.Payload["words"])
		for _, word := range words {
			word = strings.TrimSpace(word)
			if word == "" {
				continue
			}
			if !caseSensitive {
				word = strings.ToLower(word)
			}
			frequencies[word]++
			totalWords++
		}
		participants[response.ParticipantID] = struct{}{}
	}

	type wordEntry struct {
		Word      string  `json:"word"`
		Frequency int     `json:"frequency"`
		Percent   float64 `json:"percentage"`
	}
	entries := make([]wordEntry, 0, len(frequencies))
	for word, frequency := range frequencies {
		percent := 0.0
		if totalWords > 0 {
			percent = float64(frequency) / float64(totalWords) * 100
		}
		entries = append(entries, wordEntry{Word: word, Frequency: frequency, Percent: percent})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Frequency == entries[j].Frequency {
			return entries[i].Word < entries[j].Word
		}
		return entries[i].Frequency > entries[j].Frequency
	})
	if len(entries) > 50 {
		entries = entries[:50]
	}

	words := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		words = append(words, map[string]any{
			"word":       entry.Word,
			"frequency":  entry.Frequency,
			"percentage": entry.Percent,
		})
	}

	return map[string]any{
		"type":               "word_cloud_results",
		"prompt":             config["prompt"],
		"words":              words,
		"unique_words":       len(frequencies),
		"total_words":        totalWords,
		"total_participants": len(participants),
		"last_updated":       time.Now().UTC().Format(time.RFC3339),
	}, nil
}
