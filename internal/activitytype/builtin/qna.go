package builtin

import (
	"sort"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"example.com/engage/internal/activitytype"
)

// QnA collects audience questions and upvotes on them. A participant may
// submit several questions and several votes, so each response is its own
// record.
func QnA() activitytype.Definition {
	return activitytype.Definition{
		ID:          "qna",
		Name:        "Q&A",
		Description: "Audience questions with upvoting",
		Version:     "1.0.0",
		ConfigSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"topic":                     {Type: "string", MinLength: intp(1), MaxLength: intp(200)},
				"allow_anonymous_questions": {Type: "boolean"},
				"allow_upvoting":            {Type: "boolean"},
				"max_question_length":       {Type: "integer", Minimum: floatp(10), Maximum: floatp(1000)},
				"duration_seconds":          {Type: "integer", Minimum: floatp(10), Maximum: floatp(86400)},
			},
			Required:             []string{"topic"},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		},
		ResponseSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"kind":        {Type: "string", Enum: []any{"question", "vote"}},
				"question":    {Type: "string", MinLength: intp(1), MaxLength: intp(1000)},
				"question_id": {Type: "string", MinLength: intp(1)},
			},
			Required:             []string{"kind"},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		},
		Aggregate: aggregateQnA,
		Capabilities: activitytype.Capabilities{
			AllowMultiple:      true,
			RequiresModeration: true,
		},
	}
}

func aggregateQnA(config map[string]any, responses []activitytype.Response) (map[string]any, error) {
	type question struct {
		id          string
		text        string
		participant string
		submittedAt time.Time
		votes       int
	}

	questions := make(map[string]*question)
	votes := make(map[string]int)
	for _, response := range responses {
		kind, _ := response.Payload["kind"].(string)
		switch kind {
		case "question":
			text, _ := response.Payload["question"].(string)
			if text == "" {
				continue
			}
			// Question submissions double as their own identifier: the stored
			// response id is not visible here, so the payload carries one.
			id, _ := response.Payload["question_id"].(string)
			if id == "" {
				id = text
			}
			questions[id] = &question{
				id:          id,
				text:        text,
				participant: response.ParticipantID,
				submittedAt: response.SubmittedAt,
			}
		case "vote":
			id, _ := response.Payload["question_id"].(string)
			if id != "" {
				votes[id]++
			}
		}
	}

	ordered := make([]*question, 0, len(questions))
	for _, q := range questions {
		q.votes = votes[q.id]
		ordered = append(ordered, q)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].votes == ordered[j].votes {
			return ordered[i].submittedAt.Before(ordered[j].submittedAt)
		}
		return ordered[i].votes > ordered[j].votes
	})

	out := make([]map[string]any, 0, len(ordered))
	for _, q := range ordered {
		out = append(out, map[string]any{
			"question_id":  q.id,
			"question":     q.text,
			"votes":        q.votes,
			"submitted_at": q.submittedAt.UTC().Format(time.RFC3339),
		})
	}

	return map[string]any{
		"type":            "qna_results",
		"topic":           config["topic"],
		"questions":       out,
		"total_questions": len(out),
		"last_updated":    time.Now().UTC().Format(time.RFC3339),
	}, nil
}
