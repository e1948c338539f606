// Package builtin contains the activity types shipped with the service: poll,
// quiz, word cloud, planning poker and Q&A. They register at process startup;
// there is no runtime plugin loading.
package builtin

import (
	"example.com/engage/internal/activitytype"
)

// RegisterAll adds every built-in activity type to the registry.
func RegisterAll(reg *activitytype.Registry) error {
	for _, def := range []activitytype.Definition{
		Poll(),
		Quiz(),
		WordCloud(),
		PlanningPoker(),
		QnA(),
	} {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

// intFromAny accepts the numeric representations a payload can arrive with:
// float64 from JSON decoding, int and int64 from in-process callers.
func intFromAny(value any) (int, bool) {
	switch v := value.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

func stringsFromAny(values any) []string {
	items, ok := values.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
