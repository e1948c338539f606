package domain

import "time"

// transitions is the single source of truth for lifecycle legality. Admin
// handlers and the expiry sweep both resolve "may I?" here, so the two code
// paths cannot diverge.
var transitions = map[State][]State{
	StateDraft:     {StatePublished},
	StatePublished: {StateDraft, StateActive},
	StateActive:    {StateExpired},
	StateExpired:   {}, // terminal
}

// CanTransition reports whether current -> target is a legal lifecycle
// transition. Self-transitions are illegal. Pure; no side effects.
func CanTransition(current, target State) bool {
	for _, allowed := range transitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidTransitions lists the legal target states from current.
func ValidTransitions(current State) []State {
	out := make([]State, len(transitions[current]))
	copy(out, transitions[current])
	return out
}

// Transition applies a legal transition to the in-memory activity, stamping
// the update time and computing the expiry timestamp when entering the active
// state with a configured duration. It does not touch storage.
func Transition(activity *Activity, target State, now time.Time) error {
	if !CanTransition(activity.State, target) {
		return &IllegalTransitionError{From: activity.State, To: target}
	}

	activity.State = target
	activity.UpdatedAt = now

	switch target {
	case StateActive:
		if seconds, ok := durationSeconds(activity.Config); ok {
			expires := now.Add(time.Duration(seconds) * time.Second)
			activity.ExpiresAt = &expires
		}
	case StateExpired:
		if activity.ExpiresAt == nil {
			expired := now
			activity.ExpiresAt = &expired
		}
	}
	return nil
}

func durationSeconds(config map[string]any) (int64, bool) {
	switch v := config["duration_seconds"].(type) {
	case float64:
		if v > 0 {
			return int64(v), true
		}
	case int:
		if v > 0 {
			return int64(v), true
		}
	case int64:
		if v > 0 {
			return v, true
		}
	}
	return 0, false
}
