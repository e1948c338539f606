// Package activitytype holds the process-wide catalog of activity types: what
// configuration each type accepts, what a participant response looks like, and
// how responses aggregate into a result document.
package activitytype

import (
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Capabilities declares per-type framework behavior toggles.
type Capabilities struct {
	// AllowRevote lets a participant replace an earlier response.
	AllowRevote bool
	// AllowMultiple lets a participant submit any number of responses; each
	// submission persists as its own record. Takes precedence over AllowRevote.
	AllowMultiple bool
	// RequiresModeration marks responses for the moderation collaborator
	// before they appear in viewer-facing results.
	RequiresModeration bool
}

// Response is the subset of a stored response visible to aggregators.
type Response struct {
	ParticipantID string
	Payload       map[string]any
	SubmittedAt   time.Time
}

// AggregateFunc folds all responses for one activity into a result document.
// Implementations must handle an empty slice and return a usable zero state.
type AggregateFunc func(config map[string]any, responses []Response) (map[string]any, error)

// TransitionGuard lets a type veto a framework-legal state transition.
// A nil guard accepts every framework-legal transition.
type TransitionGuard func(current, target string) bool

// Definition bundles everything the framework needs to host one activity type.
// Definitions are immutable once registered.
type Definition struct {
	ID             string
	Name           string
	Description    string
	Version        string
	ConfigSchema   *jsonschema.Schema
	ResponseSchema *jsonschema.Schema
	Aggregate      AggregateFunc
	Guard          TransitionGuard
	Capabilities   Capabilities
}

// Info is the display metadata exposed to the admin "create activity" picker.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}
