package activitytype

import (
	"fmt"
	"iter"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Registry is the closed-at-startup catalog of activity types. All Register
// calls happen during process startup, gated by ValidateAll before the service
// takes traffic; afterwards the registry is read-only.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	def      Definition
	config   *jsonschema.Resolved
	response *jsonschema.Resolved
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a definition to the catalog. Schemas are resolved eagerly so a
// malformed schema fails the registration, not the first request that hits it.
func (r *Registry) Register(def Definition) error {
	if def.ID == "" {
		return &InvalidDefinitionError{TypeID: def.ID, Reason: "missing identifier"}
	}
	if def.ConfigSchema == nil {
		return &InvalidDefinitionError{TypeID: def.ID, Reason: "missing config schema"}
	}
	if def.ResponseSchema == nil {
		return &InvalidDefinitionError{TypeID: def.ID, Reason: "missing response schema"}
	}
	if def.Aggregate == nil {
		return &InvalidDefinitionError{TypeID: def.ID, Reason: "missing aggregation function"}
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	if def.Version == "" {
		def.Version = "1.0.0"
	}

	config, err := def.ConfigSchema.Resolve(nil)
	if err != nil {
		return &InvalidDefinitionError{TypeID: def.ID, Reason: fmt.Sprintf("config schema: %v", err)}
	}
	response, err := def.ResponseSchema.Resolve(nil)
	if err != nil {
		return &InvalidDefinitionError{TypeID: def.ID, Reason: fmt.Sprintf("response schema: %v", err)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, def.ID)
	}
	r.entries[def.ID] = &entry{def: def, config: config, response: response}
	return nil
}

// Get returns the definition for an identifier.
func (r *Registry) Get(id string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownType, id)
	}
	return e.def, nil
}

// List yields display metadata for every registered type. The sequence is
// restartable; order is unspecified.
func (r *Registry) List() iter.Seq[Info] {
	return func(yield func(Info) bool) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, e := range r.entries {
			info := Info{
				ID:          e.def.ID,
				Name:        e.def.Name,
				Description: e.def.Description,
				Version:     e.def.Version,
			}
			if !yield(info) {
				return
			}
		}
	}
}

// Len reports the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ValidateAll is the startup self-check: every schema must have resolved and
// every aggregator must produce a zero-state result for an empty response set.
// A failure here must keep the process from serving traffic.
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, e := range r.entries {
		if e.config == nil || e.response == nil {
			return &InvalidDefinitionError{TypeID: id, Reason: "schema did not resolve"}
		}
		result, err := e.def.Aggregate(map[string]any{}, nil)
		if err != nil {
			return &InvalidDefinitionError{TypeID: id, Reason: fmt.Sprintf("aggregator rejects empty response set: %v", err)}
		}
		if result == nil {
			return &InvalidDefinitionError{TypeID: id, Reason: "aggregator returned nil result for empty response set"}
		}
	}
	return nil
}

// ValidateConfig checks an opaque configuration document against the type's
// config schema.
func (r *Registry) ValidateConfig(typeID string, config map[string]any) error {
	return r.validate(typeID, "config", config)
}

// ValidateResponse checks an opaque response payload against the type's
// response schema.
func (r *Registry) ValidateResponse(typeID string, payload map[string]any) error {
	return r.validate(typeID, "response", payload)
}

func (r *Registry) validate(typeID, field string, doc map[string]any) error {
	r.mu.RLock()
	e, ok := r.entries[typeID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, typeID)
	}
	resolved := e.config
	if field == "response" {
		resolved = e.response
	}
	if err := resolved.Validate(doc); err != nil {
		return &ValidationError{TypeID: typeID, Field: field, Detail: err.Error()}
	}
	return nil
}
