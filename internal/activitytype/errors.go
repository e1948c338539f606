package activitytype

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateType is returned when a type identifier is registered twice.
	ErrDuplicateType = errors.New("activity type already registered")
	// ErrUnknownType is returned when a type identifier is not in the registry.
	ErrUnknownType = errors.New("unknown activity type")
)

// InvalidDefinitionError reports a structurally broken activity type definition.
// Registration errors are fatal at startup; they are never recoverable at runtime.
type InvalidDefinitionError struct {
	TypeID string
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	return fmt.Sprintf("invalid activity type definition %q: %s", e.TypeID, e.Reason)
}

// ValidationError reports an opaque document that does not conform to a
// declared schema. Detail carries the schema violation for the caller UI.
type ValidationError struct {
	TypeID string
	Field  string // "config" or "response"
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s payload for activity type %q rejected: %s", e.Field, e.TypeID, e.Detail)
}
