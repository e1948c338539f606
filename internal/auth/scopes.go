package auth

// Known OAuth scopes used by the persona clients.
const (
	// ScopeActivitiesWrite covers admin mutations: create, configure, transition.
	ScopeActivitiesWrite = "activities:write"
	// ScopeActivitiesRead covers viewer reads: results, sync state.
	ScopeActivitiesRead = "activities:read"
	// ScopeResponsesWrite covers participant submissions.
	ScopeResponsesWrite = "responses:write"
)
