package contract

import "context"

// Router classifies a query plus bounded history into exactly one specialist.
// It must not mutate session state. Classifier failures surface as
// ErrRoutingUnavailable, an invalid or empty classification as
// ErrUnroutableQuery; the orchestrator owns the fallback policy.
type Router interface {
	Route(ctx context.Context, query string, history []Turn) (RoutingDecision, error)
}

// EmitFunc receives final-answer deltas as they become available from the
// backing model. Returning an error aborts the stream.
type EmitFunc func(delta string) error

// Specialist runs the bounded reason-act-observe loop for one persona.
// Internal tool rounds are never emitted; only the final synthesis streams
// through emit. A nil emit yields a non-streamed response.
type Specialist interface {
	ID() SpecialistID
	Respond(ctx context.Context, query string, history []Turn, emit EmitFunc) (AgentResponse, error)
}

// Registry resolves the router and the fixed specialist set.
type Registry interface {
	Router() Router
	Specialist(id SpecialistID) (Specialist, bool)
}

// ToolExecutor runs a named, schema-validated tool. All currently defined
// tools are read-only and idempotent against the data source.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCall) (ToolResult, error)
}

// SessionStore holds per-conversation turn history. Appends for the same
// session are serialized; distinct sessions proceed fully in parallel.
// List returns an empty slice for an unseen session id.
type SessionStore interface {
	List(ctx context.Context, sessionID string) ([]Turn, error)
	Append(ctx context.Context, sessionID string, turns ...Turn) error
}
