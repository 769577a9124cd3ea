package contract

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// SpecialistID identifies one of the fixed specialist agents.
type SpecialistID string

const (
	SpecialistSales     SpecialistID = "sales"
	SpecialistInventory SpecialistID = "inventory"
	SpecialistFinance   SpecialistID = "finance"
)

// AllSpecialists is the closed routing target set. Router output is validated
// against it; anything else is unroutable.
var AllSpecialists = []SpecialistID{SpecialistSales, SpecialistInventory, SpecialistFinance}

func ParseSpecialistID(raw string) (SpecialistID, bool) {
	id := SpecialistID(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllSpecialists {
		if id == known {
			return known, true
		}
	}
	return "", false
}

// Turn is one conversation entry. Immutable once appended to a session.
type Turn struct {
	ID         string       `json:"id"`
	Role       Role         `json:"role"`
	Content    string       `json:"content"`
	Specialist SpecialistID `json:"specialist,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// RoutingDecision is produced fresh per query and never persisted.
type RoutingDecision struct {
	Specialist SpecialistID `json:"specialist"`
	Rationale  string       `json:"rationale,omitempty"`
}

type ToolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is fed back into the specialist's reasoning context, never shown
// raw to the user. NoData marks a successful query that matched zero rows,
// which is distinct from both a failure and a computed zero.
type ToolResult struct {
	Tool    string `json:"tool"`
	Payload any    `json:"payload,omitempty"`
	NoData  bool   `json:"no_data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolStep records one acting round of the reason-act loop.
type ToolStep struct {
	Call   ToolCall   `json:"call"`
	Result ToolResult `json:"result"`
}

// AgentResponse is the specialist's terminal output. Degraded marks answers
// synthesized after the tool-round bound was exhausted; callers must present
// those with less confidence than a fully reasoned answer.
type AgentResponse struct {
	Text       string       `json:"text"`
	Specialist SpecialistID `json:"specialist"`
	ToolTrace  []ToolStep   `json:"tool_trace,omitempty"`
	Degraded   bool         `json:"degraded,omitempty"`
}

type FragmentKind string

const (
	FragmentText  FragmentKind = "text"
	FragmentDone  FragmentKind = "done"
	FragmentError FragmentKind = "error"
)

// Fragment is one unit of the caller-facing stream. A stream is zero or more
// text fragments terminated by exactly one done or error fragment.
type Fragment struct {
	Kind       FragmentKind `json:"kind"`
	Text       string       `json:"text,omitempty"`
	Specialist SpecialistID `json:"specialist,omitempty"`
	Degraded   bool         `json:"degraded,omitempty"`
	ErrKind    string       `json:"err_kind,omitempty"`
}

// WindowTurns returns the most recent maxTurns turns, each clipped to
// maxChars runes, preserving chronological order. Both tiers prompt with a
// bounded window; the session store itself never trims.
func WindowTurns(history []Turn, maxTurns, maxChars int) []Turn {
	if maxTurns <= 0 || len(history) == 0 {
		return nil
	}
	start := 0
	if len(history) > maxTurns {
		start = len(history) - maxTurns
	}
	out := make([]Turn, 0, len(history)-start)
	for _, t := range history[start:] {
		if maxChars > 0 {
			if runes := []rune(t.Content); len(runes) > maxChars {
				t.Content = string(runes[:maxChars])
			}
		}
		out = append(out, t)
	}
	return out
}
