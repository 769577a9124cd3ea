package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/saralytics/saralytics/agent/contract"
)

const (
	defaultHistoryWindow = 8
	defaultMaxTurnChars  = 400
)

// CatalogEntry describes one routing target for the classification prompt.
type CatalogEntry struct {
	ID          contract.SpecialistID `json:"id"`
	Description string                `json:"description"`
}

type Option func(*Router)

func WithHistoryWindow(turns, maxChars int) Option {
	return func(r *Router) {
		if turns > 0 {
			r.historyWindow = turns
		}
		if maxChars > 0 {
			r.maxTurnChars = maxChars
		}
	}
}

// Router is the manager agent. It classifies a query plus a bounded history
// window into exactly one specialist and never mutates session state.
type Router struct {
	runner        compose.Runnable[map[string]any, classifierLLMOutput]
	systemPrompt  string
	catalog       []CatalogEntry
	historyWindow int
	maxTurnChars  int
}

var _ contract.Router = (*Router)(nil)

func New(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	catalog []CatalogEntry,
	opts ...Option,
) (*Router, error) {
	if len(catalog) == 0 {
		return nil, fmt.Errorf("%w: specialist catalog is empty", contract.ErrValidation)
	}

	runner, err := compileClassifierGraph(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrRoutingUnavailable, err)
	}

	r := &Router{
		runner:        runner,
		systemPrompt:  systemPrompt,
		catalog:       catalog,
		historyWindow: defaultHistoryWindow,
		maxTurnChars:  defaultMaxTurnChars,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func (r *Router) Route(ctx context.Context, query string, history []contract.Turn) (contract.RoutingDecision, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return contract.RoutingDecision{}, fmt.Errorf("%w: query is empty", contract.ErrValidation)
	}

	payload := map[string]any{
		"query":       query,
		"history":     historyPayload(contract.WindowTurns(history, r.historyWindow, r.maxTurnChars)),
		"specialists": r.catalog,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contract.RoutingDecision{}, fmt.Errorf("%w: marshal classifier payload: %v", contract.ErrValidation, err)
	}

	out, err := r.runner.Invoke(ctx, map[string]any{
		"system": []*schema.Message{schema.SystemMessage(r.systemPrompt)},
		"input":  string(input),
	})
	if err != nil {
		return contract.RoutingDecision{}, fmt.Errorf("%w: classifier invoke: %v", contract.ErrRoutingUnavailable, err)
	}

	id, ok := contract.ParseSpecialistID(out.Specialist)
	if !ok || !r.inCatalog(id) {
		log.Warn().
			Str("raw_specialist", out.Specialist).
			Str("rationale", out.Rationale).
			Msg("classifier returned no routable specialist")
		return contract.RoutingDecision{}, fmt.Errorf("%w: classifier chose %q", contract.ErrUnroutableQuery, out.Specialist)
	}

	decision := contract.RoutingDecision{
		Specialist: id,
		Rationale:  strings.TrimSpace(out.Rationale),
	}
	log.Info().
		Str("specialist", string(decision.Specialist)).
		Str("rationale", decision.Rationale).
		Msg("routing decision")
	return decision, nil
}

func (r *Router) inCatalog(id contract.SpecialistID) bool {
	for _, entry := range r.catalog {
		if entry.ID == id {
			return true
		}
	}
	return false
}

type turnPayload struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Specialist string `json:"specialist,omitempty"`
}

func historyPayload(turns []contract.Turn) []turnPayload {
	out := make([]turnPayload, 0, len(turns))
	for _, t := range turns {
		out = append(out, turnPayload{
			Role:       string(t.Role),
			Content:    t.Content,
			Specialist: string(t.Specialist),
		})
	}
	return out
}
