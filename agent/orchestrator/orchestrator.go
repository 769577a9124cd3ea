package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/saralytics/saralytics/agent/contract"
)

const (
	defaultRouteTimeout   = 15 * time.Second
	defaultRespondTimeout = 2 * time.Minute
	defaultAppendTimeout  = 10 * time.Second

	clarificationText = "I couldn't tell whether that's a sales, inventory, or " +
		"finance question. Could you rephrase it, or name the figures you're after?"
)

type Config struct {
	// FallbackSpecialist, when set, absorbs both unroutable queries and
	// classifier outages. When empty, unroutable queries get a clarification
	// reply and outages surface as error fragments.
	FallbackSpecialist contract.SpecialistID

	RouteTimeout   time.Duration
	RespondTimeout time.Duration
}

// Orchestrator is the entry point for a conversation turn: route, respond,
// stream, persist.
type Orchestrator struct {
	store    contract.SessionStore
	registry contract.Registry
	cfg      Config

	now func() time.Time
}

func New(store contract.SessionStore, registry contract.Registry, cfg Config) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if registry == nil {
		return nil, errors.New("agent registry is required")
	}
	if cfg.FallbackSpecialist != "" {
		if _, ok := registry.Specialist(cfg.FallbackSpecialist); !ok {
			return nil, errors.New("fallback specialist is not registered")
		}
	}
	if cfg.RouteTimeout <= 0 {
		cfg.RouteTimeout = defaultRouteTimeout
	}
	if cfg.RespondTimeout <= 0 {
		cfg.RespondTimeout = defaultRespondTimeout
	}

	return &Orchestrator{
		store:    store,
		registry: registry,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// HandleTurn processes one user message and returns the fragment stream:
// zero or more text fragments terminated by one done or error fragment. The
// user and agent turns are appended together once the answer is complete; a
// caller that disconnects mid-stream leaves the session unchanged.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, userText string) (*schema.StreamReader[contract.Fragment], error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("session id is empty")
	}
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, errors.New("message is empty")
	}

	reader, writer := schema.Pipe[contract.Fragment](8)
	go o.run(ctx, sessionID, userText, writer)
	return reader, nil
}

func (o *Orchestrator) run(ctx context.Context, sessionID, userText string, writer *schema.StreamWriter[contract.Fragment]) {
	defer writer.Close()

	history, err := o.store.List(ctx, sessionID)
	if err != nil {
		o.fail(writer, err, "load session history")
		return
	}

	decision, err := o.route(ctx, userText, history)
	if err != nil {
		if errors.Is(err, contract.ErrUnroutableQuery) {
			o.clarify(ctx, sessionID, userText, writer)
			return
		}
		o.fail(writer, err, "route query")
		return
	}

	spec, ok := o.registry.Specialist(decision.Specialist)
	if !ok {
		o.fail(writer, contract.ErrUnroutableQuery, "resolve specialist")
		return
	}

	respondCtx, cancel := context.WithTimeout(ctx, o.cfg.RespondTimeout)
	defer cancel()

	emit := func(delta string) error {
		if sent := writer.Send(contract.Fragment{
			Kind:       contract.FragmentText,
			Text:       delta,
			Specialist: decision.Specialist,
		}, nil); !sent {
			return context.Canceled
		}
		return nil
	}

	resp, err := spec.Respond(respondCtx, userText, history, emit)
	if err != nil {
		if ctx.Err() != nil {
			// Caller disconnected; abandon the turn without persisting
			// partial output.
			log.Debug().Str("session", sessionID).Msg("turn cancelled mid-stream")
			return
		}
		o.fail(writer, err, "specialist respond")
		return
	}

	if err := o.persistTurns(ctx, sessionID, userText, resp); err != nil {
		o.fail(writer, err, "append turns")
		return
	}

	writer.Send(contract.Fragment{
		Kind:       contract.FragmentDone,
		Specialist: resp.Specialist,
		Degraded:   resp.Degraded,
	}, nil)
}

func (o *Orchestrator) route(ctx context.Context, userText string, history []contract.Turn) (contract.RoutingDecision, error) {
	routeCtx, cancel := context.WithTimeout(ctx, o.cfg.RouteTimeout)
	defer cancel()

	decision, err := o.registry.Router().Route(routeCtx, userText, history)
	if err == nil {
		return decision, nil
	}
	if o.cfg.FallbackSpecialist == "" {
		return contract.RoutingDecision{}, err
	}
	if !errors.Is(err, contract.ErrUnroutableQuery) && !errors.Is(err, contract.ErrRoutingUnavailable) {
		return contract.RoutingDecision{}, err
	}

	log.Warn().
		Err(err).
		Str("fallback", string(o.cfg.FallbackSpecialist)).
		Msg("routing failed, using fallback specialist")
	return contract.RoutingDecision{
		Specialist: o.cfg.FallbackSpecialist,
		Rationale:  "fallback after routing failure",
	}, nil
}

// clarify answers an unroutable query with a clarification request. The
// exchange is still recorded so the follow-up can build on it.
func (o *Orchestrator) clarify(ctx context.Context, sessionID, userText string, writer *schema.StreamWriter[contract.Fragment]) {
	writer.Send(contract.Fragment{Kind: contract.FragmentText, Text: clarificationText}, nil)

	resp := contract.AgentResponse{Text: clarificationText}
	if err := o.persistTurns(ctx, sessionID, userText, resp); err != nil {
		o.fail(writer, err, "append clarification turns")
		return
	}
	writer.Send(contract.Fragment{Kind: contract.FragmentDone}, nil)
}

// persistTurns appends the user and agent turns in one store call, which is
// what makes the pair atomic under the store's per-session serialization.
func (o *Orchestrator) persistTurns(ctx context.Context, sessionID, userText string, resp contract.AgentResponse) error {
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultAppendTimeout)
	defer cancel()

	now := o.now().UTC()
	return o.store.Append(appendCtx, sessionID,
		contract.Turn{
			ID:        uuid.NewString(),
			Role:      contract.RoleUser,
			Content:   userText,
			CreatedAt: now,
		},
		contract.Turn{
			ID:         uuid.NewString(),
			Role:       contract.RoleAgent,
			Content:    resp.Text,
			Specialist: resp.Specialist,
			CreatedAt:  now,
		},
	)
}

func (o *Orchestrator) fail(writer *schema.StreamWriter[contract.Fragment], err error, stage string) {
	kind := contract.ErrorKind(err)
	log.Error().Err(err).Str("stage", stage).Str("err_kind", kind).Msg("turn failed")
	writer.Send(contract.Fragment{
		Kind:    contract.FragmentError,
		Text:    userFacingError(kind),
		ErrKind: kind,
	}, nil)
}

func userFacingError(kind string) string {
	switch kind {
	case "routing_unavailable":
		return "The assistant that decides who should answer is unreachable right now. Please try again shortly."
	case "source_unavailable":
		return "The sales database is unreachable right now. Please try again shortly."
	case "reasoning_model_unavailable":
		return "The answering model is unreachable right now. Please try again shortly."
	default:
		return "Something went wrong while answering. Please try again."
	}
}
