package specialist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/saralytics/saralytics/agent/contract"
	toolx "github.com/saralytics/saralytics/agent/tool"
)

const (
	defaultMaxToolRounds = 3
	defaultHistoryWindow = 8
	defaultMaxTurnChars  = 600
)

// Persona configures one specialist's identity and capability set.
type Persona struct {
	ID           contract.SpecialistID
	Name         string
	Description  string
	SystemPrompt string
}

type Option func(*specialistImpl)

func WithMaxToolRounds(n int) Option {
	return func(s *specialistImpl) {
		if n > 0 {
			s.maxRounds = n
		}
	}
}

func WithHistoryWindow(turns, maxChars int) Option {
	return func(s *specialistImpl) {
		if turns > 0 {
			s.historyWindow = turns
		}
		if maxChars > 0 {
			s.maxTurnChars = maxChars
		}
	}
}

// specialistImpl runs the bounded reason-act-observe loop for one persona.
// Reasoning rounds use the tool-bound model; the final synthesis streams from
// the unbound model so it cannot request further tools.
type specialistImpl struct {
	persona    Persona
	toolModel  einomodel.ToolCallingChatModel
	synthModel einomodel.BaseChatModel
	executor   contract.ToolExecutor
	defs       map[string]toolx.Definition

	maxRounds     int
	historyWindow int
	maxTurnChars  int
}

var _ contract.Specialist = (*specialistImpl)(nil)

func New(
	persona Persona,
	chatModel einomodel.ToolCallingChatModel,
	executor contract.ToolExecutor,
	defs []toolx.Definition,
	opts ...Option,
) (*specialistImpl, error) {
	if persona.ID == "" {
		return nil, fmt.Errorf("%w: persona id is required", contract.ErrValidation)
	}
	if strings.TrimSpace(persona.SystemPrompt) == "" {
		return nil, fmt.Errorf("%w: persona system prompt is required", contract.ErrValidation)
	}
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contract.ErrValidation)
	}
	if executor == nil {
		return nil, fmt.Errorf("%w: tool executor is required", contract.ErrValidation)
	}

	infos := make([]*schema.ToolInfo, 0, len(defs))
	byName := make(map[string]toolx.Definition, len(defs))
	for _, d := range defs {
		if strings.TrimSpace(d.Name) == "" {
			continue
		}
		infos = append(infos, d.Info())
		byName[d.Name] = d
	}

	toolModel := chatModel
	if len(infos) > 0 {
		bound, err := chatModel.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("%w: bind tools for specialist=%s: %v", contract.ErrReasoningModelUnavailable, persona.ID, err)
		}
		toolModel = bound
	}

	s := &specialistImpl{
		persona:       persona,
		toolModel:     toolModel,
		synthModel:    chatModel,
		executor:      executor,
		defs:          byName,
		maxRounds:     defaultMaxToolRounds,
		historyWindow: defaultHistoryWindow,
		maxTurnChars:  defaultMaxTurnChars,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *specialistImpl) ID() contract.SpecialistID {
	return s.persona.ID
}

// Respond drives the loop: Reasoning -> Acting -> Observing -> Reasoning
// until the model stops requesting tools or the round bound is hit, then
// streams the final synthesis. Every tool-invocation request, valid or not,
// consumes one round; a validation failure becomes an observation so the
// model gets a self-correction chance inside the bound.
func (s *specialistImpl) Respond(
	ctx context.Context,
	query string,
	history []contract.Turn,
	emit contract.EmitFunc,
) (contract.AgentResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return contract.AgentResponse{}, fmt.Errorf("%w: query is empty", contract.ErrValidation)
	}

	msgs := s.baseMessages(query, history)
	var trace []contract.ToolStep

	wantsTools := len(s.defs) > 0
	for round := 1; round <= s.maxRounds && wantsTools; round++ {
		out, err := s.toolModel.Generate(ctx, msgs)
		if err != nil {
			return contract.AgentResponse{}, fmt.Errorf("%w: reasoning round %d: %v", contract.ErrReasoningModelUnavailable, round, err)
		}
		if len(out.ToolCalls) == 0 {
			wantsTools = false
			break
		}

		// One tool call per information need; extra parallel requests in the
		// same message are dropped rather than executed.
		tc := out.ToolCalls[0]
		call, obs := s.actOn(tc)
		if obs == nil {
			result, err := s.executor.Execute(ctx, call)
			if err != nil {
				if errors.Is(err, contract.ErrSourceUnavailable) {
					return contract.AgentResponse{}, err
				}
				// Unknown tool or argument failures are recoverable: feed
				// them back as observations instead of aborting.
				result = contract.ToolResult{Tool: call.Tool, Error: err.Error()}
			}
			obs = &result
		}

		trace = append(trace, contract.ToolStep{Call: call, Result: *obs})
		msgs = append(msgs,
			schema.AssistantMessage(out.Content, []schema.ToolCall{tc}),
			observationMessage(tc.ID, *obs),
		)
	}

	degraded := wantsTools && len(trace) > 0
	if degraded {
		log.Warn().
			Str("specialist", string(s.persona.ID)).
			Int("rounds", len(trace)).
			Err(contract.ErrRoundBoundExceeded).
			Msg("synthesizing degraded answer")
		msgs = append(msgs, schema.UserMessage(degradedInstruction))
	}

	text, err := s.synthesize(ctx, msgs, emit)
	if err != nil {
		return contract.AgentResponse{}, err
	}

	return contract.AgentResponse{
		Text:       text,
		Specialist: s.persona.ID,
		ToolTrace:  trace,
		Degraded:   degraded,
	}, nil
}

// actOn pre-validates one model-emitted tool call. A non-nil observation
// short-circuits execution; nil means the call may go to the executor.
func (s *specialistImpl) actOn(tc schema.ToolCall) (contract.ToolCall, *contract.ToolResult) {
	call, err := parseToolCall(tc)
	if err != nil {
		return call, &contract.ToolResult{Tool: call.Tool, Error: err.Error()}
	}

	def, ok := s.defs[call.Tool]
	if !ok {
		return call, &contract.ToolResult{
			Tool:  call.Tool,
			Error: fmt.Sprintf("tool %q is not available to the %s specialist", call.Tool, s.persona.ID),
		}
	}
	if err := def.ValidateArgs(call.Args); err != nil {
		return call, &contract.ToolResult{
			Tool:  call.Tool,
			Error: fmt.Sprintf("invalid arguments: %v", err),
		}
	}
	return call, nil
}

func (s *specialistImpl) synthesize(ctx context.Context, msgs []*schema.Message, emit contract.EmitFunc) (string, error) {
	reader, err := s.synthModel.Stream(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%w: synthesis stream: %v", contract.ErrReasoningModelUnavailable, err)
	}
	defer reader.Close()

	var b strings.Builder
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: synthesis recv: %v", contract.ErrReasoningModelUnavailable, err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		b.WriteString(chunk.Content)
		if emit != nil {
			if err := emit(chunk.Content); err != nil {
				return "", err
			}
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: synthesis produced no text", contract.ErrSchemaViolation)
	}
	return text, nil
}

func (s *specialistImpl) baseMessages(query string, history []contract.Turn) []*schema.Message {
	windowed := contract.WindowTurns(history, s.historyWindow, s.maxTurnChars)
	msgs := make([]*schema.Message, 0, len(windowed)+2)
	msgs = append(msgs, schema.SystemMessage(s.persona.SystemPrompt))
	for _, t := range windowed {
		switch t.Role {
		case contract.RoleAgent:
			msgs = append(msgs, schema.AssistantMessage(t.Content, nil))
		default:
			msgs = append(msgs, schema.UserMessage(t.Content))
		}
	}
	return append(msgs, schema.UserMessage(query))
}

const degradedInstruction = "The tool budget for this request is exhausted. " +
	"Produce your best answer from the observations gathered so far, and open " +
	"by noting that the answer is partial."

func parseToolCall(tc schema.ToolCall) (contract.ToolCall, error) {
	name := strings.TrimSpace(tc.Function.Name)
	call := contract.ToolCall{Tool: name, Args: map[string]any{}}
	if name == "" {
		return call, fmt.Errorf("tool call name is empty")
	}
	if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &call.Args); err != nil {
			return call, fmt.Errorf("tool arguments are not valid JSON: %v", err)
		}
	}
	return call, nil
}

func observationMessage(toolCallID string, obs contract.ToolResult) *schema.Message {
	payload, err := json.Marshal(obs)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"tool":%q,"error":"observation encode failed"}`, obs.Tool))
	}
	return schema.ToolMessage(string(payload), toolCallID)
}
