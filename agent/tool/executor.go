package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saralytics/saralytics/agent/contract"
)

const defaultExecTimeout = 15 * time.Second

// Executor runs tools from one specialist's capability set. Calls outside the
// set fail with ErrUnknownTool, which also enforces the sandbox: an executor
// built for one specialist cannot reach another specialist's tools.
type Executor struct {
	defs    map[string]Definition
	timeout time.Duration
}

var _ contract.ToolExecutor = (*Executor)(nil)

type ExecutorOption func(*Executor)

func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

func NewExecutor(defs []Definition, opts ...ExecutorOption) *Executor {
	byName := make(map[string]Definition, len(defs))
	for _, d := range defs {
		if d.Name == "" || d.Run == nil {
			continue
		}
		byName[d.Name] = d
	}
	e := &Executor{defs: byName, timeout: defaultExecTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Execute validates and runs one tool call. Arguments are re-validated here
// even though the specialist pre-checks them; the executor fails closed on
// anything the upstream check missed.
func (e *Executor) Execute(ctx context.Context, call contract.ToolCall) (contract.ToolResult, error) {
	def, ok := e.defs[call.Tool]
	if !ok {
		return contract.ToolResult{}, fmt.Errorf("%w: %s", contract.ErrUnknownTool, call.Tool)
	}
	if err := def.ValidateArgs(call.Args); err != nil {
		return contract.ToolResult{}, fmt.Errorf("%w: %v", contract.ErrInvalidToolArguments, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	result, err := def.Run(ctx, call.Args)
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Tool).Msg("tool execution failed")
		return contract.ToolResult{}, err
	}

	log.Debug().
		Str("tool", call.Tool).
		Bool("no_data", result.NoData).
		Dur("elapsed", time.Since(start)).
		Msg("tool executed")
	return result, nil
}
