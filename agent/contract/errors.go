package contract

import "errors"

var (
	ErrRoutingUnavailable        = errors.New("routing model unavailable")
	ErrUnroutableQuery           = errors.New("query is unroutable")
	ErrInvalidToolArguments      = errors.New("invalid tool arguments")
	ErrUnknownTool               = errors.New("unknown tool")
	ErrSourceUnavailable         = errors.New("data source unavailable")
	ErrReasoningModelUnavailable = errors.New("reasoning model unavailable")
	ErrRoundBoundExceeded        = errors.New("tool round bound exceeded")
	ErrSessionStoreConflict      = errors.New("session store conflict")

	ErrSchemaViolation = errors.New("model response violates schema")
	ErrValidation      = errors.New("validation failed")
)

// ErrorKind maps a failure to the stable kind string carried by error
// fragments, so callers never have to parse error text.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoutingUnavailable):
		return "routing_unavailable"
	case errors.Is(err, ErrUnroutableQuery):
		return "unroutable_query"
	case errors.Is(err, ErrInvalidToolArguments):
		return "invalid_tool_arguments"
	case errors.Is(err, ErrUnknownTool):
		return "unknown_tool"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrReasoningModelUnavailable):
		return "reasoning_model_unavailable"
	case errors.Is(err, ErrRoundBoundExceeded):
		return "round_bound_exceeded"
	case errors.Is(err, ErrSessionStoreConflict):
		return "session_store_conflict"
	default:
		return "internal"
	}
}
