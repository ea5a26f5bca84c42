package tools

import "errors"

// Sentinel errors for tool dispatch. Both are surfaced to the model
// as tool output, never as fatal orchestration errors: the model gets
// a chance to correct itself.
var (
	// ErrUnknownTool indicates the model requested a tool name that
	// is not registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments indicates the tool arguments failed schema
	// validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)
