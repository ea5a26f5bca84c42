// Package tools provides the tool registry the chat orchestrator
// dispatches through, plus the built-in knowledge search tool.
//
// Each tool carries a JSON schema derived from its input struct.
// Arguments are validated against that schema before the handler
// runs, so handlers can trust their input shape.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool is a named, schema-validated operation the model can invoke.
type Tool struct {
	name        string
	description string
	schema      *jsonschema.Resolved
	run         func(ctx context.Context, raw json.RawMessage) (string, error)
}

// Name returns the tool's unique identifier.
func (t *Tool) Name() string { return t.name }

// Description returns the text the model uses to decide when to call
// the tool.
func (t *Tool) Description() string { return t.description }

// Execute validates raw arguments against the tool's schema and runs
// the handler. Validation failures wrap ErrInvalidArguments.
func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	// Validate the generic form first so schema errors carry
	// field-level detail instead of Go unmarshal noise.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := t.schema.Validate(generic); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	return t.run(ctx, raw)
}

// New creates a tool with type-safe input handling. The input schema
// is inferred from In's json and jsonschema tags; fields without
// omitempty are required.
func New[In any](name, description string, handler func(context.Context, In) (string, error)) (*Tool, error) {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, fmt.Errorf("deriving schema for %s: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema for %s: %w", name, err)
	}

	run := func(ctx context.Context, raw json.RawMessage) (string, error) {
		var input In
		if err := json.Unmarshal(raw, &input); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		return handler(ctx, input)
	}

	return &Tool{
		name:        name,
		description: description,
		schema:      resolved,
		run:         run,
	}, nil
}
