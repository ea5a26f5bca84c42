package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/sage/internal/log"
)

// Registry is the static name-to-tool table built at startup. It is
// not mutated afterwards, so lookups need no locking.
type Registry struct {
	g      *genkit.Genkit
	logger log.Logger
	tools  map[string]*Tool
	order  []string
}

// NewRegistry creates an empty registry. g is used to resolve the
// Genkit-side tool definitions for model declarations.
func NewRegistry(g *genkit.Genkit, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{
		g:      g,
		logger: logger.With("component", "tools"),
		tools:  make(map[string]*Tool),
	}
}

// Register adds a tool. Duplicate names are a startup bug.
func (r *Registry) Register(t *Tool) error {
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Dispatch validates and executes the named tool. Unknown names wrap
// ErrUnknownTool; argument problems wrap ErrInvalidArguments. The
// caller turns both into tool-result text for the model.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	out, err := t.Execute(ctx, args)
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", name, "error", err)
		return "", err
	}
	return out, nil
}

// Refs returns the Genkit tool references for every registered tool,
// in registration order. These are passed to the model so it sees the
// declarations; execution still goes through Dispatch.
func (r *Registry) Refs() []ai.ToolRef {
	refs := make([]ai.ToolRef, 0, len(r.order))
	for _, name := range r.order {
		if t := genkit.LookupTool(r.g, name); t != nil {
			refs = append(refs, t)
		}
	}
	return refs
}
