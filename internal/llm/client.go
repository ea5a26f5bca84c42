// Package llm adapts Genkit model generation into the narrow gateway
// the chat orchestrator consumes: one request in, streamed text out,
// plus any tool calls the model requested.
//
// Tool execution is deliberately NOT delegated to Genkit's own tool
// loop; generation returns tool requests to the caller so the
// orchestrator keeps control of dispatch, persistence, and the
// round-trip budget.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/koopa0/sage/internal/log"
	"github.com/koopa0/sage/internal/session"
)

// Request is one model invocation.
type Request struct {
	// System is the system prompt, empty for provider default.
	System string

	// History is the conversation so far, oldest first.
	History []session.Message

	// Tools are the declarations offered to the model.
	Tools []ai.ToolRef
}

// Completion is the model's answer for one round trip.
type Completion struct {
	// Text is the assistant text, possibly empty when the model only
	// requested tools.
	Text string

	// ToolCalls are the tool invocations the model requested, in
	// order. Empty means the turn is final.
	ToolCalls []session.ToolCall
}

// StreamFunc receives incremental text as the model produces it.
type StreamFunc func(ctx context.Context, text string) error

// Client is the Genkit-backed gateway implementation.
type Client struct {
	g      *genkit.Genkit
	model  string
	logger log.Logger
}

// NewClient creates a gateway bound to one model name.
func NewClient(g *genkit.Genkit, modelName string, logger log.Logger) (*Client, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		g:      g,
		model:  modelName,
		logger: logger.With("component", "llm"),
	}, nil
}

// Generate runs one model round trip. Text chunks are forwarded to
// stream as they arrive; a stream error aborts generation. Upstream
// failures come back classified as ErrUnavailable, ErrRateLimited or
// ErrMalformed where recognizable.
func (c *Client) Generate(ctx context.Context, req *Request, stream StreamFunc) (*Completion, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(c.model),
		ai.WithMessages(toModelMessages(req.History)...),
		ai.WithReturnToolRequests(true),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, ai.WithTools(req.Tools...))
	}
	if stream != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if chunk == nil {
				return nil
			}
			for _, part := range chunk.Content {
				if part.IsText() && part.Text != "" {
					if err := stream(ctx, part.Text); err != nil {
						return err
					}
				}
			}
			return nil
		}))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return nil, classify(err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", ErrMalformed)
	}

	comp := &Completion{Text: resp.Text()}
	for _, tr := range resp.ToolRequests() {
		args, err := json.Marshal(tr.Input)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding tool arguments: %v", ErrMalformed, err)
		}
		id := tr.Ref
		if id == "" {
			id = "call-" + uuid.NewString()
		}
		comp.ToolCalls = append(comp.ToolCalls, session.ToolCall{
			ID:        id,
			Name:      tr.Name,
			Arguments: args,
		})
	}

	c.logger.Debug("model round trip",
		"text_len", len(comp.Text),
		"tool_calls", len(comp.ToolCalls),
	)
	return comp, nil
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string {
	return c.model
}
