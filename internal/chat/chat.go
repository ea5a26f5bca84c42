// Package chat implements the conversation orchestrator: the state
// machine that drives one user turn through a bounded number of
// model and tool round trips, streaming assistant text as it arrives
// and persisting the full exchange.
//
// One turn moves through AWAITING_MODEL and STREAMING_TEXT and ends
// either DONE (final text) or back at AWAITING_MODEL after a tool
// cycle. A round-trip counter bounds the loop; exhausting it appends
// a truncation notice instead of looping forever.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/koopa0/sage/internal/llm"
	"github.com/koopa0/sage/internal/log"
	"github.com/koopa0/sage/internal/session"
)

// DefaultSystemPrompt instructs the model to ground answers in the
// knowledge base.
const DefaultSystemPrompt = "You are a helpful assistant that answers questions using a private knowledge base. " +
	"Use the search_kb tool to look up relevant documents before answering any question the knowledge base might cover. " +
	"Base your answers on the retrieved content and say so honestly when nothing relevant was found."

const (
	// DefaultMaxRoundTrips bounds model/tool cycles per turn.
	DefaultMaxRoundTrips = 5

	// DefaultToolTimeout bounds a single tool invocation so a hung
	// tool cannot hold the session lock forever.
	DefaultToolTimeout = 30 * time.Second

	// fallbackResponse is returned when the model produces neither
	// text nor tool calls.
	fallbackResponse = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

	// truncationNotice closes a turn whose round-trip budget ran out.
	truncationNotice = "I reached the maximum number of tool steps for this turn without a final answer. " +
		"Please ask again, or narrow the question."
)

// Sentinel errors for orchestration.
var (
	// ErrEmptyInput indicates the user message was blank.
	ErrEmptyInput = errors.New("empty input")
)

// Gateway is the model adapter the orchestrator drives.
type Gateway interface {
	Generate(ctx context.Context, req *llm.Request, stream llm.StreamFunc) (*llm.Completion, error)
}

// Store is the slice of session persistence the orchestrator needs.
type Store interface {
	GetMessages(ctx context.Context, sessionID uuid.UUID) ([]session.Message, error)
	AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []session.Message) error
}

// ToolRunner dispatches model-requested tool calls.
type ToolRunner interface {
	Dispatch(ctx context.Context, name string, args json.RawMessage) (string, error)
	Refs() []ai.ToolRef
}

// StreamCallback receives assistant text chunks in generation order.
type StreamCallback func(ctx context.Context, text string) error

// Result summarizes a completed turn.
type Result struct {
	// Text is the final assistant text, equal to the concatenation
	// of everything streamed for the closing message.
	Text string

	// Messages are the messages persisted during this turn, in
	// order, starting with the user message.
	Messages []session.Message

	// RoundTrips counts model invocations used.
	RoundTrips int

	// Truncated is set when the round-trip budget forced the turn to
	// close with a truncation notice.
	Truncated bool
}

// Config assembles an Agent.
type Config struct {
	Gateway      Gateway
	Store        Store
	Locks        *session.Locks
	Tools        ToolRunner
	Logger       log.Logger
	SystemPrompt string

	// MaxRoundTrips bounds model/tool cycles per turn. <= 0 uses
	// DefaultMaxRoundTrips.
	MaxRoundTrips int

	// RequestTimeout bounds one model round trip. 0 disables.
	RequestTimeout time.Duration

	// ToolTimeout bounds one tool invocation. <= 0 uses
	// DefaultToolTimeout.
	ToolTimeout time.Duration

	Retry RetryConfig

	// Limiter throttles model calls proactively. Nil gets a default.
	Limiter *rate.Limiter

	Budget TokenBudget
}

func (c Config) validate() error {
	if c.Gateway == nil {
		return fmt.Errorf("gateway is required")
	}
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.Locks == nil {
		return fmt.Errorf("locks are required")
	}
	if c.Tools == nil {
		return fmt.Errorf("tools are required")
	}
	return nil
}

// Agent orchestrates chat turns. Safe for concurrent use across
// sessions; the per-session lock serializes turns within one.
type Agent struct {
	gateway        Gateway
	store          Store
	locks          *session.Locks
	tools          ToolRunner
	logger         log.Logger
	systemPrompt   string
	maxRoundTrips  int
	requestTimeout time.Duration
	toolTimeout    time.Duration
	retry          RetryConfig
	limiter        *rate.Limiter
	budget         TokenBudget
}

// New creates an Agent, applying defaults for unset options.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid chat config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	maxRoundTrips := cfg.MaxRoundTrips
	if maxRoundTrips <= 0 {
		maxRoundTrips = DefaultMaxRoundTrips
	}
	toolTimeout := cfg.ToolTimeout
	if toolTimeout <= 0 {
		toolTimeout = DefaultToolTimeout
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialInterval == 0 {
		retry = DefaultRetryConfig()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}
	budget := cfg.Budget
	if budget.MaxHistoryTokens == 0 && budget.MaxHistoryMessages == 0 {
		budget = DefaultTokenBudget()
	}

	return &Agent{
		gateway:        cfg.Gateway,
		store:          cfg.Store,
		locks:          cfg.Locks,
		tools:          cfg.Tools,
		logger:         logger.With("component", "chat"),
		systemPrompt:   systemPrompt,
		maxRoundTrips:  maxRoundTrips,
		requestTimeout: cfg.RequestTimeout,
		toolTimeout:    toolTimeout,
		retry:          retry,
		limiter:        limiter,
		budget:         budget,
	}, nil
}

// ExecuteStream runs one user turn against the session, forwarding
// assistant text to callback as it is generated. On return the full
// turn is durably appended to the session.
//
// A concurrent turn on the same session fails immediately with
// session.ErrSessionBusy. The lock is released on every exit path.
func (a *Agent) ExecuteStream(ctx context.Context, sessionID uuid.UUID, input string, callback StreamCallback) (*Result, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	if err := a.locks.TryAcquire(sessionID); err != nil {
		return nil, err
	}
	defer a.locks.Release(sessionID)

	history, err := a.store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	userMsg := session.Message{Role: session.RoleUser, Content: input}
	if err := a.store.AppendMessages(ctx, sessionID, []session.Message{userMsg}); err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}
	history = append(history, userMsg)

	result := &Result{Messages: []session.Message{userMsg}}

	for trip := 0; trip < a.maxRoundTrips; trip++ {
		result.RoundTrips++

		req := &llm.Request{
			System:  a.systemPrompt,
			History: a.budget.truncate(history),
			Tools:   a.tools.Refs(),
		}

		var streamed strings.Builder
		relay := func(ctx context.Context, text string) error {
			streamed.WriteString(text)
			if callback != nil {
				return callback(ctx, text)
			}
			return nil
		}

		comp, err := a.generateWithRetry(ctx, req, relay)
		if err != nil {
			return a.failTurn(ctx, sessionID, result, streamed.String(), err)
		}

		if len(comp.ToolCalls) == 0 {
			return a.finishTurn(ctx, sessionID, result, comp.Text, streamed.String(), callback)
		}

		// TOOL_REQUESTED: persist the request, run every call, feed
		// results back, loop.
		turnMsgs := make([]session.Message, 0, 1+len(comp.ToolCalls))
		turnMsgs = append(turnMsgs, session.Message{
			Role:      session.RoleAssistant,
			Content:   comp.Text,
			ToolCalls: comp.ToolCalls,
		})
		for _, call := range comp.ToolCalls {
			turnMsgs = append(turnMsgs, a.runTool(ctx, call))
		}

		if err := a.store.AppendMessages(ctx, sessionID, turnMsgs); err != nil {
			return nil, fmt.Errorf("persisting tool cycle: %w", err)
		}
		history = append(history, turnMsgs...)
		result.Messages = append(result.Messages, turnMsgs...)
	}

	// Round-trip budget exhausted: close with a truncation notice.
	// Not a failure; the turn completes in a controlled way.
	a.logger.Warn("round-trip budget exhausted", "session", sessionID, "trips", result.RoundTrips)
	result.Truncated = true
	return a.finishTurn(ctx, sessionID, result, truncationNotice, "", callback)
}

// runTool executes one tool call under the tool timeout. Dispatch
// errors become tool-result text so the model can self-correct;
// nothing here is fatal to the turn.
func (a *Agent) runTool(ctx context.Context, call session.ToolCall) session.Message {
	toolCtx, cancel := context.WithTimeout(ctx, a.toolTimeout)
	defer cancel()

	output, err := a.tools.Dispatch(toolCtx, call.Name, call.Arguments)
	if err != nil {
		output = "Error: " + err.Error()
	}
	return session.Message{
		Role:       session.RoleTool,
		Content:    output,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

// finishTurn streams any unstreamed closing text, persists the final
// assistant message and completes the result.
//
// The persisted content always equals the concatenation of streamed
// chunks for this closing message.
func (a *Agent) finishTurn(ctx context.Context, sessionID uuid.UUID, result *Result, text, alreadyStreamed string, callback StreamCallback) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		text = fallbackResponse
	}
	if alreadyStreamed != "" {
		// Chunks already went out; the message must match them.
		text = alreadyStreamed
	} else if callback != nil {
		if err := callback(ctx, text); err != nil {
			return a.failTurn(ctx, sessionID, result, "", err)
		}
	}

	final := session.Message{Role: session.RoleAssistant, Content: text}
	if err := a.store.AppendMessages(ctx, sessionID, []session.Message{final}); err != nil {
		return nil, fmt.Errorf("persisting assistant message: %w", err)
	}
	result.Messages = append(result.Messages, final)
	result.Text = text
	return result, nil
}

// failTurn handles a gateway failure. Text already delivered to the
// caller is preserved as a best-effort partial assistant message
// tagged incomplete; with nothing streamed, no assistant message is
// persisted at all.
func (a *Agent) failTurn(ctx context.Context, sessionID uuid.UUID, result *Result, partial string, cause error) (*Result, error) {
	if partial != "" {
		msg := session.Message{
			Role:    session.RoleAssistant,
			Content: partial,
			Status:  session.StatusIncomplete,
		}
		// The original context may already be canceled; persistence
		// gets its own deadline.
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.store.AppendMessages(persistCtx, sessionID, []session.Message{msg}); err != nil {
			a.logger.Error("persisting partial assistant message", "session", sessionID, "error", err)
		} else {
			result.Messages = append(result.Messages, msg)
		}
	}
	return result, cause
}
