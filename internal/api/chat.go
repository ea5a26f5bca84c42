package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/sage/internal/chat"
	"github.com/koopa0/sage/internal/llm"
	"github.com/koopa0/sage/internal/log"
	"github.com/koopa0/sage/internal/session"
)

// ChatRunner is the slice of the orchestrator the handlers need.
type ChatRunner interface {
	ExecuteStream(ctx context.Context, sessionID uuid.UUID, input string, callback chat.StreamCallback) (*chat.Result, error)
}

// chatHandler serves the synchronous and SSE chat endpoints.
type chatHandler struct {
	agent  ChatRunner
	logger log.Logger
}

type chatRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`
}

type chatResponse struct {
	SessionID  uuid.UUID `json:"session_id"`
	Text       string    `json:"text"`
	RoundTrips int       `json:"round_trips"`
	Truncated  bool      `json:"truncated"`
}

// SSE event types for chat streaming.
const (
	eventChunk = "chunk" // partial response text
	eventDone  = "done"  // stream completed successfully
	eventError = "error" // error occurred during streaming
)

// chunkPayload is the SSE data payload for streaming text chunks.
type chunkPayload struct {
	Text string `json:"text"`
}

// donePayload is the SSE data payload when streaming completes.
type donePayload struct {
	Text       string `json:"text"`
	SessionID  string `json:"session_id"`
	RoundTrips int    `json:"round_trips"`
	Truncated  bool   `json:"truncated"`
}

// errorPayload is the SSE data payload when an error occurs.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeChatRequest parses and validates the request body. It writes
// nothing; callers decide how to report the error (JSON vs SSE).
func decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, error) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body")
	}
	if req.SessionID == uuid.Nil {
		return req, fmt.Errorf("session_id is required")
	}
	if req.Message == "" {
		return req, fmt.Errorf("message is required")
	}
	return req, nil
}

// POST /api/v1/chat
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	result, err := h.agent.ExecuteStream(r.Context(), req.SessionID, req.Message, nil)
	if err != nil {
		status, code := mapChatError(err)
		h.logger.Warn("chat turn failed", "session_id", req.SessionID, "error", err)
		writeError(w, status, code, err.Error(), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID:  req.SessionID,
		Text:       result.Text,
		RoundTrips: result.RoundTrips,
		Truncated:  result.Truncated,
	}, h.logger)
}

// POST /api/v1/chat/stream
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	req, err := decodeChatRequest(w, r)
	if err != nil {
		_ = writeEvent(w, flusher, eventError, errorPayload{
			Code:    "invalid_request",
			Message: err.Error(),
		})
		return
	}

	ctx := r.Context()
	rc := http.NewResponseController(w)
	h.logger.Debug("SSE stream started", "session_id", req.SessionID)

	callback := func(ctx context.Context, text string) error {
		// Each chunk refreshes the write deadline so a stalled
		// client cannot hold the connection forever.
		_ = rc.SetWriteDeadline(time.Now().Add(30 * time.Second))
		return writeEvent(w, flusher, eventChunk, chunkPayload{Text: text})
	}

	result, err := h.agent.ExecuteStream(ctx, req.SessionID, req.Message, callback)
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected", "session_id", req.SessionID)
			return
		}
		h.writeStreamError(w, flusher, err)
		return
	}

	_ = rc.SetWriteDeadline(time.Now().Add(30 * time.Second))
	_ = writeEvent(w, flusher, eventDone, donePayload{
		Text:       result.Text,
		SessionID:  req.SessionID.String(),
		RoundTrips: result.RoundTrips,
		Truncated:  result.Truncated,
	})

	h.logger.Debug("SSE stream completed",
		"session_id", req.SessionID,
		"round_trips", result.RoundTrips,
	)
}

// writeStreamError maps orchestrator errors to SSE error events.
func (h *chatHandler) writeStreamError(w io.Writer, f http.Flusher, err error) {
	_, code := mapChatError(err)
	_ = writeEvent(w, f, eventError, errorPayload{
		Code:    code,
		Message: err.Error(),
	})
}

// mapChatError translates orchestrator errors into an HTTP status and
// a stable machine-readable code.
func mapChatError(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return http.StatusBadRequest, "empty_input"
	case errors.Is(err, session.ErrSessionBusy):
		return http.StatusConflict, "session_busy"
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, llm.ErrUnavailable), errors.Is(err, llm.ErrMalformed):
		return http.StatusBadGateway, "model_unavailable"
	default:
		return http.StatusInternalServerError, "chat_failed"
	}
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
