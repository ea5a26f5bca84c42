package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/sage/internal/log"
	"github.com/koopa0/sage/internal/session"
)

const (
	maxTitleLength     = 200
	defaultListLimit   = 50
	maxListLimit       = 200
	maxRequestBodySize = 1 << 20 // 1MB
)

// SessionStore is the slice of the session store the handlers need.
type SessionStore interface {
	CreateSession(ctx context.Context, title string) (*session.Session, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*session.Session, error)
	ListSessions(ctx context.Context, limit, offset int32) ([]*session.Session, error)
	RenameSession(ctx context.Context, sessionID uuid.UUID, title string) error
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
	GetMessages(ctx context.Context, sessionID uuid.UUID) ([]session.Message, error)
}

// sessionHandler serves session CRUD endpoints.
type sessionHandler struct {
	store  SessionStore
	logger log.Logger
}

type createSessionRequest struct {
	Title string `json:"title"`
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

type sessionListResponse struct {
	Sessions []*session.Session `json:"sessions"`
	Limit    int32              `json:"limit"`
	Offset   int32              `json:"offset"`
}

type messageListResponse struct {
	SessionID uuid.UUID         `json:"session_id"`
	Messages  []session.Message `json:"messages"`
}

// POST /api/v1/sessions
func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = session.DefaultTitle(time.Now())
	}
	if len(title) > maxTitleLength {
		writeError(w, http.StatusBadRequest, "title_too_long", "title exceeds 200 characters", h.logger)
		return
	}

	sess, err := h.store.CreateSession(r.Context(), title)
	if err != nil {
		h.logger.Error("creating session", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create session", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, sess, h.logger)
}

// GET /api/v1/sessions
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryInt(r, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := parseQueryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	sessions, err := h.store.ListSessions(r.Context(), int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list sessions", h.logger)
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}

	writeJSON(w, http.StatusOK, sessionListResponse{
		Sessions: sessions,
		Limit:    int32(limit),
		Offset:   int32(offset),
	}, h.logger)
}

// GET /api/v1/sessions/{id}
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathSessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		h.writeStoreError(w, err, sessionID, "fetching session")
		return
	}

	writeJSON(w, http.StatusOK, sess, h.logger)
}

// GET /api/v1/sessions/{id}/messages
func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathSessionID(w, r)
	if !ok {
		return
	}

	msgs, err := h.store.GetMessages(r.Context(), sessionID)
	if err != nil {
		h.writeStoreError(w, err, sessionID, "fetching messages")
		return
	}
	if msgs == nil {
		msgs = []session.Message{}
	}

	writeJSON(w, http.StatusOK, messageListResponse{SessionID: sessionID, Messages: msgs}, h.logger)
}

// PATCH /api/v1/sessions/{id}
func (h *sessionHandler) rename(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathSessionID(w, r)
	if !ok {
		return
	}

	var req renameSessionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "missing_title", "title is required", h.logger)
		return
	}
	if len(title) > maxTitleLength {
		writeError(w, http.StatusBadRequest, "title_too_long", "title exceeds 200 characters", h.logger)
		return
	}

	if err := h.store.RenameSession(r.Context(), sessionID, title); err != nil {
		h.writeStoreError(w, err, sessionID, "renaming session")
		return
	}

	sess, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		h.writeStoreError(w, err, sessionID, "fetching session")
		return
	}
	writeJSON(w, http.StatusOK, sess, h.logger)
}

// DELETE /api/v1/sessions/{id}
func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathSessionID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteSession(r.Context(), sessionID); err != nil {
		h.writeStoreError(w, err, sessionID, "deleting session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pathSessionID parses the {id} path segment. Writes the error
// response itself and returns ok=false when the ID is missing or
// malformed.
func (h *sessionHandler) pathSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := r.PathValue("id")
	if idStr == "" {
		writeError(w, http.StatusBadRequest, "missing_id", "session ID required", h.logger)
		return uuid.Nil, false
	}

	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid session ID", h.logger)
		return uuid.Nil, false
	}
	return sessionID, true
}

// writeStoreError maps store errors onto API responses.
func (h *sessionHandler) writeStoreError(w http.ResponseWriter, err error, sessionID uuid.UUID, action string) {
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
		return
	}
	h.logger.Error(action, "error", err, "session_id", sessionID)
	writeError(w, http.StatusInternalServerError, "store_error", "session store error", h.logger)
}

// parseQueryInt reads an integer query parameter, falling back to def
// on absence or parse failure.
func parseQueryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
