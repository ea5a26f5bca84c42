package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/sage/internal/log"
)

// Store persists sessions and messages in PostgreSQL. Safe for
// concurrent use; per-session write ordering is enforced with a row
// lock inside AppendMessages.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a Store on the given pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		pool:   pool,
		logger: logger.With("component", "session"),
	}
}

// CreateSession creates a session. An empty title gets the timestamp
// default.
func (s *Store) CreateSession(ctx context.Context, title string) (*Session, error) {
	now := time.Now().UTC()
	if title == "" {
		title = DefaultTitle(now)
	}

	sess := &Session{ID: uuid.New(), Title: title}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, title) VALUES ($1, $2)
		 RETURNING created_at, updated_at`,
		sess.ID, sess.Title,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("session created", "id", sess.ID, "title", sess.Title)
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	sess := &Session{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", sessionID, err)
	}
	return sess, nil
}

// ListSessions returns sessions ordered by most recent activity.
func (s *Store) ListSessions(ctx context.Context, limit, offset int32) ([]*Session, error) {
	limit = NormalizeListLimit(limit)
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions
		 ORDER BY updated_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// RenameSession updates the session title.
func (s *Store) RenameSession(ctx context.Context, sessionID uuid.UUID, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET title = $2, updated_at = now() WHERE id = $1`,
		sessionID, title,
	)
	if err != nil {
		return fmt.Errorf("renaming session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// DeleteSession removes a session and, via cascade, all its messages.
func (s *Store) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.logger.Debug("session deleted", "id", sessionID)
	return nil
}

// GetMessages returns the session's full history in sequence order.
func (s *Store) GetMessages(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, tool_calls, tool_call_id, tool_name, status, sequence_number, created_at
		 FROM messages WHERE session_id = $1 ORDER BY sequence_number ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting messages for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting messages for %s: %w", sessionID, err)
	}
	return messages, nil
}

// AppendMessages atomically appends messages to the session with
// gapless sequence numbers.
//
// The session row is locked FOR UPDATE for the duration of the
// transaction so concurrent appends cannot interleave or duplicate
// sequence numbers. Either every message lands or none do.
func (s *Store) AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var lockedID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return fmt.Errorf("locking session %s: %w", sessionID, err)
	}

	var maxSeq int32
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), -1) FROM messages WHERE session_id = $1`,
		sessionID,
	).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("reading max sequence for %s: %w", sessionID, err)
	}

	for i := range messages {
		msg := &messages[i]
		if msg.ID == uuid.Nil {
			msg.ID = uuid.New()
		}
		if msg.Status == "" {
			msg.Status = StatusCompleted
		}
		msg.SessionID = sessionID
		maxSeq++
		msg.SequenceNumber = maxSeq

		var toolCalls []byte
		if len(msg.ToolCalls) > 0 {
			toolCalls, err = json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("marshaling tool calls: %w", err)
			}
		}
		var toolCallID, toolName *string
		if msg.ToolCallID != "" {
			toolCallID = &msg.ToolCallID
		}
		if msg.ToolName != "" {
			toolName = &msg.ToolName
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO messages (id, session_id, role, content, tool_calls, tool_call_id, tool_name, status, sequence_number)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING created_at`,
			msg.ID, sessionID, msg.Role, msg.Content, toolCalls, toolCallID, toolName, msg.Status, msg.SequenceNumber,
		).Scan(&msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting message seq %d: %w", msg.SequenceNumber, err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("touching session %s: %w", sessionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing append for %s: %w", sessionID, err)
	}

	s.logger.Debug("messages appended", "session", sessionID, "count", len(messages), "max_seq", maxSeq)
	return nil
}

// scanMessage reads one message row.
func scanMessage(row pgx.Row) (Message, error) {
	var (
		msg        Message
		toolCalls  []byte
		toolCallID *string
		toolName   *string
	)
	err := row.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
		&toolCalls, &toolCallID, &toolName, &msg.Status, &msg.SequenceNumber, &msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("scanning message: %w", err)
	}

	if len(toolCalls) > 0 {
		if err := json.Unmarshal(toolCalls, &msg.ToolCalls); err != nil {
			return Message{}, fmt.Errorf("unmarshaling tool calls: %w", err)
		}
	}
	if toolCallID != nil {
		msg.ToolCallID = *toolCallID
	}
	if toolName != nil {
		msg.ToolName = *toolName
	}
	return msg, nil
}
