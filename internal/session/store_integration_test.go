//go:build integration
// +build integration

package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/koopa0/sage/internal/log"
	"github.com/koopa0/sage/internal/testutil"
)

func TestStore_SessionLifecycle(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "Deploy questions")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID == uuid.Nil || sess.Title != "Deploy questions" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Title != sess.Title {
		t.Errorf("title mismatch: %q vs %q", got.Title, sess.Title)
	}

	if err := store.RenameSession(ctx, sess.ID, "Renamed"); err != nil {
		t.Fatalf("RenameSession: %v", err)
	}
	got, err = store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Renamed" {
		t.Errorf("expected renamed title, got %q", got.Title)
	}

	list, err := store.ListSessions(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 session, got %d", len(list))
	}

	if err := store.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := store.GetSession(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestStore_CreateSession_DefaultTitle(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	sess, err := store.CreateSession(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Title) == 0 || sess.Title[:4] != "Chat" {
		t.Errorf("expected timestamp default title, got %q", sess.Title)
	}
}

func TestStore_AppendAndGetMessages(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "tool roundtrip")
	if err != nil {
		t.Fatal(err)
	}

	args := json.RawMessage(`{"query":"docker"}`)
	err = store.AppendMessages(ctx, sess.ID, []Message{
		{Role: RoleUser, Content: "What runs containers?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call-1", Name: "search_kb", Arguments: args}}},
		{Role: RoleTool, Content: "=== docker.txt ===\nDocker runs containers", ToolCallID: "call-1", ToolName: "search_kb"},
		{Role: RoleAssistant, Content: "Docker runs containers."},
	})
	if err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	msgs, err := store.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	for i, msg := range msgs {
		if msg.SequenceNumber != int32(i) {
			t.Errorf("message %d has sequence %d", i, msg.SequenceNumber)
		}
		if msg.Status != StatusCompleted {
			t.Errorf("message %d status %q", i, msg.Status)
		}
	}

	if msgs[1].Role != RoleAssistant || len(msgs[1].ToolCalls) != 1 {
		t.Fatalf("assistant tool-call message malformed: %+v", msgs[1])
	}
	if msgs[1].ToolCalls[0].ID != "call-1" || msgs[1].ToolCalls[0].Name != "search_kb" {
		t.Errorf("tool call not preserved: %+v", msgs[1].ToolCalls[0])
	}
	if msgs[2].ToolCallID != "call-1" {
		t.Errorf("tool result not paired: %+v", msgs[2])
	}
}

func TestStore_AppendMessages_GaplessUnderConcurrency(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "concurrent")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.AppendMessages(ctx, sess.ID, []Message{
				{Role: RoleUser, Content: "ping"},
				{Role: RoleAssistant, Content: "pong"},
			})
		}()
	}
	wg.Wait()

	msgs, err := store.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 20 {
		t.Fatalf("expected 20 messages, got %d", len(msgs))
	}
	for i, msg := range msgs {
		if msg.SequenceNumber != int32(i) {
			t.Fatalf("sequence gap at %d: got %d", i, msg.SequenceNumber)
		}
	}
}

func TestStore_DeleteCascadesMessages(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "cascade")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AppendMessages(ctx, sess.ID, []Message{{Role: RoleUser, Content: "hi"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = $1`, sess.ID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected cascade delete, %d messages remain", count)
	}
}

func TestStore_AppendToMissingSession(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	err := store.AppendMessages(context.Background(), uuid.New(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
