package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/koopa0/sage/internal/chat"
	"github.com/koopa0/sage/internal/index"
	"github.com/koopa0/sage/internal/knowledge"
	"github.com/koopa0/sage/internal/log"
	"github.com/koopa0/sage/internal/session"
)

// fakeRunner scripts the orchestrator for handler tests.
type fakeRunner struct {
	result *chat.Result
	chunks []string
	err    error

	gotSessionID uuid.UUID
	gotInput     string
}

func (f *fakeRunner) ExecuteStream(ctx context.Context, sessionID uuid.UUID, input string, callback chat.StreamCallback) (*chat.Result, error) {
	f.gotSessionID = sessionID
	f.gotInput = input
	for _, c := range f.chunks {
		if callback != nil {
			if err := callback(ctx, c); err != nil {
				return nil, err
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeStore is an in-memory SessionStore.
type fakeStore struct {
	sessions map[uuid.UUID]*session.Session
	messages map[uuid.UUID][]session.Message
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[uuid.UUID]*session.Session),
		messages: make(map[uuid.UUID][]session.Message),
	}
}

func (s *fakeStore) CreateSession(_ context.Context, title string) (*session.Session, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	sess := &session.Session{ID: uuid.New(), Title: title}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *fakeStore) GetSession(_ context.Context, id uuid.UUID) (*session.Session, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess, nil
}

func (s *fakeStore) ListSessions(_ context.Context, limit, offset int32) ([]*session.Session, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []*session.Session
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (s *fakeStore) RenameSession(_ context.Context, id uuid.UUID, title string) error {
	sess, ok := s.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	sess.Title = title
	return nil
}

func (s *fakeStore) DeleteSession(_ context.Context, id uuid.UUID) error {
	if _, ok := s.sessions[id]; !ok {
		return session.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *fakeStore) GetMessages(_ context.Context, id uuid.UUID) ([]session.Message, error) {
	if _, ok := s.sessions[id]; !ok {
		return nil, session.ErrSessionNotFound
	}
	return s.messages[id], nil
}

// fakeIndex wraps a real index over fixed documents.
type fakeIndex struct {
	idx       *index.Index
	reloadErr error
	reloads   int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{idx: index.Build([]knowledge.Document{
		{ID: "docker", Name: "docker.txt", Content: "Docker runs containers in isolated environments"},
		{ID: "golang", Name: "golang.txt", Content: "Go is a statically typed compiled language"},
	})}
}

func (f *fakeIndex) Search(query string, k int) []index.Hit { return f.idx.Search(query, k) }
func (f *fakeIndex) Snapshot() *index.Index                 { return f.idx }

func (f *fakeIndex) Reload() error {
	if f.reloadErr != nil {
		return f.reloadErr
	}
	f.reloads++
	return nil
}

// newTestServer builds a server over the given fakes with rate
// limiting effectively disabled.
func newTestServer(t *testing.T, runner ChatRunner, store SessionStore, idx KnowledgeIndex) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Logger:       log.NewNop(),
		Agent:        runner,
		SessionStore: store,
		Index:        idx,
		RateRPS:      1000,
		RateBurst:    1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

func TestNewServerRequiredDeps(t *testing.T) {
	runner := &fakeRunner{}
	store := newFakeStore()
	idx := newFakeIndex()

	tests := []struct {
		name string
		cfg  ServerConfig
	}{
		{"missing agent", ServerConfig{SessionStore: store, Index: idx}},
		{"missing store", ServerConfig{Agent: runner, Index: idx}},
		{"missing index", ServerConfig{Agent: runner, SessionStore: store}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewServer(tt.cfg); err == nil {
				t.Error("NewServer() expected error")
			}
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, newFakeStore(), newFakeIndex())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /ready = %d (nil pool should be ready)", rec.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := requestIDFromContext(r.Context()); !ok || id == "" {
			t.Error("request ID missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	// Generated when absent.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(rec.Header().Get("X-Request-ID")); err != nil {
		t.Errorf("X-Request-ID %q is not a UUID", rec.Header().Get("X-Request-ID"))
	}

	// Valid incoming ID is reused.
	want := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", want)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != want {
		t.Errorf("X-Request-ID = %q, want %q", got, want)
	}

	// Invalid incoming ID is replaced.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "not-a-uuid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got == "not-a-uuid" {
		t.Error("invalid X-Request-ID should not be reused")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(log.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body.Error.Code != "internal_error" {
		t.Errorf("error code = %q", body.Error.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(1, 3)

	allowed := 0
	for range 10 {
		if rl.allow("192.0.2.1") {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("allowed %d requests, want burst of 3", allowed)
	}

	// A different IP has its own bucket.
	if !rl.allow("192.0.2.2") {
		t.Error("fresh IP should be allowed")
	}
}

func TestRateLimitMiddlewareResponds429(t *testing.T) {
	rl := newRateLimiter(0.001, 1)
	handler := rateLimitMiddleware(rl, log.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.9:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i == 0 && rec.Code != http.StatusOK {
			t.Fatalf("first request = %d, want 200", rec.Code)
		}
		if i > 0 {
			if rec.Code != http.StatusTooManyRequests {
				t.Errorf("request %d = %d, want 429", i, rec.Code)
			}
			if rec.Header().Get("Retry-After") == "" {
				t.Error("missing Retry-After header")
			}
		}
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, newFakeStore(), newFakeIndex())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// seedSessions inserts n sessions into the fake store.
func seedSessions(s *fakeStore, n int) []*session.Session {
	var out []*session.Session
	for i := range n {
		sess := &session.Session{ID: uuid.New(), Title: fmt.Sprintf("Chat %d", i)}
		s.sessions[sess.ID] = sess
		out = append(out, sess)
	}
	return out
}
