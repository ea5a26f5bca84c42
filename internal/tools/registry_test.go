package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/sage/internal/index"
	"github.com/koopa0/sage/internal/log"
)

type echoInput struct {
	Text string `json:"text" jsonschema_description:"Text to echo back"`
}

func newEchoTool(t *testing.T) *Tool {
	t.Helper()
	tool, err := New("echo", "Echoes the input text.", func(_ context.Context, in echoInput) (string, error) {
		return in.Text, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return tool
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry(nil, log.NewNop())
	if err := r.Register(newEchoTool(t)); err != nil {
		t.Fatal(err)
	}

	out, err := r.Dispatch(context.Background(), "echo", json.RawMessage(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if out != "hello" {
		t.Errorf("expected %q, got %q", "hello", out)
	}
}

func TestRegistry_DispatchUnknownTool(t *testing.T) {
	r := NewRegistry(nil, log.NewNop())

	_, err := r.Dispatch(context.Background(), "missing", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRegistry_DispatchInvalidArguments(t *testing.T) {
	r := NewRegistry(nil, log.NewNop())
	if err := r.Register(newEchoTool(t)); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		args json.RawMessage
	}{
		{"missing required field", json.RawMessage(`{}`)},
		{"wrong type", json.RawMessage(`{"text": 42}`)},
		{"not json", json.RawMessage(`{{`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Dispatch(context.Background(), "echo", tc.args)
			if !errors.Is(err, ErrInvalidArguments) {
				t.Fatalf("expected ErrInvalidArguments, got %v", err)
			}
		})
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry(nil, log.NewNop())
	if err := r.Register(newEchoTool(t)); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(newEchoTool(t)); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegisterKB(t *testing.T) {
	g := genkit.Init(context.Background())
	r := NewRegistry(g, log.NewNop())

	kb, err := NewKB(&fakeSearcher{hits: []index.Hit{
		{DocID: "docker", Name: "docker.txt", Content: "Docker runs containers", Score: 1},
	}}, 0, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := RegisterKB(g, r, kb); err != nil {
		t.Fatalf("RegisterKB() error: %v", err)
	}

	if _, ok := r.Get(SearchKBName); !ok {
		t.Fatal("search_kb not in registry")
	}
	if refs := r.Refs(); len(refs) != 1 {
		t.Fatalf("expected 1 Genkit ref, got %d", len(refs))
	}

	out, err := r.Dispatch(context.Background(), SearchKBName, json.RawMessage(`{"query":"docker"}`))
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if out == "" {
		t.Error("expected rendered search result")
	}
}
