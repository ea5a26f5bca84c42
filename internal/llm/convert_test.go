package llm

import (
	"encoding/json"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/koopa0/sage/internal/session"
)

func TestToModelMessages(t *testing.T) {
	history := []session.Message{
		{Role: session.RoleUser, Content: "What runs containers?"},
		{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{{
			ID:        "call-1",
			Name:      "search_kb",
			Arguments: json.RawMessage(`{"query":"docker"}`),
		}}},
		{Role: session.RoleTool, Content: "=== docker.txt ===\nDocker runs containers", ToolCallID: "call-1", ToolName: "search_kb"},
		{Role: session.RoleAssistant, Content: "Docker runs containers."},
	}

	msgs := toModelMessages(history)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}

	if msgs[0].Role != ai.RoleUser || msgs[0].Content[0].Text != "What runs containers?" {
		t.Errorf("user message malformed: %+v", msgs[0])
	}

	if msgs[1].Role != ai.RoleModel {
		t.Errorf("tool-call message should have model role, got %s", msgs[1].Role)
	}
	if !msgs[1].Content[0].IsToolRequest() {
		t.Fatalf("expected tool request part, got %+v", msgs[1].Content[0])
	}
	tr := msgs[1].Content[0].ToolRequest
	if tr.Name != "search_kb" || tr.Ref != "call-1" {
		t.Errorf("tool request fields: %+v", tr)
	}
	input, ok := tr.Input.(map[string]any)
	if !ok || input["query"] != "docker" {
		t.Errorf("tool request input: %+v", tr.Input)
	}

	if msgs[2].Role != ai.RoleTool || !msgs[2].Content[0].IsToolResponse() {
		t.Fatalf("expected tool response message, got %+v", msgs[2])
	}
	resp := msgs[2].Content[0].ToolResponse
	if resp.Ref != "call-1" || resp.Name != "search_kb" {
		t.Errorf("tool response fields: %+v", resp)
	}

	if msgs[3].Role != ai.RoleModel || msgs[3].Content[0].Text != "Docker runs containers." {
		t.Errorf("final assistant message malformed: %+v", msgs[3])
	}
}

func TestToModelMessages_SkipsEmptyAssistant(t *testing.T) {
	msgs := toModelMessages([]session.Message{
		{Role: session.RoleAssistant, Content: ""},
	})
	if len(msgs) != 0 {
		t.Errorf("expected empty assistant message dropped, got %d", len(msgs))
	}
}

func TestDecodeArgs(t *testing.T) {
	if v := decodeArgs(nil); len(v.(map[string]any)) != 0 {
		t.Errorf("nil args should decode to empty object, got %v", v)
	}
	if v := decodeArgs(json.RawMessage(`{"k":1}`)); v.(map[string]any)["k"] != float64(1) {
		t.Errorf("unexpected decode: %v", v)
	}
	if v := decodeArgs(json.RawMessage(`not json`)); len(v.(map[string]any)) != 0 {
		t.Errorf("invalid JSON should degrade to empty object, got %v", v)
	}
}
