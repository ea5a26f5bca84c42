package llm

import (
	"encoding/json"

	"github.com/firebase/genkit/go/ai"

	"github.com/koopa0/sage/internal/session"
)

// toModelMessages converts stored history into the Genkit message
// form. Assistant tool calls become tool-request parts; tool results
// become tool-response parts carrying the original call ref so the
// provider can pair them.
func toModelMessages(history []session.Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case session.RoleUser:
			out = append(out, &ai.Message{
				Role:    ai.RoleUser,
				Content: []*ai.Part{ai.NewTextPart(msg.Content)},
			})

		case session.RoleAssistant:
			var parts []*ai.Part
			if msg.Content != "" {
				parts = append(parts, ai.NewTextPart(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, ai.NewToolRequestPart(&ai.ToolRequest{
					Name:  call.Name,
					Ref:   call.ID,
					Input: decodeArgs(call.Arguments),
				}))
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, &ai.Message{Role: ai.RoleModel, Content: parts})

		case session.RoleTool:
			out = append(out, &ai.Message{
				Role: ai.RoleTool,
				Content: []*ai.Part{ai.NewToolResponsePart(&ai.ToolResponse{
					Name:   msg.ToolName,
					Ref:    msg.ToolCallID,
					Output: msg.Content,
				})},
			})
		}
	}
	return out
}

// decodeArgs turns stored JSON arguments back into the generic form
// providers expect. Invalid JSON degrades to an empty object rather
// than failing the whole turn.
func decodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{}
	}
	return v
}
