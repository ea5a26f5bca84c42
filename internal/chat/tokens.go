package chat

import (
	"slices"
	"unicode/utf8"

	"github.com/koopa0/sage/internal/session"
)

// TokenBudget bounds the history sent to the model.
type TokenBudget struct {
	// MaxHistoryTokens is the estimated token budget for history.
	MaxHistoryTokens int

	// MaxHistoryMessages caps the message count regardless of size.
	MaxHistoryMessages int
}

// DefaultTokenBudget returns conservative defaults.
func DefaultTokenBudget() TokenBudget {
	return TokenBudget{
		MaxHistoryTokens:   8000,
		MaxHistoryMessages: 100,
	}
}

// estimateTokens provides a rough token count. Rune count divided by
// 2 is a conservative estimate for both English (~4 chars/token) and
// CJK (~1.5 chars/token) text.
func estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 2
}

// truncate drops oldest messages until the history fits both the
// token budget and the message cap. The suffix from the latest user
// message onward carries the current turn (the question plus any tool
// exchange that followed it) and is always kept, even when it alone
// exceeds the budget.
func (b TokenBudget) truncate(history []session.Message) []session.Message {
	if len(history) == 0 {
		return history
	}

	maxMessages := b.MaxHistoryMessages
	if maxMessages <= 0 {
		maxMessages = len(history)
	}

	floor := len(history) - 1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == session.RoleUser {
			floor = i
			break
		}
	}

	remaining := b.MaxHistoryTokens
	kept := make([]session.Message, 0, min(len(history), maxMessages))
	for i := len(history) - 1; i >= 0; i-- {
		cost := estimateTokens(history[i].Content)
		if i < floor && (remaining < cost || len(kept) >= maxMessages) {
			break
		}
		kept = append(kept, history[i])
		remaining -= cost
	}
	slices.Reverse(kept)
	return kept
}
