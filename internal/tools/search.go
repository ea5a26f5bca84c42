package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/sage/internal/index"
	"github.com/koopa0/sage/internal/log"
)

// SearchKBName is the tool name the model uses to query the
// knowledge base.
const SearchKBName = "search_kb"

// TopK bounds for knowledge search.
const (
	DefaultSearchTopK = 3
	MaxSearchTopK     = 10
)

const searchKBDescription = "Search the knowledge base for documents relevant to a query. " +
	"Returns the full content of the best-matching documents. " +
	"Use this before answering any question that might be covered by the knowledge base. " +
	"Default topK: 3. Maximum topK: 10."

// SearchKBInput defines input for the search_kb tool.
type SearchKBInput struct {
	Query string `json:"query" jsonschema_description:"The search query string"`
	TopK  int    `json:"topK,omitempty" jsonschema_description:"Maximum results to return (1-10)"`
}

// Searcher is the slice of the index the tool needs.
type Searcher interface {
	Search(query string, k int) []index.Hit
}

// KB wraps the lexical index as a model-facing tool.
type KB struct {
	searcher Searcher
	topK     int
	logger   log.Logger
}

// NewKB creates the knowledge search tool backend. defaultTopK <= 0
// falls back to DefaultSearchTopK.
func NewKB(searcher Searcher, defaultTopK int, logger log.Logger) (*KB, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultSearchTopK
	}
	return &KB{
		searcher: searcher,
		topK:     min(defaultTopK, MaxSearchTopK),
		logger:   logger.With("component", "search_kb"),
	}, nil
}

// Search runs the query and renders results as model-readable text.
// An empty result is reported as text, not an error, so the model can
// tell the user nothing matched.
func (k *KB) Search(ctx context.Context, input SearchKBInput) (string, error) {
	topK := clampTopK(input.TopK, k.topK)

	hits := k.searcher.Search(input.Query, topK)
	k.logger.Debug("knowledge search", "query", input.Query, "topK", topK, "hits", len(hits))

	if len(hits) == 0 {
		return "No relevant documents found in the knowledge base.", nil
	}

	sections := make([]string, len(hits))
	for i, hit := range hits {
		sections[i] = fmt.Sprintf("=== %s ===\n%s", hit.Name, strings.TrimSpace(hit.Content))
	}
	return strings.Join(sections, "\n\n"), nil
}

// RegisterKB registers search_kb in both the dispatch registry and
// Genkit. The Genkit definition carries the schema to the model; the
// registry copy is what the orchestrator actually executes.
func RegisterKB(g *genkit.Genkit, r *Registry, kb *KB) (ai.Tool, error) {
	t, err := New(SearchKBName, searchKBDescription, kb.Search)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", SearchKBName, err)
	}
	if err := r.Register(t); err != nil {
		return nil, err
	}

	gt := genkit.DefineTool(g, SearchKBName, searchKBDescription,
		func(ctx *ai.ToolContext, input SearchKBInput) (string, error) {
			return kb.Search(ctx, input)
		})
	return gt, nil
}

// clampTopK normalizes a requested topK into [1, MaxSearchTopK],
// using def when unset or negative.
func clampTopK(topK, def int) int {
	if topK <= 0 {
		return def
	}
	if topK > MaxSearchTopK {
		return MaxSearchTopK
	}
	return topK
}
