package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/koopa0/sage/internal/index"
	"github.com/koopa0/sage/internal/log"
)

// fakeSearcher records the last query and returns canned hits.
type fakeSearcher struct {
	hits      []index.Hit
	lastQuery string
	lastK     int
}

func (f *fakeSearcher) Search(query string, k int) []index.Hit {
	f.lastQuery = query
	f.lastK = k
	return f.hits
}

func TestKB_SearchFormatsResults(t *testing.T) {
	searcher := &fakeSearcher{hits: []index.Hit{
		{DocID: "docker", Name: "docker.txt", Content: "Docker runs containers\n", Score: 0.9},
		{DocID: "python", Name: "python.txt", Content: "Python is a language", Score: 0.4},
	}}

	kb, err := NewKB(searcher, 0, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	out, err := kb.Search(context.Background(), SearchKBInput{Query: "docker"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	if !strings.Contains(out, "=== docker.txt ===\nDocker runs containers") {
		t.Errorf("missing first section:\n%s", out)
	}
	if !strings.Contains(out, "=== python.txt ===\nPython is a language") {
		t.Errorf("missing second section:\n%s", out)
	}
	if searcher.lastQuery != "docker" {
		t.Errorf("query not forwarded, got %q", searcher.lastQuery)
	}
	if searcher.lastK != DefaultSearchTopK {
		t.Errorf("expected default topK %d, got %d", DefaultSearchTopK, searcher.lastK)
	}
}

func TestKB_SearchEmptyResult(t *testing.T) {
	kb, err := NewKB(&fakeSearcher{}, 0, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	out, err := kb.Search(context.Background(), SearchKBInput{Query: "nothing matches"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if !strings.Contains(out, "No relevant documents") {
		t.Errorf("expected empty-result text, got %q", out)
	}
}

func TestKB_SearchClampsTopK(t *testing.T) {
	searcher := &fakeSearcher{}
	kb, err := NewKB(searcher, 5, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := kb.Search(context.Background(), SearchKBInput{Query: "q", TopK: 50}); err != nil {
		t.Fatal(err)
	}
	if searcher.lastK != MaxSearchTopK {
		t.Errorf("expected clamp to %d, got %d", MaxSearchTopK, searcher.lastK)
	}

	if _, err := kb.Search(context.Background(), SearchKBInput{Query: "q", TopK: -1}); err != nil {
		t.Fatal(err)
	}
	if searcher.lastK != 5 {
		t.Errorf("expected configured default 5, got %d", searcher.lastK)
	}
}

func TestNewKB_RequiresSearcher(t *testing.T) {
	if _, err := NewKB(nil, 0, log.NewNop()); err == nil {
		t.Fatal("expected error for nil searcher")
	}
}

func TestClampTopK(t *testing.T) {
	cases := []struct {
		topK, def, want int
	}{
		{0, 3, 3},
		{-2, 3, 3},
		{1, 3, 1},
		{10, 3, 10},
		{11, 3, 10},
	}
	for _, tc := range cases {
		if got := clampTopK(tc.topK, tc.def); got != tc.want {
			t.Errorf("clampTopK(%d, %d) = %d, want %d", tc.topK, tc.def, got, tc.want)
		}
	}
}
