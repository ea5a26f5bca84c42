package index

import (
	"reflect"
	"testing"

	"github.com/koopa0/sage/internal/knowledge"
)

func doc(id, content string) knowledge.Document {
	return knowledge.Document{ID: id, Name: id + ".txt", Content: content}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Docker, runs CONTAINERS! v2")
	want := []string{"docker", "runs", "containers", "v2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %v, want %v", got, want)
	}
}

func TestTokenize_Empty(t *testing.T) {
	if got := Tokenize("  ... !!! "); len(got) != 0 {
		t.Errorf("expected no tokens, got %v", got)
	}
}

func TestSearch_RanksMatchingDocumentFirst(t *testing.T) {
	idx := Build([]knowledge.Document{
		doc("docker", "Docker runs containers"),
		doc("python", "Python is a language"),
	})

	hits := idx.Search("docker", 5)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].DocID != "docker" {
		t.Errorf("expected docker ranked first, got %s", hits[0].DocID)
	}
	if hits[0].Score <= 0 {
		t.Errorf("expected positive score, got %f", hits[0].Score)
	}
}

func TestSearch_SharedTermRanksBoth(t *testing.T) {
	idx := Build([]knowledge.Document{
		doc("docker", "Docker runs containers"),
		doc("python", "Python is a language"),
	})

	hits := idx.Search("python language docker", 5)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].DocID != "python" {
		t.Errorf("expected python first (two matching terms), got %s", hits[0].DocID)
	}
}

func TestSearch_UnknownTermsYieldEmpty(t *testing.T) {
	idx := Build([]knowledge.Document{doc("docker", "Docker runs containers")})

	if hits := idx.Search("kubernetes helm", 5); len(hits) != 0 {
		t.Errorf("expected empty result for unknown terms, got %v", hits)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	docs := []knowledge.Document{
		doc("a", "storage engine writes pages to disk"),
		doc("b", "the engine schedules writes in batches"),
		doc("c", "pages are cached before disk flush"),
	}
	idx := Build(docs)

	first := idx.Search("engine writes disk", 3)
	for range 10 {
		if got := idx.Search("engine writes disk", 3); !reflect.DeepEqual(got, first) {
			t.Fatalf("non-deterministic result: %v vs %v", got, first)
		}
	}

	// Document input order must not affect ranking.
	reversed := Build([]knowledge.Document{docs[2], docs[1], docs[0]})
	if got := reversed.Search("engine writes disk", 3); !reflect.DeepEqual(got, first) {
		t.Errorf("input order changed ranking: %v vs %v", got, first)
	}
}

func TestSearch_TieBreakByDocID(t *testing.T) {
	idx := Build([]knowledge.Document{
		doc("zebra", "identical content here"),
		doc("apple", "identical content here"),
	})

	hits := idx.Search("identical content", 2)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].DocID != "apple" || hits[1].DocID != "zebra" {
		t.Errorf("expected tie broken by ascending doc ID, got [%s %s]", hits[0].DocID, hits[1].DocID)
	}
}

func TestSearch_KLimitsResults(t *testing.T) {
	idx := Build([]knowledge.Document{
		doc("a", "common term alpha"),
		doc("b", "common term beta"),
		doc("c", "common term gamma"),
	})

	if hits := idx.Search("common term", 2); len(hits) != 2 {
		t.Errorf("expected 2 hits with k=2, got %d", len(hits))
	}
	if hits := idx.Search("common term", 0); len(hits) != 0 {
		t.Errorf("expected no hits with k=0, got %d", len(hits))
	}
	if hits := idx.Search("common term", 100); len(hits) != 3 {
		t.Errorf("expected all 3 hits with large k, got %d", len(hits))
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx := Build(nil)
	if hits := idx.Search("anything", 5); len(hits) != 0 {
		t.Errorf("expected empty result on empty index, got %v", hits)
	}
}
