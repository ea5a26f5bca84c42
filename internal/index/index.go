// Package index implements the lexical retrieval layer: a TF-IDF
// vector space over the knowledge corpus with cosine ranking.
//
// An Index is an immutable snapshot built from a fixed document set.
// Reloading the corpus builds a fresh Index and swaps it in atomically
// via Manager, so concurrent searches always see a consistent view.
package index

import (
	"math"
	"sort"

	"github.com/koopa0/sage/internal/knowledge"
)

// Hit is one ranked search result.
type Hit struct {
	DocID   string  `json:"doc_id"`
	Name    string  `json:"name"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type posting struct {
	doc    int // position in docs
	weight float64
}

// Index is an immutable TF-IDF index over a document set.
type Index struct {
	docs     []knowledge.Document
	idf      map[string]float64
	postings map[string][]posting
}

// Build constructs an index from the given documents. Document order
// does not affect ranking; ties are broken by document ID.
func Build(docs []knowledge.Document) *Index {
	idx := &Index{
		docs:     docs,
		idf:      make(map[string]float64),
		postings: make(map[string][]posting),
	}

	counts := make([]map[string]int, len(docs))
	df := make(map[string]int)
	for i, doc := range docs {
		counts[i] = termCounts(Tokenize(doc.Content))
		for term := range counts[i] {
			df[term]++
		}
	}

	// Smoothed idf keeps every known term positive even when it
	// appears in all documents.
	n := float64(len(docs))
	for term, freq := range df {
		idx.idf[term] = math.Log((1+n)/(1+float64(freq))) + 1
	}

	for i := range docs {
		var norm float64
		weights := make(map[string]float64, len(counts[i]))
		for term, tf := range counts[i] {
			w := float64(tf) * idx.idf[term]
			weights[term] = w
			norm += w * w
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for term, w := range weights {
			idx.postings[term] = append(idx.postings[term], posting{doc: i, weight: w / norm})
		}
	}

	return idx
}

// Size returns the number of indexed documents.
func (idx *Index) Size() int {
	return len(idx.docs)
}

// Search ranks documents against the query by cosine similarity and
// returns at most k hits, highest score first, ties broken by
// ascending document ID. Queries whose terms are all unknown to the
// corpus produce an empty result, as does k <= 0.
func (idx *Index) Search(query string, k int) []Hit {
	if k <= 0 || len(idx.docs) == 0 {
		return nil
	}

	qCounts := termCounts(Tokenize(query))
	var qNorm float64
	qWeights := make(map[string]float64, len(qCounts))
	for term, tf := range qCounts {
		idf, ok := idx.idf[term]
		if !ok {
			continue
		}
		w := float64(tf) * idf
		qWeights[term] = w
		qNorm += w * w
	}
	if qNorm == 0 {
		return nil
	}
	qNorm = math.Sqrt(qNorm)

	scores := make(map[int]float64)
	for term, qw := range qWeights {
		for _, p := range idx.postings[term] {
			scores[p.doc] += (qw / qNorm) * p.weight
		}
	}

	hits := make([]Hit, 0, len(scores))
	for doc, score := range scores {
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{
			DocID:   idx.docs[doc].ID,
			Name:    idx.docs[doc].Name,
			Content: idx.docs[doc].Content,
			Score:   score,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
