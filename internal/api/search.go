package api

import (
	"net/http"

	"github.com/koopa0/sage/internal/index"
	"github.com/koopa0/sage/internal/log"
)

const (
	defaultSearchK = 3
	maxSearchK     = 10
)

// KnowledgeIndex is the slice of the index manager the handlers need.
type KnowledgeIndex interface {
	Search(query string, k int) []index.Hit
	Reload() error
	Snapshot() *index.Index
}

// searchHandler serves direct knowledge-base queries and reloads.
type searchHandler struct {
	idx    KnowledgeIndex
	logger log.Logger
}

type searchResponse struct {
	Query string      `json:"query"`
	Hits  []index.Hit `json:"hits"`
}

type reloadResponse struct {
	Status    string `json:"status"`
	Documents int    `json:"documents"`
}

// GET /api/v1/search?q=...&k=...
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query parameter q is required", h.logger)
		return
	}

	k := parseQueryInt(r, "k", defaultSearchK)
	if k < 1 || k > maxSearchK {
		k = defaultSearchK
	}

	hits := h.idx.Search(query, k)
	if hits == nil {
		hits = []index.Hit{}
	}

	writeJSON(w, http.StatusOK, searchResponse{Query: query, Hits: hits}, h.logger)
}

// POST /api/v1/knowledge/reload
//
// Rebuilds the index from the knowledge directory. On failure the
// previous index stays live and the error is reported.
func (h *searchHandler) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.idx.Reload(); err != nil {
		h.logger.Error("reloading knowledge index", "error", err)
		writeError(w, http.StatusInternalServerError, "reload_failed", "failed to reload knowledge base", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, reloadResponse{
		Status:    "reloaded",
		Documents: h.idx.Snapshot().Size(),
	}, h.logger)
}
