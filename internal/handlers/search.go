package handlers

import (
	"net/http"

	"github.com/felo/eml-reply/internal/db"
)

// SearchResponse lists matches in relevance order
type SearchResponse struct {
	Query   string            `json:"query"`
	Results []MessageResponse `json:"results"`
}

// Search handles full-text search over subjects, senders and replies.
// Snippets carry <mark> tags around the matched terms.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := db.SearchOptions{
		Query:    q.Get("q"),
		Sender:   q.Get("sender"),
		Locale:   q.Get("locale"),
		DateFrom: q.Get("from"),
		DateTo:   q.Get("to"),
		Limit:    intParam(r, "limit", 50, 500),
		Offset:   intParam(r, "offset", 0, 0),
	}

	results, err := h.db.SearchMessagesWithFilters(opts)
	if err != nil {
		h.serverError(w, r, "Search failed", err)
		return
	}

	resp := SearchResponse{
		Query:   opts.Query,
		Results: make([]MessageResponse, 0, len(results)),
	}
	for _, result := range results {
		m := toMessageResponse(&result.Message)
		m.Snippet = result.Snippet
		resp.Results = append(resp.Results, m)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Senders lists sender addresses for autocomplete, most frequent first
func (h *Handlers) Senders(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 100, 1000)

	senders, err := h.db.GetUniqueSenders(r.URL.Query().Get("q"), limit)
	if err != nil {
		h.serverError(w, r, "Failed to load senders", err)
		return
	}

	h.writeJSON(w, http.StatusOK, senders)
}
