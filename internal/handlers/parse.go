package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/felo/eml-reply/internal/parser"
)

const maxParseBody = 10 << 20

// ParseRequest is the body of POST /api/parse
type ParseRequest struct {
	Text   string `json:"text"`
	Locale string `json:"locale,omitempty"`
	// EML marks Text as a complete RFC 5322 message rather than a bare body
	EML bool `json:"eml,omitempty"`
}

// ParseResponse is the result of an ad-hoc parse
type ParseResponse struct {
	Locale    string            `json:"locale"`
	Reply     string            `json:"reply"`
	Fragments []parser.Fragment `json:"fragments"`
	Subject   string            `json:"subject,omitempty"`
	Sender    string            `json:"sender,omitempty"`
}

// Parse splits a posted body into fragments without storing anything
func (h *Handlers) Parse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxParseBody))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rp, err := h.parserFor(req.Locale)
	if err != nil {
		h.serverError(w, r, "Failed to build parser", err)
		return
	}

	if req.EML {
		parsed, err := parser.ParseEML(strings.NewReader(req.Text), rp)
		if err != nil {
			h.writeError(w, http.StatusUnprocessableEntity, "invalid message: "+err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, ParseResponse{
			Locale:    string(parsed.Locale),
			Reply:     parsed.Reply,
			Fragments: nonNil(parsed.Fragments),
			Subject:   parsed.Subject,
			Sender:    parsed.Sender,
		})
		return
	}

	msg := rp.Read(req.Text)
	h.writeJSON(w, http.StatusOK, ParseResponse{
		Locale:    string(msg.Locale),
		Reply:     msg.Reply(),
		Fragments: nonNil(parser.Fragments(msg)),
	})
}

// nonNil keeps empty fragment lists as [] in JSON
func nonNil(f []parser.Fragment) []parser.Fragment {
	if f == nil {
		return []parser.Fragment{}
	}
	return f
}
