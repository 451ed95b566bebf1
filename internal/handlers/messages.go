package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/felo/eml-reply/internal/db"
	"github.com/felo/eml-reply/internal/indexer"
	"github.com/felo/eml-reply/internal/parser"
	"github.com/felo/eml-reply/internal/scanner"
)

// MessageResponse is the JSON form of an indexed message
type MessageResponse struct {
	ID              int64      `json:"id"`
	Source          string     `json:"source"`
	MessageID       string     `json:"message_id,omitempty"`
	InReplyTo       string     `json:"in_reply_to,omitempty"`
	Subject         string     `json:"subject"`
	Sender          string     `json:"sender"`
	SenderName      string     `json:"sender_name,omitempty"`
	Recipients      string     `json:"recipients,omitempty"`
	Date            *time.Time `json:"date,omitempty"`
	Locale          string     `json:"locale"`
	Reply           string     `json:"reply"`
	FragmentCount   int        `json:"fragment_count"`
	AttachmentCount int        `json:"attachment_count"`
	Snippet         string     `json:"snippet,omitempty"`
}

func toMessageResponse(m *db.Message) MessageResponse {
	resp := MessageResponse{
		ID:              m.ID,
		Source:          m.Source,
		MessageID:       m.MessageID,
		InReplyTo:       m.InReplyTo,
		Subject:         m.Subject,
		Sender:          m.Sender,
		SenderName:      m.SenderName,
		Recipients:      m.Recipients,
		Locale:          m.Locale,
		Reply:           m.Reply,
		FragmentCount:   m.FragmentCount,
		AttachmentCount: m.AttachmentCount,
	}
	if m.Date.Valid {
		d := m.Date.Time
		resp.Date = &d
	}
	return resp
}

func toFragments(in []*db.Fragment) []parser.Fragment {
	out := make([]parser.Fragment, len(in))
	for i, f := range in {
		out[i] = parser.Fragment{
			Position:  f.Position,
			Content:   f.Content,
			Quoted:    f.Quoted,
			Headers:   f.Headers,
			Signature: f.Signature,
			Hidden:    f.Hidden,
		}
	}
	return out
}

// MessageListResponse is one page of messages
type MessageListResponse struct {
	Messages []MessageResponse `json:"messages"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// MessageDetailResponse is a message with its stored fragments
type MessageDetailResponse struct {
	MessageResponse
	Fragments []parser.Fragment `json:"fragments"`
}

// ListMessages returns the most recent messages
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 50, 500)
	offset := intParam(r, "offset", 0, 0)

	total, err := h.db.CountMessages()
	if err != nil {
		h.serverError(w, r, "Failed to count messages", err)
		return
	}

	messages, err := h.db.ListMessages(limit, offset)
	if err != nil {
		h.serverError(w, r, "Failed to load messages", err)
		return
	}

	resp := MessageListResponse{
		Messages: make([]MessageResponse, 0, len(messages)),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, toMessageResponse(m))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetMessage returns a single message with its fragments
func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid message ID")
		return
	}

	m, err := h.db.GetMessageByID(id)
	if err != nil {
		h.serverError(w, r, "Failed to load message", err)
		return
	}
	if m == nil {
		h.writeError(w, http.StatusNotFound, "message not found")
		return
	}

	fragments, err := h.db.GetFragments(id)
	if err != nil {
		h.serverError(w, r, "Failed to load fragments", err)
		return
	}

	h.writeJSON(w, http.StatusOK, MessageDetailResponse{
		MessageResponse: toMessageResponse(m),
		Fragments:       toFragments(fragments),
	})
}

// Reparse re-reads the source of a stored message with another locale.
// With save=true the new result replaces the stored one.
func (h *Handlers) Reparse(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid message ID")
		return
	}

	rp, err := h.parserFor(r.URL.Query().Get("locale"))
	if err != nil {
		h.serverError(w, r, "Failed to build parser", err)
		return
	}

	m, err := h.db.GetMessageByID(id)
	if err != nil {
		h.serverError(w, r, "Failed to load message", err)
		return
	}
	if m == nil {
		h.writeError(w, http.StatusNotFound, "message not found")
		return
	}

	path, member := scanner.SplitSource(m.Source)
	absPath, err := h.scanner.Resolve(path)
	if errors.Is(err, scanner.ErrPathTraversal) {
		h.logger.WithField("source", m.Source).Warn("Stored source escapes the emails directory")
		h.writeError(w, http.StatusBadRequest, "invalid message source")
		return
	}
	if err != nil {
		h.serverError(w, r, "Failed to resolve source", err)
		return
	}

	var parsed *parser.ParsedEmail
	if member >= 0 {
		parsed, err = parser.ParseMboxMember(absPath, member, rp)
	} else {
		parsed, err = parser.ParseEMLFile(absPath, rp)
	}
	if err != nil {
		h.logger.WithError(err).WithField("source", m.Source).Warn("Failed to re-read message source")
		h.writeError(w, http.StatusGone, "message source is no longer readable")
		return
	}

	if r.URL.Query().Get("save") == "true" {
		_, fragments := indexer.Record(m.Source, parsed)
		if err := h.db.ReplaceReply(id, string(parsed.Locale), parsed.Reply, fragments); err != nil {
			h.serverError(w, r, "Failed to store reparsed message", err)
			return
		}
		h.logger.WithFields(logrus.Fields{
			"id":     id,
			"locale": parsed.Locale,
		}).Info("Message reparsed")
	}

	h.writeJSON(w, http.StatusOK, ParseResponse{
		Locale:    string(parsed.Locale),
		Reply:     parsed.Reply,
		Fragments: nonNil(parsed.Fragments),
		Subject:   parsed.Subject,
		Sender:    parsed.Sender,
	})
}

// DeleteMessage removes a message from the index; its source file is untouched
func (h *Handlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid message ID")
		return
	}

	err := h.db.DeleteMessage(id)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "Failed to delete message", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
