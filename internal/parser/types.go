package parser

import (
	"time"

	"github.com/felo/eml-reply/internal/reply"
)

// ParsedEmail represents a decoded email together with its reply fragments
type ParsedEmail struct {
	MessageID   string
	InReplyTo   string
	References  []string
	Subject     string
	Sender      string
	SenderName  string
	Recipients  []string
	CC          []string
	Date        time.Time
	BodyText    string
	BodyHTML    string
	Attachments []ParsedAttachment

	// Filled from the body by the reply parser
	Locale    reply.Locale
	Reply     string
	Fragments []Fragment
}

// ParsedAttachment describes an attachment (metadata only)
type ParsedAttachment struct {
	Filename    string
	ContentType string
	Size        int64
}

// Fragment is a flattened reply.Fragment, suitable for storage and JSON
type Fragment struct {
	Position  int    `json:"position"`
	Content   string `json:"content"`
	Quoted    bool   `json:"quoted"`
	Headers   bool   `json:"headers"`
	Signature bool   `json:"signature"`
	Hidden    bool   `json:"hidden"`
}

// Fragments flattens the fragments of a parsed message in document order
func Fragments(m *reply.Message) []Fragment {
	out := make([]Fragment, len(m.Fragments))
	for i, f := range m.Fragments {
		out[i] = Fragment{
			Position:  i,
			Content:   f.Content(),
			Quoted:    f.Quoted(),
			Headers:   f.Headers(),
			Signature: f.Signature(),
			Hidden:    f.Hidden(),
		}
	}
	return out
}
