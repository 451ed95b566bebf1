package parser

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"

	"github.com/felo/eml-reply/internal/reply"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// ParseEMLFile parses an .eml file and splits its body into reply fragments
func ParseEMLFile(filePath string, rp *reply.Parser) (*ParsedEmail, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return ParseEML(f, rp)
}

// ParseEML parses an email from a reader. A nil reply parser selects the
// default English one.
func ParseEML(r io.Reader, rp *reply.Parser) (*ParsedEmail, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}
	defer mr.Close()

	parsed := &ParsedEmail{}
	header := mr.Header

	parsed.MessageID = strings.TrimSpace(header.Get("Message-Id"))
	parsed.InReplyTo = strings.TrimSpace(header.Get("In-Reply-To"))
	if references := header.Get("References"); references != "" {
		parsed.References = strings.Fields(references)
	}

	parsed.Subject = decodeMIMEWord(header.Get("Subject"))

	if fromAddrs, err := header.AddressList("From"); err == nil && len(fromAddrs) > 0 {
		parsed.Sender = fromAddrs[0].Address
		parsed.SenderName = fromAddrs[0].Name
	}
	if toAddrs, err := header.AddressList("To"); err == nil {
		for _, addr := range toAddrs {
			parsed.Recipients = append(parsed.Recipients, addr.Address)
		}
	}
	if ccAddrs, err := header.AddressList("Cc"); err == nil {
		for _, addr := range ccAddrs {
			parsed.CC = append(parsed.CC, addr.Address)
		}
	}

	// Zero when missing or malformed
	if date, err := header.Date(); err == nil {
		parsed.Date = date
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read body: %w", err)
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				// Multipart/alternative bodies may carry several text parts; keep the first
				if parsed.BodyText == "" {
					parsed.BodyText = string(body)
				}
			case strings.HasPrefix(contentType, "text/html"):
				if parsed.BodyHTML == "" {
					parsed.BodyHTML = string(body)
				}
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			size, err := io.Copy(io.Discard, part.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read attachment: %w", err)
			}

			parsed.Attachments = append(parsed.Attachments, ParsedAttachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        size,
			})
		}
	}

	parsed.splitReply(rp)
	return parsed, nil
}

// Body returns the text the reply parser works on: the plain text part, or
// the HTML part converted to text when there is no plain text part.
func (e *ParsedEmail) Body() string {
	if strings.TrimSpace(e.BodyText) != "" {
		return e.BodyText
	}
	if e.BodyHTML != "" {
		return HTMLToText(e.BodyHTML)
	}
	return ""
}

func (e *ParsedEmail) splitReply(rp *reply.Parser) {
	var msg *reply.Message
	if rp != nil {
		msg = rp.Read(e.Body())
	} else {
		msg = reply.Read(e.Body())
	}

	e.Locale = msg.Locale
	e.Reply = msg.Reply()
	e.Fragments = Fragments(msg)
}

// decodeMIMEWord decodes MIME-encoded words (RFC 2047)
// Example: =?UTF-8?Q?Invitaci=C3=B3n?= -> Invitación
func decodeMIMEWord(s string) string {
	dec := &mime.WordDecoder{CharsetReader: charset.Reader}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}
