// Package reply splits plain-text email bodies into labeled fragments and
// extracts the visible reply.
package reply

import (
	"fmt"
	"strings"
)

// Message is a parsed email body
type Message struct {
	Locale    Locale
	Fragments []*Fragment
}

// Reply returns the visible reply text: every fragment that is neither hidden,
// quoted nor a signature, joined in document order.
func (m *Message) Reply() string {
	var parts []string
	for _, f := range m.Fragments {
		if f.hidden || f.quoted || f.signature {
			continue
		}
		parts = append(parts, f.Content())
	}
	return strings.Join(parts, "\n")
}

// Parser parses email bodies with one compiled pattern bundle. A Parser is
// immutable after construction and safe for concurrent use.
type Parser struct {
	locale   Locale
	patterns *patterns
	banner   Banner
}

type parserOptions struct {
	locale Locale
	spec   *PatternSpec
	banner Banner
}

// Option configures a Parser
type Option func(*parserOptions)

// WithLocale selects a built-in pattern bundle. Unsupported codes fall back to
// DefaultLocale.
func WithLocale(code string) Option {
	return func(o *parserOptions) {
		o.locale, _ = LookupLocale(code)
	}
}

// WithPatterns replaces the built-in bundle with caller-supplied patterns
func WithPatterns(spec PatternSpec) Option {
	return func(o *parserOptions) {
		o.spec = &spec
	}
}

// WithBanner strips banner text from every body before it is split into lines
func WithBanner(banner Banner) Option {
	return func(o *parserOptions) {
		o.banner = banner
	}
}

// NewParser compiles the selected pattern bundle. It fails only when the
// bundle is incomplete or a pattern does not compile.
func NewParser(opts ...Option) (*Parser, error) {
	o := parserOptions{locale: DefaultLocale}
	for _, opt := range opts {
		opt(&o)
	}

	spec := PatternsFor(o.locale)
	if o.spec != nil {
		spec = *o.spec
		o.locale = Custom
	}

	p, err := compilePatterns(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser for locale %q: %w", o.locale, err)
	}

	return &Parser{locale: o.locale, patterns: p, banner: o.banner}, nil
}

// Locale returns the locale the parser was built for
func (p *Parser) Locale() Locale {
	return p.locale
}

// Read splits text into fragments. It never fails; empty input yields a
// message without fragments.
func (p *Parser) Read(text string) *Message {
	msg := &Message{Locale: p.locale}

	text = normalize(text, p.patterns, p.banner)
	if text == "" {
		return msg
	}

	msg.Fragments = assemble(strings.Split(text, "\n"), p.patterns)
	resolveVisibility(msg.Fragments)
	return msg
}

// ParseReply returns only the visible reply of text
func (p *Parser) ParseReply(text string) string {
	return p.Read(text).Reply()
}

var defaultParser = mustParser()

func mustParser() *Parser {
	p, err := NewParser()
	if err != nil {
		panic(err)
	}
	return p
}

// Read splits text with the default English parser
func Read(text string) *Message {
	return defaultParser.Read(text)
}

// ParseReply returns the visible reply of text using the default English parser
func ParseReply(text string) string {
	return defaultParser.ParseReply(text)
}
