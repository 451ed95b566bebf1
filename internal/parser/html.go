package parser

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	reMultiSpace    = regexp.MustCompile(`[ \t]+`)
	reMultiNewlines = regexp.MustCompile(`\n{3,}`)
)

// skipped elements never contribute text
var skipped = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"title":    true,
	"noscript": true,
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "div": true, "dl": true,
	"dt": true, "dd": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true, "hr": true,
	"li": true, "main": true, "nav": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "tr": true, "ul": true,
}

// HTMLToText converts an HTML body into plain text lines. Blockquotes are
// rendered with "> " prefixes so quoted history stays recognizable.
func HTMLToText(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var b strings.Builder
	renderNode(&b, doc)

	out := b.String()
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(reMultiSpace.ReplaceAllString(line, " "))
	}
	out = reMultiNewlines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")

	return strings.TrimSpace(out)
}

func renderNode(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		text := strings.Join(strings.Fields(n.Data), " ")
		if text == "" {
			return
		}
		if b.Len() > 0 && !endsWithSpace(b) && startsWithSpace(n.Data) {
			b.WriteByte(' ')
		}
		b.WriteString(text)
		if endsWithSpaceString(n.Data) {
			b.WriteByte(' ')
		}
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if skipped[n.Data] {
			return
		}
		switch n.Data {
		case "br":
			b.WriteByte('\n')
			return
		case "blockquote":
			var inner strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				renderNode(&inner, c)
			}
			newline(b)
			for _, line := range strings.Split(strings.TrimSpace(inner.String()), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					b.WriteString(">\n")
					continue
				}
				b.WriteString("> " + line + "\n")
			}
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		newline(b)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(b, c)
	}
	if block {
		newline(b)
	}
}

// newline ends the current line unless the builder is already at a line start
func newline(b *strings.Builder) {
	if b.Len() == 0 {
		return
	}
	s := b.String()
	if s[len(s)-1] != '\n' {
		b.WriteByte('\n')
	}
}

func endsWithSpace(b *strings.Builder) bool {
	s := b.String()
	last := s[len(s)-1]
	return last == ' ' || last == '\n'
}

func startsWithSpace(s string) bool {
	return s != "" && strings.TrimLeft(s[:1], " \t\r\n") == ""
}

func endsWithSpaceString(s string) bool {
	return s != "" && strings.TrimRight(s[len(s)-1:], " \t\r\n") == ""
}
