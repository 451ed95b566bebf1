package reply

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

	// wrappedBreak matches a line break inside a wrapped quote introduction
	wrappedBreak = regexp.MustCompile(`[ \t]*\n\s*`)

	// delimiterLine matches a line that starts a signature delimiter run
	delimiterLine = regexp.MustCompile(`^[ \t]?[_-]{7,}`)
)

// Banner removes boilerplate such as confidentiality notices from a body
// before it is split into lines.
type Banner interface {
	Strip(text string) string
}

// RegexpBanner deletes every span matching one of its patterns
type RegexpBanner struct {
	patterns []*regexp.Regexp
}

// NewRegexpBanner compiles the given banner patterns
func NewRegexpBanner(patterns ...string) (*RegexpBanner, error) {
	b := &RegexpBanner{}
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile banner pattern %q: %w", pattern, err)
		}
		b.patterns = append(b.patterns, re)
	}
	return b, nil
}

// Strip implements Banner
func (b *RegexpBanner) Strip(text string) string {
	for _, re := range b.patterns {
		text = re.ReplaceAllString(text, "")
	}
	return text
}

// normalize canonicalizes a raw body so it can be split into lines
func normalize(text string, p *patterns, banner Banner) string {
	text = strings.TrimSpace(lineEndings.Replace(text))

	text = collapseQuoteIntro(text, p)

	if banner != nil {
		text = strings.TrimSpace(banner.Strip(text))
	}

	return separateDelimiters(text)
}

// collapseQuoteIntro joins the first quote introduction that was wrapped over
// several lines ("On <date>, <person>\nwrote:") back into one line.
//
// The first closing verb that has an opener before it is paired with the
// nearest such opener, so an earlier sentence that merely starts with the
// opener word is never swallowed into the introduction. A span that crosses a
// blank line or a finished sentence is prose, not an introduction; its opener
// is skipped and the search moves on.
func collapseQuoteIntro(text string, p *patterns) string {
	ends := p.introEnd.FindAllStringIndex(text, -1)
	if len(ends) == 0 {
		return text
	}
	starts := p.introStart.FindAllStringIndex(text, -1)

	next, floor := 0, 0
	for _, end := range ends {
		// At least one character has to sit between opener and verb
		for next < len(starts) && starts[next][1] < end[0] {
			next++
		}
		if next <= floor {
			continue
		}

		from, to := starts[next-1][0], end[1]
		intro := text[from:to]
		if !strings.Contains(intro, "\n") {
			return text
		}
		if !wrappedIntro(intro) {
			floor = next
			continue
		}
		return text[:from] + wrappedBreak.ReplaceAllString(intro, " ") + text[to:]
	}

	return text
}

// wrappedIntro reports whether every line break in intro sits inside one
// attribution: no blank lines and no line ending a sentence before the verb.
func wrappedIntro(intro string) bool {
	lines := strings.Split(intro, "\n")
	for _, line := range lines[:len(lines)-1] {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ".") || strings.HasSuffix(line, "!") || strings.HasSuffix(line, "?") {
			return false
		}
	}
	return true
}

// separateDelimiters makes sure a delimiter line written directly under a
// paragraph is preceded by a blank line, so the paragraph is not mistaken for
// part of the signature.
func separateDelimiters(text string) string {
	if !strings.Contains(text, "\n") {
		return text
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if i > 0 && lines[i-1] != "" && delimiterLine.MatchString(line) {
			out = append(out, "")
		}
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}
