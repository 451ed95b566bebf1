package reply

import "strings"

// classification holds the independent predicates computed for one line
type classification struct {
	blank      bool
	quoted     bool
	header     bool
	quoteIntro bool
	signature  bool
}

// classify evaluates a single line against the compiled patterns. It keeps no
// state between calls; the assembler alone carries scan state.
func (p *patterns) classify(line string) classification {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return classification{blank: true}
	}

	c := classification{
		quoted:     p.quoted.MatchString(trimmed),
		quoteIntro: p.quoteIntro.MatchString(trimmed),
		signature:  p.signature.MatchString(trimmed),
	}
	// An attribution line always counts as a header line
	c.header = c.quoteIntro || p.header.MatchString(trimmed)

	return c
}
