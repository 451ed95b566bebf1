package reply

import "strings"

// Fragment is a contiguous run of lines sharing the same classification.
//
// Quoted and Headers are fixed when the fragment is created. Signature is set by
// the assembler and Hidden by the visibility pass; neither is ever unset.
type Fragment struct {
	lines     []string
	content   string
	finished  bool
	quoted    bool
	headers   bool
	signature bool
	hidden    bool

	// boundarySignature reports whether the line added last (the topmost line
	// seen so far while scanning upward) starts a signature.
	boundarySignature bool
}

func newFragment(line string, c classification) *Fragment {
	return &Fragment{
		lines:             []string{line},
		quoted:            c.quoted,
		headers:           c.header,
		boundarySignature: c.signature,
	}
}

// add appends a line while scanning in reverse document order
func (f *Fragment) add(line string, c classification) {
	f.lines = append(f.lines, line)
	f.boundarySignature = c.signature
}

// finish restores document order and computes the content exactly once
func (f *Fragment) finish() {
	if f.finished {
		return
	}
	for i, j := 0, len(f.lines)-1; i < j; i, j = i+1, j-1 {
		f.lines[i], f.lines[j] = f.lines[j], f.lines[i]
	}
	f.content = strings.Join(f.lines, "\n")
	f.finished = true
}

// Content returns the fragment text without surrounding whitespace
func (f *Fragment) Content() string {
	return strings.TrimSpace(f.content)
}

// Raw returns the fragment lines joined exactly as they appeared
func (f *Fragment) Raw() string {
	return f.content
}

// Lines returns a copy of the fragment lines in document order
func (f *Fragment) Lines() []string {
	lines := make([]string, len(f.lines))
	copy(lines, f.lines)
	return lines
}

// Quoted reports whether the fragment is quoted reply history
func (f *Fragment) Quoted() bool {
	return f.quoted
}

// Headers reports whether the fragment is a header block
func (f *Fragment) Headers() bool {
	return f.headers
}

// Signature reports whether the fragment is a signature block
func (f *Fragment) Signature() bool {
	return f.signature
}

// Hidden reports whether the fragment is hidden from the visible reply
func (f *Fragment) Hidden() bool {
	return f.hidden
}

// IsEmpty reports whether the fragment only holds whitespace
func (f *Fragment) IsEmpty() bool {
	return f.Content() == ""
}

// String returns the content of the fragment
func (f *Fragment) String() string {
	return f.Content()
}
