package reply

// scanState is the assembler's state for one parse. At most one fragment is
// open at a time; closed fragments are kept in the order they were closed,
// which is reverse document order.
type scanState struct {
	open   *Fragment
	closed []*Fragment
}

// assemble splits lines into fragments by scanning from the last line to the
// first, then returns the fragments in document order.
func assemble(lines []string, p *patterns) []*Fragment {
	s := &scanState{}
	for i := len(lines) - 1; i >= 0; i-- {
		s.scanLine(lines[i], p.classify(lines[i]))
	}

	// The start of the document behaves like one more line above the top
	s.closeSignature()
	s.close()

	fragments := s.closed
	for i, j := 0, len(fragments)-1; i < j; i, j = i+1, j-1 {
		fragments[i], fragments[j] = fragments[j], fragments[i]
	}
	return fragments
}

// scanLine decides whether line continues the open fragment or starts a new one
func (s *scanState) scanLine(line string, c classification) {
	s.closeSignature()

	if s.open != nil && s.continues(c) {
		s.open.add(line, c)
		return
	}

	s.close()
	s.open = newFragment(line, c)
}

// closeSignature closes the open fragment as a signature when its topmost line
// starts a signature block.
func (s *scanState) closeSignature() {
	if s.open != nil && s.open.boundarySignature {
		s.open.signature = true
		s.close()
	}
}

// continues reports whether a line with classification c belongs to the open
// fragment. Quoted fragments also absorb blank lines and attribution lines.
func (s *scanState) continues(c classification) bool {
	f := s.open
	if f.headers == c.header && f.quoted == c.quoted {
		return true
	}
	return f.quoted && (c.quoteIntro || c.blank)
}

// close finishes the open fragment, if any, and hands it to the closed list
func (s *scanState) close() {
	if s.open == nil {
		return
	}
	s.open.finish()
	s.closed = append(s.closed, s.open)
	s.open = nil
}
