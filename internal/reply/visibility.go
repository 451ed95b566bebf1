package reply

// resolveVisibility marks hidden fragments. fragments must be in document
// order; they are visited from the bottom of the message upward, the order in
// which the assembler closed them.
//
// Until a visible fragment is found, quoted, header, signature and empty
// fragments are hidden. A header fragment hides everything below it and opens
// a new visibility window.
func resolveVisibility(fragments []*Fragment) {
	foundVisible := false
	// fragments[mark:] have already been hidden by a header block
	mark := len(fragments)

	for i := len(fragments) - 1; i >= 0; i-- {
		f := fragments[i]

		if f.headers {
			for _, below := range fragments[i+1 : mark] {
				below.hidden = true
			}
			mark = i
			foundVisible = false
		}

		if foundVisible {
			continue
		}
		if f.quoted || f.headers || f.signature || f.IsEmpty() {
			f.hidden = true
		} else {
			foundVisible = true
		}
	}
}
