package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/felo/eml-reply/internal/reply"
)

// ErrNoSuchMember is returned when an mbox archive has fewer messages than asked for
var ErrNoSuchMember = errors.New("mbox member not found")

// MboxFunc receives each member of an archive. err is the parse error of that
// member alone; returning a non-nil error stops the walk.
type MboxFunc func(index int, parsed *ParsedEmail, err error) error

// WalkMboxFile parses every message of an mbox archive in order
func WalkMboxFile(filePath string, rp *reply.Parser, fn MboxFunc) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open mbox: %w", err)
	}
	defer f.Close()

	return WalkMbox(f, rp, fn)
}

// WalkMbox parses every message read from r. A member that fails to parse is
// reported to fn and the walk moves on to the next one.
func WalkMbox(r io.Reader, rp *reply.Parser, fn MboxFunc) error {
	reader := mboxlib.NewReader(r)

	for idx := 0; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}

		parsed, err := ParseEML(bytes.NewReader(raw), rp)
		if err != nil {
			err = fmt.Errorf("message %d parse: %w", idx, err)
		}
		if err := fn(idx, parsed, err); err != nil {
			return err
		}
	}
}

var errStopWalk = errors.New("stop")

// ParseMboxMember parses the index-th message (zero based) of an mbox archive
func ParseMboxMember(filePath string, index int, rp *reply.Parser) (*ParsedEmail, error) {
	var found *ParsedEmail
	var parseErr error

	err := WalkMboxFile(filePath, rp, func(i int, parsed *ParsedEmail, err error) error {
		if i != index {
			return nil
		}
		found, parseErr = parsed, err
		return errStopWalk
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %d in %s", ErrNoSuchMember, index, filePath)
	}
	return found, nil
}
