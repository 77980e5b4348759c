package dbc

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrMalformedLine marks a source line or row that was skipped.
	ErrMalformedLine = errors.New("malformed line")
	// ErrInvalidRecord is returned when a message or signal breaks a field invariant.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrDuplicate is returned when a lookup key or name is already taken.
	ErrDuplicate = errors.New("duplicate definition")
	// ErrNotFound is returned by builder operations addressing a missing message or signal.
	ErrNotFound = errors.New("not found")
	// ErrFileNotFound marks I/O errors caused by a missing input file.
	ErrFileNotFound = errors.New("file not found")
	// ErrInvalidPath marks an unusable input or output path.
	ErrInvalidPath = errors.New("invalid path")
)

// Issue describes an input line that could not be used. Issues are
// collected rather than returned as errors so a single bad line never
// aborts a parse.
type Issue struct {
	Line int
	Text string
	Err  error
}

func (i Issue) Error() string {
	return fmt.Sprintf("line %d: %v: %q", i.Line, i.Err, i.Text)
}

func (i Issue) Unwrap() error { return i.Err }

// Malformed returns an Issue wrapping ErrMalformedLine.
func Malformed(line int, text, reason string) Issue {
	return Issue{
		Line: line,
		Text: text,
		Err:  errors.Wrap(ErrMalformedLine, reason),
	}
}
