package booking

import (
	"errors"
	"fmt"
)

// ErrMalformedBookingPage is matched by every *MalformedPageError.
var ErrMalformedBookingPage = errors.New("malformed booking page")

// MalformedPageError reports scraped text that does not decompose into
// well-formed booking blocks.
type MalformedPageError struct {
	Block  int // zero-based booking block
	Line   int // zero-based line in the scraped text
	Reason string
	Err    error
}

func (e *MalformedPageError) Error() string {
	msg := fmt.Sprintf("%s: block %d (line %d): %s", ErrMalformedBookingPage, e.Block, e.Line, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedPageError) Unwrap() error {
	return e.Err
}

func (e *MalformedPageError) Is(target error) bool {
	return target == ErrMalformedBookingPage
}
