package runner

import (
	"errors"
	"fmt"

	"teesync/internal/booking"
)

// Calendar operations that can fail individually.
const (
	OpDelete = "delete"
	OpCreate = "create"
)

// CalendarServiceError is one failed delete or create. The run continues
// past it.
type CalendarServiceError struct {
	Op      string
	EventID string
	Slot    string
	Err     error
}

func (e *CalendarServiceError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("calendar %s %s (%s): %v", e.Op, e.EventID, e.Slot, e.Err)
	}
	return fmt.Sprintf("calendar %s (%s): %v", e.Op, e.Slot, e.Err)
}

func (e *CalendarServiceError) Unwrap() error {
	return e.Err
}

// Exit codes for the binary.
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitPartial = 2
)

// ExitCode maps a run error to a process exit status: ExitPartial when the
// only failures are individual calendar calls, ExitFatal otherwise.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, booking.ErrMalformedBookingPage) {
		return ExitFatal
	}
	if onlyServiceErrors(err) {
		return ExitPartial
	}
	return ExitFatal
}

func onlyServiceErrors(err error) bool {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs := joined.Unwrap()
		if len(errs) == 0 {
			return false
		}
		for _, e := range errs {
			if !onlyServiceErrors(e) {
				return false
			}
		}
		return true
	}
	var serr *CalendarServiceError
	return errors.As(err, &serr)
}
