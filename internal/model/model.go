package model

import (
	"fmt"
	"time"
)

// Booking is one reserved tee time scraped from the club portal.
// Bookings are rebuilt on every run and never mutated.
type Booking struct {
	Start time.Time
	End   time.Time

	// RoundDuration is the playing time attributed to the booking;
	// End is always Start.Add(RoundDuration).
	RoundDuration time.Duration

	// Description is the raw portal block the booking was parsed from,
	// kept verbatim so it can be compared against calendar descriptions.
	Description string
}

// Range returns the booking's time slot.
func (b Booking) Range() TimeRange {
	return RangeOf(b.Start, b.End)
}

// CalendarEvent is a calendar entry as listed by a calendar backend.
// Start/End are already converted into the configured timezone.
type CalendarEvent struct {
	ID          string
	Summary     string
	Description string

	Start time.Time
	End   time.Time
}

// Range returns the event's time slot.
func (e CalendarEvent) Range() TimeRange {
	return RangeOf(e.Start, e.End)
}

// NewEvent is what a backend needs to create a managed event.
type NewEvent struct {
	Summary     string
	Description string
	Location    string

	Start time.Time
	End   time.Time

	// ReminderMinutes is the lead time of the single popup reminder.
	ReminderMinutes int
}

// TimeRange is a comparable (start, end) key built from wall-clock fields
// only, so two instants that read the same on a clock are equal regardless
// of the *time.Location they carry.
type TimeRange struct {
	Start wallClock
	End   wallClock
}

type wallClock struct {
	Year       int
	Month      time.Month
	Day        int
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

func toWallClock(t time.Time) wallClock {
	return wallClock{
		Year:       t.Year(),
		Month:      t.Month(),
		Day:        t.Day(),
		Hour:       t.Hour(),
		Minute:     t.Minute(),
		Second:     t.Second(),
		Nanosecond: t.Nanosecond(),
	}
}

func (w wallClock) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", w.Year, int(w.Month), w.Day, w.Hour, w.Minute, w.Second)
}

// RangeOf builds the TimeRange for [start, end).
func RangeOf(start, end time.Time) TimeRange {
	return TimeRange{Start: toWallClock(start), End: toWallClock(end)}
}

func (r TimeRange) String() string {
	return r.Start.String() + "/" + r.End.String()
}

// Plan is the set of changes that converges the managed calendar events
// onto the current bookings.
type Plan struct {
	ToDelete []CalendarEvent
	ToCreate []Booking
}

// Empty reports whether applying the plan would change nothing.
func (p Plan) Empty() bool {
	return len(p.ToDelete) == 0 && len(p.ToCreate) == 0
}

// DeleteIDs returns the identifiers of the events to delete, in plan order.
func (p Plan) DeleteIDs() []string {
	ids := make([]string, 0, len(p.ToDelete))
	for _, ev := range p.ToDelete {
		ids = append(ids, ev.ID)
	}
	return ids
}
