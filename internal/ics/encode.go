package ics

import (
	"strconv"
	"time"

	"teesync/internal/model"
)

// EncodeOptions describe how bookings are presented as events.
type EncodeOptions struct {
	Summary         string
	Location        string
	ReminderMinutes int

	// Now stamps DTSTAMP; zero means time.Now().
	Now time.Time
}

// Encode renders bookings as a standalone VCALENDAR, one VEVENT per booking
// in booking order. UIDs are derived from the booking's slot so re-exports
// of the same bookings produce the same UIDs.
func Encode(bookings []model.Booking, opts EncodeOptions) []byte {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := newCalendar()
	seen := make(map[string]int, len(bookings))
	for _, b := range bookings {
		id := b.Start.UTC().Format("20060102T150405Z") + "-" + b.End.UTC().Format("20060102T150405Z")
		seen[id]++
		if n := seen[id]; n > 1 {
			id += "-" + strconv.Itoa(n)
		}
		addEvent(cal, id+"@teesync", model.NewEvent{
			Summary:         opts.Summary,
			Description:     b.Description,
			Location:        opts.Location,
			Start:           b.Start,
			End:             b.End,
			ReminderMinutes: opts.ReminderMinutes,
		}, now)
	}
	return []byte(cal.Serialize())
}
