package gcal

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"

	"teesync/internal/model"
)

// wallClockLayout writes a dateTime without offset so the API applies the
// event's TimeZone field.
const wallClockLayout = "2006-01-02T15:04:05"

const reminderPopup = "popup"

// FromAPI converts an API event, reading times in loc. All-day events use
// midnight of their date in loc.
func FromAPI(ev *calendar.Event, loc *time.Location) (model.CalendarEvent, error) {
	if ev == nil {
		return model.CalendarEvent{}, errors.New("nil event")
	}
	start, err := parseEventTime(ev.Start, loc)
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseEventTime(ev.End, loc)
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("end: %w", err)
	}

	return model.CalendarEvent{
		ID:          ev.Id,
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       start,
		End:         end,
	}, nil
}

func parseEventTime(dt *calendar.EventDateTime, loc *time.Location) (time.Time, error) {
	if dt == nil {
		return time.Time{}, errors.New("missing time")
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	}
	if dt.Date != "" {
		return time.ParseInLocation("2006-01-02", dt.Date, loc)
	}
	return time.Time{}, errors.New("neither dateTime nor date set")
}

// eventTime writes t as wall-clock time in loc. time.Local has no IANA name
// the API accepts, so it is sent with an explicit offset instead.
func eventTime(t time.Time, loc *time.Location) *calendar.EventDateTime {
	t = t.In(loc)
	if loc == time.Local || loc.String() == "Local" {
		return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339)}
	}
	return &calendar.EventDateTime{
		DateTime: t.Format(wallClockLayout),
		TimeZone: loc.String(),
	}
}

// ToAPI builds the insert body for a managed event: wall-clock times in
// loc and a single popup reminder instead of the calendar defaults.
func ToAPI(ev model.NewEvent, loc *time.Location) *calendar.Event {
	return &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       eventTime(ev.Start, loc),
		End:         eventTime(ev.End, loc),
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: reminderPopup, Minutes: int64(ev.ReminderMinutes)},
			},
			// UseDefault=false would otherwise be dropped as a zero value.
			ForceSendFields: []string{"UseDefault"},
		},
	}
}
