package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"teesync/internal/config"
	appLog "teesync/internal/log"
	"teesync/internal/model"
)

const productID = "-//teesync//tee times//EN"

// ErrEventNotFound is returned when deleting a UID the file does not hold.
var ErrEventNotFound = errors.New("ics: event not found")

// Store is a calendar kept in a local .ics file. It offers the same list,
// create and delete operations as the Google client, with the VEVENT UID as
// the event ID. Components it does not manage are preserved on write.
type Store struct {
	path string
	loc  *time.Location

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

// NewStore returns a Store over path. The file is created on first write.
func NewStore(path string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		path:  path,
		loc:   loc,
		now:   time.Now,
		newID: func() string { return uuid.NewString() + "@teesync" },
	}
}

// ListEvents returns the events that end after now, in file order. Events
// without a UID or with unreadable times are logged and skipped.
func (s *Store) ListEvents(_ context.Context) ([]model.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, err := s.load()
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]model.CalendarEvent, 0)
	for _, ve := range cal.Events() {
		ev, err := s.fromVEvent(ve)
		if err != nil {
			appLog.Error("ics vevent skipped", err, "path", s.path)
			continue
		}
		if !ev.End.After(now) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// CreateEvent appends ev with a fresh UID and rewrites the file.
func (s *Store) CreateEvent(_ context.Context, ev model.NewEvent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, err := s.load()
	if err != nil {
		return "", err
	}

	id := s.newID()
	addEvent(cal, id, ev, s.now())

	if err := s.save(cal); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteEvent removes the VEVENT with the given UID and rewrites the file.
func (s *Store) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, err := s.load()
	if err != nil {
		return err
	}

	kept := make([]ical.Component, 0, len(cal.Components))
	found := false
	for _, comp := range cal.Components {
		if ve, ok := comp.(*ical.VEvent); ok && ve.Id() == id {
			found = true
			continue
		}
		kept = append(kept, comp)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	cal.Components = kept

	return s.save(cal)
}

func (s *Store) load() (*ical.Calendar, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newCalendar(), nil
		}
		return nil, fmt.Errorf("ics: read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return newCalendar(), nil
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", s.path, err)
	}
	return cal, nil
}

func (s *Store) save(cal *ical.Calendar) error {
	if err := config.WriteFileAtomic(s.path, []byte(cal.Serialize()), ".teesync-ics-*.tmp"); err != nil {
		return fmt.Errorf("ics: write %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) fromVEvent(ve *ical.VEvent) (model.CalendarEvent, error) {
	var out model.CalendarEvent

	out.ID = ve.Id()
	if out.ID == "" {
		return out, errors.New("missing UID")
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("uid %s: DTSTART: %w", out.ID, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return out, fmt.Errorf("uid %s: DTEND: %w", out.ID, err)
	}
	out.Start = start.In(s.loc)
	out.End = end.In(s.loc)

	// golang-ical unescapes TEXT values while parsing.
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	return out, nil
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	return cal
}

// addEvent appends a VEVENT with a display alarm ev.ReminderMinutes before start.
func addEvent(cal *ical.Calendar, id string, ev model.NewEvent, stamp time.Time) {
	ve := cal.AddEvent(id)
	ve.SetDtStampTime(stamp)
	ve.SetStartAt(ev.Start)
	ve.SetEndAt(ev.End)
	ve.SetSummary(ev.Summary)
	ve.SetDescription(ev.Description)
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}

	if ev.ReminderMinutes > 0 {
		alarm := ve.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger(fmt.Sprintf("-PT%dM", ev.ReminderMinutes))
		alarm.SetProperty(ical.ComponentPropertyDescription, ical.ToText(ev.Summary))
	}
}
