package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	appLog "teesync/internal/log"
	"teesync/internal/model"
)

// PrimaryCalendar is the API alias for the account's main calendar.
const PrimaryCalendar = "primary"

const defaultMaxResults = 20

// ErrCalendarNotFound is returned when no calendar has the requested name.
var ErrCalendarNotFound = errors.New("gcal: calendar not found")

// Client lists, creates and deletes events on one Google calendar.
type Client struct {
	svc        *calendar.Service
	calendarID string
	loc        *time.Location
	eventName  string
	maxResults int

	// now is the lower bound for listed events; replaceable in tests.
	now func() time.Time
}

// Options configure a Client.
type Options struct {
	// CalendarName selects the calendar by summary. Empty means primary.
	CalendarName string
	// Location is the zone event times are converted into and written in.
	Location *time.Location
	// EventName narrows ListEvents server-side to events matching the managed
	// title. Exact matching is still done by the caller.
	EventName string
	// MaxResults is the page size for ListEvents. If zero, 20 is used.
	MaxResults int

	// ClientOptions are passed to calendar.NewService, e.g. an endpoint for tests.
	ClientOptions []option.ClientOption
}

// New builds a Client over an authorized HTTP client and resolves the
// configured calendar name.
func New(ctx context.Context, httpClient *http.Client, opts Options) (*Client, error) {
	clientOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts.ClientOptions...)
	svc, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcal: create service: %w", err)
	}

	c := &Client{
		svc:        svc,
		calendarID: PrimaryCalendar,
		loc:        opts.Location,
		eventName:  opts.EventName,
		maxResults: opts.MaxResults,
		now:        time.Now,
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.maxResults <= 0 {
		c.maxResults = defaultMaxResults
	}

	if opts.CalendarName != "" {
		id, err := c.FindCalendar(ctx, opts.CalendarName)
		if err != nil {
			return nil, err
		}
		c.calendarID = id
	}

	appLog.Info("gcal calendar selected", "name", opts.CalendarName, "id", c.calendarID)
	return c, nil
}

// CalendarID is the calendar events are read from and written to.
func (c *Client) CalendarID() string {
	return c.calendarID
}

// FindCalendar returns the ID of the first calendar whose summary equals name.
func (c *Client) FindCalendar(ctx context.Context, name string) (string, error) {
	pageToken := ""
	for {
		call := c.svc.CalendarList.List().Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		list, err := call.Do()
		if err != nil {
			return "", fmt.Errorf("gcal: list calendars: %w", err)
		}
		for _, entry := range list.Items {
			if entry.Summary == name {
				return entry.Id, nil
			}
		}
		if list.NextPageToken == "" {
			return "", fmt.Errorf("%w: %q", ErrCalendarNotFound, name)
		}
		pageToken = list.NextPageToken
	}
}

// ListEvents returns every upcoming single-instance event ordered by start
// time, fetched maxResults per page. Events that cannot be decoded are logged
// and skipped.
func (c *Client) ListEvents(ctx context.Context) ([]model.CalendarEvent, error) {
	timeMin := c.now().UTC().Format(time.RFC3339)
	out := make([]model.CalendarEvent, 0)

	pageToken := ""
	pages := 0
	for {
		call := c.svc.Events.List(c.calendarID).
			Context(ctx).
			TimeMin(timeMin).
			MaxResults(int64(c.maxResults)).
			SingleEvents(true).
			OrderBy("startTime")
		if c.eventName != "" {
			call = call.Q(c.eventName)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		events, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("gcal: list events: %w", err)
		}
		pages++

		for _, item := range events.Items {
			ev, err := FromAPI(item, c.loc)
			if err != nil {
				appLog.Error("gcal event skipped", err, "id", item.Id)
				continue
			}
			out = append(out, ev)
		}

		if events.NextPageToken == "" {
			break
		}
		pageToken = events.NextPageToken
	}

	appLog.Debug("gcal events listed", "calendar", c.calendarID, "count", len(out), "pages", pages, "time_min", timeMin, "q", c.eventName)
	return out, nil
}

// CreateEvent inserts ev and returns the new event ID.
func (c *Client) CreateEvent(ctx context.Context, ev model.NewEvent) (string, error) {
	created, err := c.svc.Events.Insert(c.calendarID, ToAPI(ev, c.loc)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gcal: insert event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes the event with the given ID.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	if err := c.svc.Events.Delete(c.calendarID, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gcal: delete event %s: %w", id, err)
	}
	return nil
}
