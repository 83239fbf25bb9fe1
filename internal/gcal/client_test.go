package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"teesync/internal/model"
)

// fakeAPI serves the handful of Calendar v3 endpoints the client uses.
type fakeAPI struct {
	mu       sync.Mutex
	inserted []map[string]any
	deleted  []string
	query    map[string]string

	// pages, when set, replaces the default events listing; the page token
	// is the index of the next page.
	pages  []string
	tokens []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/users/me/calendarList") && r.Method == http.MethodGet:
		writeBody(w, `{"items":[{"id":"primary-id","summary":"Me"},{"id":"golf-id","summary":"Golf"}]}`)

	case strings.HasSuffix(path, "/calendars/golf-id/events") && r.Method == http.MethodGet:
		q := r.URL.Query()
		f.query = map[string]string{
			"timeMin":      q.Get("timeMin"),
			"singleEvents": q.Get("singleEvents"),
			"orderBy":      q.Get("orderBy"),
			"maxResults":   q.Get("maxResults"),
			"q":            q.Get("q"),
		}
		if len(f.pages) > 0 {
			token := q.Get("pageToken")
			f.tokens = append(f.tokens, token)
			idx := 0
			if token != "" {
				idx, _ = strconv.Atoi(token)
			}
			writeBody(w, f.pages[idx])
			return
		}
		writeBody(w, `{"items":[
			{"id":"e1","summary":"TeeTime","description":"A",
			 "start":{"dateTime":"2024-05-01T09:00:00+01:00"},"end":{"dateTime":"2024-05-01T14:00:00+01:00"}},
			{"id":"e2","summary":"Holiday","start":{"date":"2024-05-02"},"end":{"date":"2024-05-03"}},
			{"id":"broken","summary":"TeeTime","start":{"dateTime":"yesterday"},"end":{"dateTime":"today"}}
		]}`)

	case strings.HasSuffix(path, "/calendars/golf-id/events") && r.Method == http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		f.inserted = append(f.inserted, m)
		writeBody(w, `{"id":"new-1"}`)

	case strings.HasSuffix(path, "/calendars/golf-id/events/e1") && r.Method == http.MethodDelete:
		f.deleted = append(f.deleted, "e1")
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
	}
}

func writeBody(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, api *fakeAPI, loc *time.Location) *Client {
	t.Helper()
	return newTestClientWith(t, api, Options{Location: loc})
}

func newTestClientWith(t *testing.T, api *fakeAPI, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	opts.CalendarName = "Golf"
	opts.ClientOptions = []option.ClientOption{option.WithEndpoint(srv.URL + "/")}
	c, err := New(context.Background(), srv.Client(), opts)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2024, 4, 30, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestClient_FindCalendarByName(t *testing.T) {
	c := newTestClient(t, &fakeAPI{}, time.UTC)
	assert.Equal(t, "golf-id", c.CalendarID())

	_, err := c.FindCalendar(context.Background(), "Nope")
	assert.ErrorIs(t, err, ErrCalendarNotFound)
}

func TestClient_ListEvents(t *testing.T) {
	loc := time.FixedZone("IST", 3600)
	api := &fakeAPI{}
	c := newTestClient(t, api, loc)

	events, err := c.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2, "undecodable event is skipped")

	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, "A", events[0].Description)
	assert.Equal(t, 9, events[0].Start.Hour())
	assert.Equal(t, 14, events[0].End.Hour())
	assert.Equal(t, loc, events[0].Start.Location())

	assert.Equal(t, "Holiday", events[1].Summary)
	assert.Equal(t, 0, events[1].Start.Hour())

	assert.Equal(t, "2024-04-30T12:00:00Z", api.query["timeMin"])
	assert.Equal(t, "true", api.query["singleEvents"])
	assert.Equal(t, "startTime", api.query["orderBy"])
	assert.Equal(t, "20", api.query["maxResults"])
}

func TestClient_ListEventsPagesPastPageSize(t *testing.T) {
	foreign := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		foreign = append(foreign, fmt.Sprintf(
			`{"id":"f%d","summary":"Meeting","start":{"dateTime":"2024-05-01T%02d:00:00Z"},"end":{"dateTime":"2024-05-01T%02d:30:00Z"}}`,
			i, i, i))
	}
	api := &fakeAPI{pages: []string{
		`{"nextPageToken":"1","items":[` + strings.Join(foreign, ",") + `]}`,
		`{"items":[{"id":"golf","summary":"Golf","description":"A",
		  "start":{"dateTime":"2024-05-02T09:00:00Z"},"end":{"dateTime":"2024-05-02T14:00:00Z"}}]}`,
	}}
	c := newTestClientWith(t, api, Options{Location: time.UTC, EventName: "Golf"})

	events, err := c.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 21)
	assert.Equal(t, "golf", events[20].ID)
	assert.Equal(t, []string{"", "1"}, api.tokens)
	assert.Equal(t, "Golf", api.query["q"])
	assert.Equal(t, "20", api.query["maxResults"])
}

func TestClient_CreateEvent(t *testing.T) {
	loc := time.FixedZone("IST", 3600)
	api := &fakeAPI{}
	c := newTestClient(t, api, loc)

	id, err := c.CreateEvent(context.Background(), model.NewEvent{
		Summary:         "TeeTime",
		Description:     "block",
		Location:        "Killeen Castle",
		Start:           time.Date(2024, 5, 1, 9, 0, 0, 0, loc),
		End:             time.Date(2024, 5, 1, 14, 0, 0, 0, loc),
		ReminderMinutes: 1440,
	})
	require.NoError(t, err)
	assert.Equal(t, "new-1", id)

	require.Len(t, api.inserted, 1)
	body := api.inserted[0]
	assert.Equal(t, "TeeTime", body["summary"])
	assert.Equal(t, "Killeen Castle", body["location"])
	start := body["start"].(map[string]any)
	assert.Equal(t, "2024-05-01T09:00:00", start["dateTime"])
	reminders := body["reminders"].(map[string]any)
	assert.Equal(t, false, reminders["useDefault"])
	overrides := reminders["overrides"].([]any)
	require.Len(t, overrides, 1)
	assert.Equal(t, "popup", overrides[0].(map[string]any)["method"])
	assert.Equal(t, float64(1440), overrides[0].(map[string]any)["minutes"])
}

func TestClient_DeleteEvent(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api, time.UTC)

	require.NoError(t, c.DeleteEvent(context.Background(), "e1"))
	assert.Equal(t, []string{"e1"}, api.deleted)

	assert.Error(t, c.DeleteEvent(context.Background(), "missing"))
}

func TestToAPI_WallClockInZone(t *testing.T) {
	dublin, err := time.LoadLocation("Europe/Dublin")
	require.NoError(t, err)

	ev := ToAPI(model.NewEvent{
		Summary:         "TeeTime",
		Start:           time.Date(2024, 7, 1, 8, 30, 0, 0, dublin),
		End:             time.Date(2024, 7, 1, 11, 0, 0, 0, dublin),
		ReminderMinutes: 60,
	}, dublin)

	assert.Equal(t, "2024-07-01T08:30:00", ev.Start.DateTime)
	assert.Equal(t, "Europe/Dublin", ev.Start.TimeZone)
	assert.Equal(t, "2024-07-01T11:00:00", ev.End.DateTime)
	assert.Equal(t, int64(60), ev.Reminders.Overrides[0].Minutes)
}

func TestFromAPI_Errors(t *testing.T) {
	_, err := FromAPI(nil, time.UTC)
	assert.Error(t, err)

	_, err = FromAPI(&calendar.Event{Start: &calendar.EventDateTime{}, End: &calendar.EventDateTime{}}, time.UTC)
	assert.Error(t, err)

	_, err = FromAPI(&calendar.Event{Start: &calendar.EventDateTime{Date: "2024-05-01"}}, time.UTC)
	assert.Error(t, err)
}

func TestToAPI_LocalUsesOffset(t *testing.T) {
	start := time.Date(2024, 7, 1, 8, 30, 0, 0, time.Local)
	ev := ToAPI(model.NewEvent{Start: start, End: start.Add(time.Hour)}, time.Local)

	assert.Empty(t, ev.Start.TimeZone)
	parsed, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	require.NoError(t, err)
	assert.True(t, start.Equal(parsed))
}
