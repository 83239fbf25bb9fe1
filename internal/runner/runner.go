package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"teesync/internal/booking"
	appLog "teesync/internal/log"
	"teesync/internal/model"
	"teesync/internal/reconcile"
)

// Scraper yields the bookings page text, one entry per line.
type Scraper interface {
	Scrape(ctx context.Context) ([]string, error)
}

// Calendar is the calendar service the plan is applied to.
type Calendar interface {
	ListEvents(ctx context.Context) ([]model.CalendarEvent, error)
	CreateEvent(ctx context.Context, ev model.NewEvent) (string, error)
	DeleteEvent(ctx context.Context, id string) error
}

// Options are the plain values a run needs from configuration.
type Options struct {
	EventName       string
	Location        string
	ReminderMinutes int

	// DryRun computes and logs the plan without touching the calendar.
	DryRun bool
}

// Result summarizes one run.
type Result struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	DryRun     bool          `json:"dry_run"`
	Bookings   int           `json:"bookings"`
	Managed    int           `json:"managed_events"`
	ToDelete   []string      `json:"to_delete"`
	ToCreate   []string      `json:"to_create"`
	Deleted    int           `json:"deleted"`
	Created    int           `json:"created"`
	Failed     int           `json:"failed"`
	Error      string        `json:"error,omitempty"`
	bookingSet []model.Booking
}

// BookingList returns the bookings parsed in this run.
func (r *Result) BookingList() []model.Booking {
	return r.bookingSet
}

// Runner performs full reconciliations: scrape, parse, list, reconcile,
// apply. Runs are serialized.
type Runner struct {
	scraper  Scraper
	parser   booking.Parser
	calendar Calendar
	opts     Options
	now      func() time.Time

	runMu sync.Mutex

	stateMu sync.RWMutex
	running bool
	last    *Result
}

// New assembles a Runner. A nil parser means booking.TextParser in time.Local.
func New(scraper Scraper, parser booking.Parser, calendar Calendar, opts Options) *Runner {
	if parser == nil {
		parser = booking.TextParser{}
	}
	return &Runner{
		scraper:  scraper,
		parser:   parser,
		calendar: calendar,
		opts:     opts,
		now:      time.Now,
	}
}

// ErrRunInProgress is returned by TryRun while another run holds the runner.
var ErrRunInProgress = errors.New("runner: a run is already in progress")

// Run performs one reconciliation, waiting for any in-flight run first.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.run(ctx)
}

// TryRun is Run, except it returns ErrRunInProgress instead of waiting.
func (r *Runner) TryRun(ctx context.Context) (*Result, error) {
	if !r.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.runMu.Unlock()
	return r.run(ctx)
}

// Status returns the most recent result (nil before the first run completes)
// and whether a run is in progress. It never waits for a run.
func (r *Runner) Status() (last *Result, running bool) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.last, r.running
}

func (r *Runner) run(ctx context.Context) (*Result, error) {
	r.setRunning(true)
	defer r.setRunning(false)

	res := &Result{
		StartedAt: r.now(),
		DryRun:    r.opts.DryRun,
		ToDelete:  []string{},
		ToCreate:  []string{},
	}
	err := r.reconcile(ctx, res)
	res.Duration = r.now().Sub(res.StartedAt)
	if err != nil {
		res.Error = err.Error()
	}

	r.stateMu.Lock()
	r.last = res
	r.stateMu.Unlock()
	return res, err
}

func (r *Runner) setRunning(v bool) {
	r.stateMu.Lock()
	r.running = v
	r.stateMu.Unlock()
}

func (r *Runner) reconcile(ctx context.Context, res *Result) error {
	lines, err := r.scraper.Scrape(ctx)
	if err != nil {
		return fmt.Errorf("scrape bookings: %w", err)
	}

	// A malformed page stops the run before the calendar is read or touched.
	bookings, err := r.parser.Parse(lines)
	if err != nil {
		return fmt.Errorf("parse bookings: %w", err)
	}
	res.Bookings = len(bookings)
	res.bookingSet = bookings

	events, err := r.calendar.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("list calendar events: %w", err)
	}
	managed := reconcile.FilterManaged(events, r.opts.EventName)
	res.Managed = len(managed)

	plan := reconcile.Reconcile(bookings, managed)
	for _, ev := range plan.ToDelete {
		res.ToDelete = append(res.ToDelete, ev.ID)
	}
	for _, b := range plan.ToCreate {
		res.ToCreate = append(res.ToCreate, b.Range().String())
	}

	appLog.Info("reconciliation planned",
		"bookings", len(bookings),
		"managed_events", len(managed),
		"to_delete", len(plan.ToDelete),
		"to_create", len(plan.ToCreate),
		"dry_run", r.opts.DryRun,
	)

	if r.opts.DryRun {
		for _, ev := range plan.ToDelete {
			appLog.Info("dry-run: would delete", "id", ev.ID, "slot", ev.Range())
		}
		for _, b := range plan.ToCreate {
			appLog.Info("dry-run: would create", "slot", b.Range(), "description", b.Description)
		}
		after := reconcile.Apply(managed, plan, r.opts.EventName)
		appLog.Info("dry-run: managed events after apply", "count", len(after))
		return nil
	}

	return r.apply(ctx, plan, res)
}

// apply carries out plan. A failed item is logged and the rest of the plan
// still runs; every failure is returned joined.
func (r *Runner) apply(ctx context.Context, plan model.Plan, res *Result) error {
	var errs []error

	for _, ev := range plan.ToDelete {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := r.calendar.DeleteEvent(ctx, ev.ID); err != nil {
			serr := &CalendarServiceError{Op: OpDelete, EventID: ev.ID, Slot: ev.Range().String(), Err: err}
			appLog.Warn("calendar delete failed", "id", ev.ID, "slot", ev.Range(), "err", err)
			errs = append(errs, serr)
			res.Failed++
			continue
		}
		res.Deleted++
		appLog.Info("calendar event deleted", "id", ev.ID, "slot", ev.Range())
	}

	for _, b := range plan.ToCreate {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		id, err := r.calendar.CreateEvent(ctx, model.NewEvent{
			Summary:         r.opts.EventName,
			Description:     b.Description,
			Location:        r.opts.Location,
			Start:           b.Start,
			End:             b.End,
			ReminderMinutes: r.opts.ReminderMinutes,
		})
		if err != nil {
			serr := &CalendarServiceError{Op: OpCreate, Slot: b.Range().String(), Err: err}
			appLog.Warn("calendar create failed", "slot", b.Range(), "err", err)
			errs = append(errs, serr)
			res.Failed++
			continue
		}
		res.Created++
		appLog.Info("calendar event created", "id", id, "slot", b.Range())
	}

	return errors.Join(errs...)
}
