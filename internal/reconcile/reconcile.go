package reconcile

import (
	"teesync/internal/model"
)

// FilterManaged returns the events whose summary equals eventName, in their
// original order. Only these events are ever deleted by a plan.
func FilterManaged(events []model.CalendarEvent, eventName string) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if ev.Summary == eventName {
			out = append(out, ev)
		}
	}
	return out
}

// Reconcile computes the plan that makes the managed events' time slots
// equal to the bookings' time slots.
//
// An event is deleted when its slot is not booked, or when its description
// is not the description of any current booking. The description check is
// against every booking, not only the one sharing the slot.
//
// A booking is created when no surviving event occupies its slot. Creation
// does not compare descriptions.
//
// Inputs are not modified. ToDelete follows event order and ToCreate follows
// booking order.
func Reconcile(bookings []model.Booking, events []model.CalendarEvent) model.Plan {
	bookingTimes := make(map[model.TimeRange]struct{}, len(bookings))
	bookingDescriptions := make(map[string]struct{}, len(bookings))
	for _, b := range bookings {
		bookingTimes[b.Range()] = struct{}{}
		bookingDescriptions[b.Description] = struct{}{}
	}

	plan := model.Plan{
		ToDelete: make([]model.CalendarEvent, 0),
		ToCreate: make([]model.Booking, 0),
	}

	eventTimes := make(map[model.TimeRange]struct{}, len(events))
	for _, ev := range events {
		_, booked := bookingTimes[ev.Range()]
		_, described := bookingDescriptions[ev.Description]
		if !booked || !described {
			plan.ToDelete = append(plan.ToDelete, ev)
			continue
		}
		eventTimes[ev.Range()] = struct{}{}
	}

	for _, b := range bookings {
		if _, represented := eventTimes[b.Range()]; !represented {
			plan.ToCreate = append(plan.ToCreate, b)
		}
	}

	return plan
}

// Apply returns the events that would exist after plan is carried out
// against events. New events get the caller's summary and no ID. It mirrors
// what a calendar backend ends up listing and is used to check convergence.
func Apply(events []model.CalendarEvent, plan model.Plan, summary string) []model.CalendarEvent {
	deleted := make(map[string]struct{}, len(plan.ToDelete))
	for _, ev := range plan.ToDelete {
		deleted[ev.ID] = struct{}{}
	}

	out := make([]model.CalendarEvent, 0, len(events)+len(plan.ToCreate))
	for _, ev := range events {
		if _, ok := deleted[ev.ID]; ok {
			continue
		}
		out = append(out, ev)
	}
	for _, b := range plan.ToCreate {
		out = append(out, model.CalendarEvent{
			Summary:     summary,
			Description: b.Description,
			Start:       b.Start,
			End:         b.End,
		})
	}
	return out
}
