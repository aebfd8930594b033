package domain

import (
	"fmt"
	"strings"
	"time"
)

var EventCategories = []string{"Concert", "Conference", "Workshop", "Sports", "Stand-Up", "Other"}

type Event struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Location    string      `json:"location"`
	PriceCents  int64       `json:"price_cents"`
	Dates       []DateEntry `json:"dates"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty"`
}

type DateEntry struct {
	ID    int64     `json:"id"`
	Date  time.Time `json:"date"`
	Slots []Slot    `json:"slots"`
}

type Slot struct {
	ID             int64  `json:"id"`
	Time           string `json:"time"`
	Capacity       int    `json:"capacity"`
	AvailableSeats int    `json:"available_seats"`
}

// Held is the number of seats currently reserved against the slot.
func (s Slot) Held() int {
	return s.Capacity - s.AvailableSeats
}

func (e *Event) Deleted() bool {
	return e.DeletedAt != nil
}

// SameDay compares the calendar dates carried by a and b, ignoring time of day and zone.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// CalendarDay truncates t to midnight UTC of the calendar date it carries.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FindSlot locates the slot labelled slotTime on the given calendar date.
func FindSlot(e *Event, date time.Time, slotTime string) (*Slot, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: event", ErrNotFound)
	}
	dateFound := false
	for i := range e.Dates {
		entry := &e.Dates[i]
		if !SameDay(entry.Date, date) {
			continue
		}
		dateFound = true
		for j := range entry.Slots {
			if entry.Slots[j].Time == slotTime {
				return &entry.Slots[j], nil
			}
		}
	}
	if !dateFound {
		return nil, fmt.Errorf("%w: date %s not available for this event", ErrNotFound, date.Format(time.DateOnly))
	}
	return nil, fmt.Errorf("%w: time slot %q not available", ErrNotFound, slotTime)
}

func (e *Event) Validate() error {
	switch {
	case strings.TrimSpace(e.Title) == "":
		return fmt.Errorf("%w: title is required", ErrValidation)
	case strings.TrimSpace(e.Description) == "":
		return fmt.Errorf("%w: description is required", ErrValidation)
	case strings.TrimSpace(e.Location) == "":
		return fmt.Errorf("%w: location is required", ErrValidation)
	case e.PriceCents < 0:
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if !validCategory(e.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, e.Category)
	}
	return ValidateSchedule(e.Dates)
}

func ValidateSchedule(dates []DateEntry) error {
	if len(dates) == 0 {
		return fmt.Errorf("%w: at least one date with slots is required", ErrValidation)
	}
	for i, entry := range dates {
		if entry.Date.IsZero() {
			return fmt.Errorf("%w: date #%d is empty", ErrValidation, i+1)
		}
		for j := 0; j < i; j++ {
			if SameDay(dates[j].Date, entry.Date) {
				return fmt.Errorf("%w: duplicate date %s", ErrValidation, entry.Date.Format(time.DateOnly))
			}
		}
		if len(entry.Slots) == 0 {
			return fmt.Errorf("%w: date %s has no slots", ErrValidation, entry.Date.Format(time.DateOnly))
		}
		seen := make(map[string]struct{}, len(entry.Slots))
		for _, slot := range entry.Slots {
			if strings.TrimSpace(slot.Time) == "" {
				return fmt.Errorf("%w: slot time is required", ErrValidation)
			}
			if _, ok := seen[slot.Time]; ok {
				return fmt.Errorf("%w: duplicate slot %q on %s", ErrValidation, slot.Time, entry.Date.Format(time.DateOnly))
			}
			seen[slot.Time] = struct{}{}
			if slot.Capacity < 0 || slot.AvailableSeats < 0 || slot.AvailableSeats > slot.Capacity {
				return fmt.Errorf("%w: slot %q has invalid seat counts", ErrValidation, slot.Time)
			}
		}
	}
	return nil
}

// Reschedule builds the schedule that replaces current. Slots present in both
// (same day and label) keep the seats already held by bookings; a slot that still
// holds seats cannot be dropped.
func Reschedule(current, updated []DateEntry) ([]DateEntry, error) {
	out := make([]DateEntry, 0, len(updated))
	for _, entry := range updated {
		next := DateEntry{Date: CalendarDay(entry.Date), Slots: make([]Slot, 0, len(entry.Slots))}
		for _, slot := range entry.Slots {
			held := 0
			if old := lookupSlot(current, entry.Date, slot.Time); old != nil {
				held = old.Held()
			}
			if slot.Capacity < held {
				return nil, fmt.Errorf("%w: slot %q on %s has %d seats booked, capacity %d is too small",
					ErrValidation, slot.Time, entry.Date.Format(time.DateOnly), held, slot.Capacity)
			}
			next.Slots = append(next.Slots, Slot{
				Time:           slot.Time,
				Capacity:       slot.Capacity,
				AvailableSeats: slot.Capacity - held,
			})
		}
		out = append(out, next)
	}
	for _, entry := range current {
		for _, slot := range entry.Slots {
			if slot.Held() > 0 && lookupSlot(updated, entry.Date, slot.Time) == nil {
				return nil, fmt.Errorf("%w: slot %q on %s has %d seats booked and cannot be removed",
					ErrConflict, slot.Time, entry.Date.Format(time.DateOnly), slot.Held())
			}
		}
	}
	return out, nil
}

func lookupSlot(dates []DateEntry, day time.Time, label string) *Slot {
	for i := range dates {
		if !SameDay(dates[i].Date, day) {
			continue
		}
		for j := range dates[i].Slots {
			if dates[i].Slots[j].Time == label {
				return &dates[i].Slots[j]
			}
		}
	}
	return nil
}

func validCategory(c string) bool {
	for _, known := range EventCategories {
		if c == known {
			return true
		}
	}
	return false
}
