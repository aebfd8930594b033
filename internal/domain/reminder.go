package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ReminderKind string

const (
	Reminder24h ReminderKind = "24h"
	Reminder1h  ReminderKind = "1h"
)

// Window returns the range of slot start offsets, relative to now, that make a reminder due.
func (k ReminderKind) Window() (from, to time.Duration) {
	switch k {
	case Reminder24h:
		return 23 * time.Hour, 25 * time.Hour
	case Reminder1h:
		return 45 * time.Minute, 2 * time.Hour
	}
	return 0, 0
}

func (b *Booking) ReminderSent(k ReminderKind) bool {
	if k == Reminder24h {
		return b.Reminder24hSent
	}
	return b.Reminder1hSent
}

// DueForReminder reports whether a confirmed booking should get reminder k at now.
func (b *Booking) DueForReminder(k ReminderKind, loc *time.Location, now time.Time) (bool, error) {
	if b.BookingStatus != BookingStatusConfirmed || b.ReminderSent(k) {
		return false, nil
	}
	start, err := SlotStart(b.EventDate, b.SlotTime, loc)
	if err != nil {
		return false, err
	}
	from, to := k.Window()
	return !start.Before(now.Add(from)) && !start.After(now.Add(to)), nil
}

// SlotStart combines a calendar date with a slot label such as "7:30 PM", "9 AM" or "18:00".
func SlotStart(date time.Time, label string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	fields := strings.Fields(strings.TrimSpace(label))
	if len(fields) == 0 || len(fields) > 2 {
		return time.Time{}, fmt.Errorf("%w: bad slot time %q", ErrValidation, label)
	}

	hm := strings.SplitN(fields[0], ":", 2)
	hours, err := strconv.Atoi(hm[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad slot time %q", ErrValidation, label)
	}
	minutes := 0
	if len(hm) == 2 {
		if minutes, err = strconv.Atoi(hm[1]); err != nil {
			return time.Time{}, fmt.Errorf("%w: bad slot time %q", ErrValidation, label)
		}
	}

	if len(fields) == 2 {
		switch strings.ToUpper(fields[1]) {
		case "PM":
			if hours != 12 {
				hours += 12
			}
		case "AM":
			if hours == 12 {
				hours = 0
			}
		default:
			return time.Time{}, fmt.Errorf("%w: bad slot time %q", ErrValidation, label)
		}
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return time.Time{}, fmt.Errorf("%w: bad slot time %q", ErrValidation, label)
	}

	y, m, d := date.Date()
	return time.Date(y, m, d, hours, minutes, 0, 0, loc), nil
}
