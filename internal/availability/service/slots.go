package service

import (
	"fmt"
	"slices"
	"time"

	"agencydesk/pkg/model"
)

const slotLength = time.Hour

// day is an agency date resolved to its zone, hours and generated slots.
type day struct {
	agency *model.Agency
	loc    *time.Location
	date   string
	start  time.Time
	now    time.Time
	slots  []string
}

func (d *day) isPast() bool {
	return d.date < d.now.Format(model.DateLayout)
}

func (d *day) isToday() bool {
	return d.date == d.now.Format(model.DateLayout)
}

func (d *day) inHours(slot string) bool {
	_, found := slices.BinarySearch(d.slots, slot)
	return found
}

// slotStart returns the instant a "HH:MM" slot begins on this day.
func (d *day) slotStart(slot string) (time.Time, error) {
	t, err := time.Parse(model.SlotLayout, slot)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.start.Year(), d.start.Month(), d.start.Day(), t.Hour(), t.Minute(), 0, 0, d.loc), nil
}

// hasStarted reports whether a slot starts at or before now.
func (d *day) hasStarted(slot string) bool {
	start, err := d.slotStart(slot)
	if err != nil {
		return false
	}
	return !start.After(d.now)
}

// slotFor maps a local instant to the in-hours slot that contains it, or to its
// own "HH:MM" when it falls outside hours.
func (d *day) slotFor(at time.Time) string {
	local := at.In(d.loc)
	for _, slot := range d.slots {
		start, err := d.slotStart(slot)
		if err != nil {
			continue
		}
		if !local.Before(start) && local.Before(start.Add(slotLength)) {
			return slot
		}
	}
	return local.Format(model.SlotLayout)
}

// generateSlots lists the 1-hour slots starting from open and before close.
func generateSlots(hours model.BusinessHours) ([]string, error) {
	if hours.Closed {
		return []string{}, nil
	}
	open, err := time.Parse(model.SlotLayout, hours.Open)
	if err != nil {
		return nil, fmt.Errorf("invalid open time %q: %w", hours.Open, err)
	}
	closing, err := time.Parse(model.SlotLayout, hours.Close)
	if err != nil {
		return nil, fmt.Errorf("invalid close time %q: %w", hours.Close, err)
	}

	slots := []string{}
	for t := open; t.Before(closing); t = t.Add(slotLength) {
		slots = append(slots, t.Format(model.SlotLayout))
	}
	return slots, nil
}
