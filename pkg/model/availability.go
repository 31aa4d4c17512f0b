package model

import (
	"slices"
	"time"
)

const (
	DateLayout = "2006-01-02"
	SlotLayout = "15:04"
)

type SlotOrigin string

const (
	OriginProvisional SlotOrigin = "provisional"
	OriginConfirmed   SlotOrigin = "confirmed"
	OriginBlocked     SlotOrigin = "blocked"
	OriginElapsed     SlotOrigin = "elapsed"
)

// rank orders origins so a stronger claim on a slot replaces a weaker one.
func (o SlotOrigin) rank() int {
	switch o {
	case OriginConfirmed:
		return 4
	case OriginBlocked:
		return 3
	case OriginProvisional:
		return 2
	case OriginElapsed:
		return 1
	default:
		return 0
	}
}

type BookedSlot struct {
	Time      string     `json:"time" bson:"time"`
	Origin    SlotOrigin `json:"origin" bson:"origin"`
	RequestID string     `json:"request_id,omitempty" bson:"request_id,omitempty"`
	Reason    string     `json:"reason,omitempty" bson:"reason,omitempty"`
}

// AvailabilitySet partitions the slots of one agency day into available and
// booked. Version guards read-modify-write cycles.
type AvailabilitySet struct {
	ID        string       `json:"-" bson:"_id"`
	AgencyID  string       `json:"agency_id" bson:"agency_id"`
	Date      string       `json:"date" bson:"date"`
	Available []string     `json:"available" bson:"available"`
	Booked    []BookedSlot `json:"booked" bson:"booked"`
	Version   int64        `json:"version" bson:"version"`
	UpdatedAt time.Time    `json:"updated_at" bson:"updated_at"`
}

func AvailabilityID(agencyID, date string) string {
	return agencyID + "|" + date
}

func NewAvailabilitySet(agencyID, date string) *AvailabilitySet {
	return &AvailabilitySet{
		ID:        AvailabilityID(agencyID, date),
		AgencyID:  agencyID,
		Date:      date,
		Available: []string{},
		Booked:    []BookedSlot{},
	}
}

func (s *AvailabilitySet) Clone() *AvailabilitySet {
	c := *s
	c.Available = slices.Clone(s.Available)
	c.Booked = slices.Clone(s.Booked)
	if c.Available == nil {
		c.Available = []string{}
	}
	if c.Booked == nil {
		c.Booked = []BookedSlot{}
	}
	return &c
}

func (s *AvailabilitySet) IsAvailable(slot string) bool {
	_, found := slices.BinarySearch(s.Available, slot)
	return found
}

func (s *AvailabilitySet) BookedAt(slot string) (BookedSlot, bool) {
	for _, b := range s.Booked {
		if b.Time == slot {
			return b, true
		}
	}
	return BookedSlot{}, false
}

// Book moves a slot into the booked side. An existing booking is replaced
// only by an origin of equal or higher rank.
func (s *AvailabilitySet) Book(b BookedSlot) bool {
	changed := s.removeAvailable(b.Time)

	for i, existing := range s.Booked {
		if existing.Time != b.Time {
			continue
		}
		if existing == b || existing.Origin.rank() > b.Origin.rank() {
			return changed
		}
		s.Booked[i] = b
		return true
	}

	idx, _ := slices.BinarySearchFunc(s.Booked, b.Time, func(e BookedSlot, t string) int {
		switch {
		case e.Time < t:
			return -1
		case e.Time > t:
			return 1
		}
		return 0
	})
	s.Booked = slices.Insert(s.Booked, idx, b)
	return true
}

// Free moves a slot back to the available side.
func (s *AvailabilitySet) Free(slot string) bool {
	changed := s.removeBooked(slot)
	idx, found := slices.BinarySearch(s.Available, slot)
	if found {
		return changed
	}
	s.Available = slices.Insert(s.Available, idx, slot)
	return true
}

// Drop removes a slot from both sides.
func (s *AvailabilitySet) Drop(slot string) bool {
	a := s.removeAvailable(slot)
	b := s.removeBooked(slot)
	return a || b
}

func (s *AvailabilitySet) removeAvailable(slot string) bool {
	idx, found := slices.BinarySearch(s.Available, slot)
	if !found {
		return false
	}
	s.Available = slices.Delete(s.Available, idx, idx+1)
	return true
}

func (s *AvailabilitySet) removeBooked(slot string) bool {
	for i, b := range s.Booked {
		if b.Time == slot {
			s.Booked = slices.Delete(s.Booked, i, i+1)
			return true
		}
	}
	return false
}

// Details labels every booked slot for display.
func (s *AvailabilitySet) Details() map[string]string {
	details := make(map[string]string, len(s.Booked))
	for _, b := range s.Booked {
		switch b.Origin {
		case OriginBlocked:
			details[b.Time] = "Blocked: " + b.Reason
		case OriginConfirmed:
			details[b.Time] = "Booked: request " + b.RequestID
		case OriginProvisional:
			details[b.Time] = "Held: request " + b.RequestID
		case OriginElapsed:
			details[b.Time] = "Elapsed"
		}
	}
	return details
}

type BlockedSlot struct {
	ID            string    `json:"id" bson:"_id"`
	AgencyID      string    `json:"agency_id" bson:"agency_id"`
	Date          string    `json:"date" bson:"date"`
	Time          string    `json:"time" bson:"time"`
	Reason        string    `json:"reason" bson:"reason"`
	BlockedByID   string    `json:"blocked_by_id" bson:"blocked_by_id"`
	BlockedByName string    `json:"blocked_by_name,omitempty" bson:"blocked_by_name,omitempty"`
	BlockedAt     time.Time `json:"blocked_at" bson:"blocked_at"`
}

// BlockInput is the staff-facing input for withdrawing a slot.
type BlockInput struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Time   string `json:"time" validate:"required,datetime=15:04"`
	Reason string `json:"reason" validate:"required,min=2,max=500"`
}

// SlotManagement is published when a slot is blocked or unblocked.
type SlotManagement struct {
	AgencyID  string `json:"agency_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Blocked   bool   `json:"blocked"`
	Reason    string `json:"reason,omitempty"`
	StaffName string `json:"staff_name,omitempty"`
}
