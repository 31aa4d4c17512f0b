package model

import "time"

type BusinessHours struct {
	Weekday string `json:"weekday" bson:"weekday"`
	Open    string `json:"open" bson:"open"`
	Close   string `json:"close" bson:"close"`
	Closed  bool   `json:"closed" bson:"closed"`
}

// Agency is the read-only catalog view consumed by the availability engine.
type Agency struct {
	ID       string          `json:"id" bson:"_id"`
	Name     string          `json:"name" bson:"name"`
	TimeZone string          `json:"time_zone,omitempty" bson:"time_zone,omitempty"`
	Hours    []BusinessHours `json:"hours" bson:"hours"`
}

// HoursFor returns the hours for a weekday. Days missing from the catalog are closed.
func (a *Agency) HoursFor(day time.Weekday) BusinessHours {
	for _, h := range a.Hours {
		if h.Weekday == day.String() {
			return h
		}
	}
	return BusinessHours{Weekday: day.String(), Closed: true}
}

func (a *Agency) Location(fallback *time.Location) *time.Location {
	if a.TimeZone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(a.TimeZone)
	if err != nil {
		return fallback
	}
	return loc
}
