package event

import (
	"fmt"
	"time"
)

// Remaining is the time left before the event starts, split for display.
type Remaining struct {
	Days    int  `json:"days"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Seconds int  `json:"seconds"`
	Started bool `json:"started"`
}

// Countdown splits start-now into whole units. Once start is reached every
// unit is zero and Started is set.
func Countdown(now, start time.Time) Remaining {
	d := start.Sub(now)
	if d <= 0 {
		return Remaining{Started: true}
	}
	secs := int(d / time.Second)
	return Remaining{
		Days:    secs / 86400,
		Hours:   secs % 86400 / 3600,
		Minutes: secs % 3600 / 60,
		Seconds: secs % 60,
	}
}

func (r Remaining) String() string {
	if r.Started {
		return "started"
	}
	return fmt.Sprintf("%dd %02dh %02dm %02ds", r.Days, r.Hours, r.Minutes, r.Seconds)
}
