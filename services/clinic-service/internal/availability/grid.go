package availability

import (
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
)

const (
	SlotMinutes = 30

	BreakLunch              = "lunch"
	BreakEndOfConsultations = "end_of_consultations"
	BreakSunday             = "sunday"
	BreakSaturdayAfternoon  = "saturday_afternoon"
)

// TimeSlots returns the half-hour grid of day from opening to the last start before closing,
// in day's location.
func TimeSlots(day time.Time) []time.Time {
	y, m, d := day.Date()
	loc := day.Location()
	open := time.Date(y, m, d, scheduling.OpenHour, 0, 0, 0, loc)
	closing := time.Date(y, m, d, scheduling.CloseHour, 0, 0, 0, loc)

	var out []time.Time
	for t := open; t.Before(closing); t = t.Add(SlotMinutes * time.Minute) {
		out = append(out, t)
	}
	return out
}

// BreakReason names why t is greyed out on the agenda grid, or returns "" when bookable.
func BreakReason(t time.Time) string {
	switch t.Weekday() {
	case time.Sunday:
		return BreakSunday
	case time.Saturday:
		if t.Hour() >= 13 {
			return BreakSaturdayAfternoon
		}
	}
	hm := t.Hour()*60 + t.Minute()
	switch {
	case hm >= 14*60 && hm < 14*60+30:
		return BreakLunch
	case hm >= 17*60+30:
		return BreakEndOfConsultations
	}
	return ""
}

type GridCell struct {
	Start       time.Time `json:"start"`
	BreakReason string    `json:"break_reason,omitempty"`
	Busy        bool      `json:"busy"`
}

// Grid labels every slot of day with its break reason and whether an appointment covers it.
func Grid(day time.Time, busy []Interval) []GridCell {
	slots := TimeSlots(day)
	out := make([]GridCell, 0, len(slots))
	for _, s := range slots {
		out = append(out, GridCell{
			Start:       s,
			BreakReason: BreakReason(s),
			Busy:        overlapsAny(s, s.Add(SlotMinutes*time.Minute), busy),
		})
	}
	return out
}
