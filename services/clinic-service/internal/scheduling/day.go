package scheduling

import (
	"sort"
	"time"
)

// DaySchedule returns the non-canceled slots starting on the same calendar date as day in loc,
// ordered by start. A nil loc uses day's location.
func DaySchedule(all []Slot, day time.Time, loc *time.Location) []Slot {
	if loc == nil {
		loc = day.Location()
	}
	y, m, d := day.In(loc).Date()

	out := make([]Slot, 0, len(all))
	for _, s := range all {
		if s.Canceled {
			continue
		}
		sy, sm, sd := s.Start.In(loc).Date()
		if sy == y && sm == m && sd == d {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Apply returns day with changed replacing its previous version and the shifts applied.
func Apply(day []Slot, changed Slot, shifts []Shift) []Slot {
	moved := make(map[string]time.Time, len(shifts))
	for _, sh := range shifts {
		moved[sh.ID] = sh.NewStart
	}

	out := make([]Slot, 0, len(day)+1)
	replaced := false
	for _, s := range day {
		if s.ID == changed.ID {
			out = append(out, changed)
			replaced = true
			continue
		}
		if start, ok := moved[s.ID]; ok {
			s.Start = start
		}
		out = append(out, s)
	}
	if !replaced {
		out = append(out, changed)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// FirstOverlap reports the first pair of non-canceled slots whose half-open windows intersect.
func FirstOverlap(day []Slot) (string, string, bool) {
	sorted := make([]Slot, 0, len(day))
	for _, s := range day {
		if !s.Canceled {
			sorted = append(sorted, s)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start.Before(sorted[i-1].End()) {
			return sorted[i-1].ID, sorted[i].ID, true
		}
	}
	return "", "", false
}
