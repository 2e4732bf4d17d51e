package scheduling

import (
	"sort"
	"time"
)

// Slot is the view of an appointment the resolver works on.
type Slot struct {
	ID              string
	Start           time.Time
	DurationMinutes int
	Canceled        bool
}

func (s Slot) End() time.Time {
	return s.Start.Add(minutes(s.duration()))
}

func (s Slot) duration() int {
	if s.DurationMinutes <= 0 {
		return DefaultDurationMinutes
	}
	return s.DurationMinutes
}

// Shift moves one appointment to a new start.
type Shift struct {
	ID       string    `json:"id"`
	NewStart time.Time `json:"new_start"`
}

// Resolution is the outcome of one change. Overflow lists shifted ids that now end after closing time.
type Resolution struct {
	Shifts   []Shift  `json:"shifts"`
	Overflow []string `json:"overflow,omitempty"`
}

type Policy struct {
	Hours Hours
	// StrictCascade rejects a change whose cascade would push any appointment past closing time.
	StrictCascade bool
}

type Resolver struct {
	policy Policy
}

func NewResolver(p Policy) *Resolver {
	if p.Hours.Open == 0 && p.Hours.Close == 0 {
		p.Hours = DefaultHours(p.Hours.Location)
	}
	return &Resolver{policy: p}
}

func (r *Resolver) Hours() Hours {
	return r.policy.Hours
}

// Resolve returns the shifts needed so that no appointment starting at or after
// changed.Start overlaps the one before it.
//
// Candidates are sorted once by their current start and walked with a cursor that starts at
// changed's end. An overlapping candidate is moved to the cursor; a free one only advances the
// cursor to its own end. Cascaded shifts are not rejected unless the policy is strict.
func (r *Resolver) Resolve(changed Slot, day []Slot) (Resolution, error) {
	if changed.DurationMinutes <= 0 {
		return Resolution{}, ErrInvalidDuration
	}
	if err := r.Validate(changed); err != nil {
		return Resolution{}, err
	}

	candidates := make([]Slot, 0, len(day))
	for _, s := range day {
		if s.ID == changed.ID || s.Canceled || s.Start.Before(changed.Start) {
			continue
		}
		candidates = append(candidates, s)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Start.Before(candidates[j].Start)
	})

	res := Resolution{Shifts: []Shift{}}
	cursor := changed.End()
	for _, s := range candidates {
		if !s.Start.Before(cursor) {
			cursor = s.End()
			continue
		}
		newEnd := cursor.Add(minutes(s.duration()))
		res.Shifts = append(res.Shifts, Shift{ID: s.ID, NewStart: cursor})
		if !r.policy.Hours.Contains(cursor, newEnd) {
			res.Overflow = append(res.Overflow, s.ID)
		}
		cursor = newEnd
	}

	if r.policy.StrictCascade && len(res.Overflow) > 0 {
		return Resolution{}, &CascadeError{IDs: res.Overflow}
	}
	return res, nil
}

// Validate checks the slot's own window against operating hours.
func (r *Resolver) Validate(s Slot) error {
	if !r.policy.Hours.Contains(s.Start, s.End()) {
		return &WindowError{ID: s.ID, Start: s.Start, End: s.End(), Hours: r.policy.Hours}
	}
	return nil
}

// Resolve runs the default policy (09:00-21:00, permissive cascade) in each instant's own location.
func Resolve(changed Slot, day []Slot) (Resolution, error) {
	return NewResolver(Policy{Hours: DefaultHours(nil)}).Resolve(changed, day)
}
