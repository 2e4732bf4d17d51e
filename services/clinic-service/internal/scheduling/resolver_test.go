package scheduling

import (
	"errors"
	"testing"
	"time"
)

func at(hh, mm int) time.Time {
	return time.Date(2026, 2, 2, hh, mm, 0, 0, time.UTC)
}

func threeInARow() []Slot {
	return []Slot{
		{ID: "1", Start: at(9, 0), DurationMinutes: 30},
		{ID: "2", Start: at(9, 30), DurationMinutes: 30},
		{ID: "3", Start: at(10, 0), DurationMinutes: 30},
	}
}

func TestResizePushesFollowingAppointments(t *testing.T) {
	res, err := Resolve(Slot{ID: "1", Start: at(9, 0), DurationMinutes: 60}, threeInARow())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := []Shift{{ID: "2", NewStart: at(10, 0)}, {ID: "3", NewStart: at(10, 30)}}
	assertShifts(t, res.Shifts, want)
	if len(res.Overflow) != 0 {
		t.Fatalf("unexpected overflow %v", res.Overflow)
	}
}

func TestMoveLeavesEarlierAppointmentsAlone(t *testing.T) {
	res, err := Resolve(Slot{ID: "3", Start: at(9, 15), DurationMinutes: 30}, threeInARow())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	assertShifts(t, res.Shifts, []Shift{{ID: "2", NewStart: at(9, 45)}})
}

func TestRejectsStartBeforeOpening(t *testing.T) {
	for _, dur := range []int{15, 30, 90} {
		_, err := Resolve(Slot{ID: "1", Start: at(8, 30), DurationMinutes: dur}, threeInARow())
		if !errors.Is(err, ErrOutOfOperatingHours) {
			t.Fatalf("duration %d: expected ErrOutOfOperatingHours, got %v", dur, err)
		}
		var werr *WindowError
		if !errors.As(err, &werr) || !werr.Start.Equal(at(8, 30)) {
			t.Fatalf("expected WindowError carrying the rejected window, got %v", err)
		}
	}
}

func TestOperatingWindowEdges(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		dur   int
		ok    bool
	}{
		{"opening", at(9, 0), 30, true},
		{"ends at closing", at(20, 30), 30, true},
		{"runs past closing", at(20, 45), 30, false},
		{"starts at closing", at(21, 0), 15, false},
		{"one minute early", at(8, 59), 30, false},
	}
	for _, tc := range cases {
		_, err := Resolve(Slot{ID: "x", Start: tc.start, DurationMinutes: tc.dur}, nil)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrOutOfOperatingHours) {
			t.Fatalf("%s: expected rejection, got %v", tc.name, err)
		}
	}
}

func TestRejectsNonPositiveDuration(t *testing.T) {
	if _, err := Resolve(Slot{ID: "1", Start: at(10, 0)}, nil); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestIdempotentOnConflictFreeSchedule(t *testing.T) {
	day := []Slot{
		{ID: "a", Start: at(9, 0), DurationMinutes: 45},
		{ID: "b", Start: at(9, 45), DurationMinutes: 30},
		{ID: "c", Start: at(11, 0), DurationMinutes: 60},
		{ID: "d", Start: at(14, 0), DurationMinutes: 20},
	}
	for _, s := range day {
		res, err := Resolve(s, day)
		if err != nil {
			t.Fatalf("%s: Resolve failed: %v", s.ID, err)
		}
		if len(res.Shifts) != 0 {
			t.Fatalf("%s: expected no shifts, got %+v", s.ID, res.Shifts)
		}
	}
}

func TestTransitiveCascade(t *testing.T) {
	day := []Slot{
		{ID: "A", Start: at(10, 0), DurationMinutes: 30},
		{ID: "B", Start: at(10, 30), DurationMinutes: 45},
		{ID: "C", Start: at(11, 15), DurationMinutes: 20},
		{ID: "D", Start: at(13, 0), DurationMinutes: 30},
	}
	changed := Slot{ID: "A", Start: at(10, 0), DurationMinutes: 50}
	res, err := Resolve(changed, day)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	bStart := changed.End()
	cStart := bStart.Add(45 * time.Minute)
	assertShifts(t, res.Shifts, []Shift{{ID: "B", NewStart: bStart}, {ID: "C", NewStart: cStart}})
}

func TestGapStopsTheCascade(t *testing.T) {
	day := []Slot{
		{ID: "A", Start: at(9, 0), DurationMinutes: 30},
		{ID: "B", Start: at(9, 30), DurationMinutes: 30},
		{ID: "C", Start: at(11, 0), DurationMinutes: 30},
	}
	res, err := Resolve(Slot{ID: "A", Start: at(9, 0), DurationMinutes: 45}, day)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	assertShifts(t, res.Shifts, []Shift{{ID: "B", NewStart: at(9, 45)}})
}

func TestCanceledAppointmentsAreIgnored(t *testing.T) {
	day := threeInARow()
	day[1].Canceled = true
	res, err := Resolve(Slot{ID: "1", Start: at(9, 0), DurationMinutes: 90}, day)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	assertShifts(t, res.Shifts, []Shift{{ID: "3", NewStart: at(10, 30)}})
}

func TestRerunOnOutputIsEmpty(t *testing.T) {
	day := threeInARow()
	changed := Slot{ID: "1", Start: at(9, 0), DurationMinutes: 90}
	res, err := Resolve(changed, day)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	next := Apply(day, changed, res.Shifts)
	again, err := Resolve(changed, next)
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if len(again.Shifts) != 0 {
		t.Fatalf("expected empty shift list on rerun, got %+v", again.Shifts)
	}
	if a, b, ok := FirstOverlap(next); ok {
		t.Fatalf("schedule still overlaps: %s/%s", a, b)
	}
}

func TestShiftedStartsAreDistinct(t *testing.T) {
	day := []Slot{
		{ID: "a", Start: at(9, 0), DurationMinutes: 30},
		{ID: "b", Start: at(9, 10), DurationMinutes: 15},
		{ID: "c", Start: at(9, 10), DurationMinutes: 25},
		{ID: "d", Start: at(9, 20), DurationMinutes: 40},
		{ID: "e", Start: at(9, 30), DurationMinutes: 10},
	}
	res, err := Resolve(Slot{ID: "a", Start: at(9, 0), DurationMinutes: 30}, day)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	seen := map[time.Time]string{}
	for _, sh := range res.Shifts {
		if other, dup := seen[sh.NewStart]; dup {
			t.Fatalf("%s and %s share start %s", other, sh.ID, sh.NewStart)
		}
		seen[sh.NewStart] = sh.ID
	}
	if len(res.Shifts) != 4 {
		t.Fatalf("expected 4 shifts, got %+v", res.Shifts)
	}
}

func TestStableOrderForEqualStarts(t *testing.T) {
	day := []Slot{
		{ID: "first", Start: at(10, 0), DurationMinutes: 15},
		{ID: "second", Start: at(10, 0), DurationMinutes: 15},
	}
	res, err := Resolve(Slot{ID: "x", Start: at(9, 45), DurationMinutes: 30}, day)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	assertShifts(t, res.Shifts, []Shift{
		{ID: "first", NewStart: at(10, 15)},
		{ID: "second", NewStart: at(10, 30)},
	})
}

func TestCascadePastClosingIsPermissiveByDefault(t *testing.T) {
	day := []Slot{
		{ID: "late1", Start: at(20, 0), DurationMinutes: 30},
		{ID: "late2", Start: at(20, 30), DurationMinutes: 30},
	}
	changed := Slot{ID: "new", Start: at(19, 45), DurationMinutes: 30}
	res, err := Resolve(changed, day)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	assertShifts(t, res.Shifts, []Shift{
		{ID: "late1", NewStart: at(20, 15)},
		{ID: "late2", NewStart: at(20, 45)},
	})
	if len(res.Overflow) != 1 || res.Overflow[0] != "late2" {
		t.Fatalf("expected late2 to be reported as overflow, got %v", res.Overflow)
	}
}

func TestStrictPolicyRejectsOverflowingCascade(t *testing.T) {
	r := NewResolver(Policy{Hours: DefaultHours(time.UTC), StrictCascade: true})
	day := []Slot{{ID: "late", Start: at(20, 30), DurationMinutes: 30}}
	_, err := r.Resolve(Slot{ID: "new", Start: at(20, 15), DurationMinutes: 30}, day)
	if !errors.Is(err, ErrCascadeOutOfHours) {
		t.Fatalf("expected ErrCascadeOutOfHours, got %v", err)
	}
	var cerr *CascadeError
	if !errors.As(err, &cerr) || len(cerr.IDs) != 1 || cerr.IDs[0] != "late" {
		t.Fatalf("unexpected cascade error %v", err)
	}
}

func TestHoursUseClinicLocation(t *testing.T) {
	loc := time.FixedZone("GMT+1", 3600)
	r := NewResolver(Policy{Hours: DefaultHours(loc)})
	// 08:30 UTC is 09:30 at the clinic.
	start := time.Date(2026, 2, 2, 8, 30, 0, 0, time.UTC)
	if _, err := r.Resolve(Slot{ID: "x", Start: start, DurationMinutes: 30}, nil); err != nil {
		t.Fatalf("expected clinic-local 09:30 to be accepted: %v", err)
	}
	// 20:00 UTC is 21:00 at the clinic.
	late := time.Date(2026, 2, 2, 20, 0, 0, 0, time.UTC)
	if _, err := r.Resolve(Slot{ID: "y", Start: late, DurationMinutes: 30}, nil); !errors.Is(err, ErrOutOfOperatingHours) {
		t.Fatalf("expected clinic-local 21:00 start to be rejected, got %v", err)
	}
}

func assertShifts(t *testing.T, got, want []Shift) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d shifts, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i].ID != want[i].ID || !got[i].NewStart.Equal(want[i].NewStart) {
			t.Fatalf("shift %d: expected %s@%s, got %s@%s", i,
				want[i].ID, want[i].NewStart.Format("15:04"), got[i].ID, got[i].NewStart.Format("15:04"))
		}
	}
}
