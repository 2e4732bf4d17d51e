package scheduling

import (
	"errors"
	"fmt"
	"time"
)

const (
	OpenHour  = 9
	CloseHour = 21

	// DefaultDurationMinutes applies to appointments saved without a duration.
	DefaultDurationMinutes = 30
)

var (
	ErrOutOfOperatingHours = errors.New("appointment window is outside operating hours")
	ErrCascadeOutOfHours   = errors.New("cascade pushes an appointment past closing time")
	ErrInvalidDuration     = errors.New("duration must be a positive number of minutes")
)

// Hours is the clinic's bookable window on any given day.
// A nil Location evaluates each instant in its own location.
type Hours struct {
	Open     int
	Close    int
	Location *time.Location
}

func DefaultHours(loc *time.Location) Hours {
	return Hours{Open: OpenHour, Close: CloseHour, Location: loc}
}

// Bounds returns the opening and closing instants of the day containing t.
func (h Hours) Bounds(t time.Time) (time.Time, time.Time) {
	local := h.local(t)
	y, m, d := local.Date()
	loc := local.Location()
	return time.Date(y, m, d, h.Open, 0, 0, 0, loc), time.Date(y, m, d, h.Close, 0, 0, 0, loc)
}

// Contains reports whether [start, end) lies inside the window of start's day.
// Ending exactly at closing time is allowed.
func (h Hours) Contains(start, end time.Time) bool {
	if !end.After(start) {
		return false
	}
	open, closing := h.Bounds(start)
	return !start.Before(open) && start.Before(closing) && !end.After(closing)
}

func (h Hours) local(t time.Time) time.Time {
	if h.Location != nil {
		return t.In(h.Location)
	}
	return t
}

// WindowError reports a rejected appointment window.
type WindowError struct {
	ID    string
	Start time.Time
	End   time.Time
	Hours Hours
}

func (e *WindowError) Error() string {
	start, end := e.Hours.local(e.Start), e.Hours.local(e.End)
	return fmt.Sprintf("appointment %s: %s-%s is outside operating hours (%02d:00-%02d:00)",
		e.ID, start.Format("2006-01-02 15:04"), end.Format("15:04"), e.Hours.Open, e.Hours.Close)
}

func (e *WindowError) Unwrap() error { return ErrOutOfOperatingHours }

// CascadeError lists appointments a strict policy refused to push past closing time.
type CascadeError struct {
	IDs []string
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("%v: %v", ErrCascadeOutOfHours, e.IDs)
}

func (e *CascadeError) Unwrap() error { return ErrCascadeOutOfHours }

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
