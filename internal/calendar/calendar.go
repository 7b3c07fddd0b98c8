// Package calendar answers "is this instant inside a trading session?".
// Sessions are fixed intraday windows on weekdays; no holiday calendar is
// modeled.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is an intraday session, minutes since midnight, half-open [Open, Close).
type Window struct {
	Open  int
	Close int
}

func (w Window) contains(minute int) bool {
	return minute >= w.Open && minute < w.Close
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Open/60, w.Open%60, w.Close/60, w.Close%60)
}

// ParseWindow parses "HH:MM"-"HH:MM" bounds into a Window.
func ParseWindow(open, close string) (Window, error) {
	oh, om, err := parseHHMM(open)
	if err != nil {
		return Window{}, err
	}
	ch, cm, err := parseHHMM(close)
	if err != nil {
		return Window{}, err
	}
	w := Window{Open: oh*60 + om, Close: ch*60 + cm}
	if w.Close <= w.Open {
		return Window{}, fmt.Errorf("session close %s must be after open %s", close, open)
	}
	return w, nil
}

// Calendar holds the exchange session windows. The zero value is not usable;
// construct with New or Default.
type Calendar struct {
	morning   Window
	afternoon Window
	loc       *time.Location
}

// Default returns the standard sessions: 09:30-11:30 and 13:00-15:00 local
// time, Monday through Friday.
func Default() Calendar {
	return Calendar{
		morning:   Window{Open: 9*60 + 30, Close: 11*60 + 30},
		afternoon: Window{Open: 13 * 60, Close: 15 * 60},
		loc:       time.Local,
	}
}

func New(morning, afternoon Window, loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{morning: morning, afternoon: afternoon, loc: loc}
}

// IsOpen reports whether t falls inside a trading session. Saturday and
// Sunday are always closed. Pure: no side effects, no clock reads.
func (c Calendar) IsOpen(t time.Time) bool {
	t = t.In(c.location())
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return c.morning.contains(minute) || c.afternoon.contains(minute)
}

// OpenTime is the wall-clock time the market opens (morning session open).
func (c Calendar) OpenTime() (hour, minute int) {
	return c.morning.Open / 60, c.morning.Open % 60
}

// CloseTime is the wall-clock time the market closes (afternoon session close).
func (c Calendar) CloseTime() (hour, minute int) {
	return c.afternoon.Close / 60, c.afternoon.Close % 60
}

func (c Calendar) Location() *time.Location { return c.location() }

func (c Calendar) location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
