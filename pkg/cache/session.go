package cache

import (
	"fmt"
	"time"
)

// SessionWindow categorizes when an entry was fetched relative to the
// trading session. Expiry is tied to session boundaries, not a fixed
// duration: volatility metrics do not move while markets are closed.
type SessionWindow string

const (
	WindowIntraday  SessionWindow = "intraday"
	WindowPostClose SessionWindow = "post-close"
	WindowWeekend   SessionWindow = "weekend"
)

// SessionSchedule knows the market's open and close times and derives cache
// expiry from them.
type SessionSchedule struct {
	openHour, openMin   int
	closeHour, closeMin int
	loc                 *time.Location
}

// NewSessionSchedule parses "15:04"-style open/close times in the given IANA
// timezone.
func NewSessionSchedule(open, close, tz string) (*SessionSchedule, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", tz, err)
	}
	oh, om, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("parse open time: %w", err)
	}
	ch, cm, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("parse close time: %w", err)
	}
	return &SessionSchedule{openHour: oh, openMin: om, closeHour: ch, closeMin: cm, loc: loc}, nil
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// Classify returns the session window containing t.
func (s *SessionSchedule) Classify(t time.Time) SessionWindow {
	lt := t.In(s.loc)
	switch lt.Weekday() {
	case time.Saturday, time.Sunday:
		return WindowWeekend
	case time.Friday:
		if !lt.Before(s.closeOn(lt)) {
			return WindowWeekend
		}
	}
	if !lt.Before(s.openOn(lt)) && lt.Before(s.closeOn(lt)) {
		return WindowIntraday
	}
	return WindowPostClose
}

// ExpiresAt computes when an entry fetched at t stops being fresh: intraday
// entries expire at that day's close, post-close entries at the next open,
// weekend entries (including Friday after the close) at Monday's open.
func (s *SessionSchedule) ExpiresAt(t time.Time) time.Time {
	lt := t.In(s.loc)
	switch s.Classify(t) {
	case WindowIntraday:
		return s.closeOn(lt)
	case WindowWeekend:
		d := lt
		for d.Weekday() != time.Monday || !s.openOn(d).After(lt) {
			d = d.AddDate(0, 0, 1)
		}
		return s.openOn(d)
	default: // post-close
		if lt.Before(s.openOn(lt)) {
			return s.openOn(lt)
		}
		return s.openOn(lt.AddDate(0, 0, 1))
	}
}

func (s *SessionSchedule) openOn(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), s.openHour, s.openMin, 0, 0, s.loc)
}

func (s *SessionSchedule) closeOn(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), s.closeHour, s.closeMin, 0, 0, s.loc)
}
