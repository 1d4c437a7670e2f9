package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSchedule(t *testing.T) *SessionSchedule {
	t.Helper()
	s, err := NewSessionSchedule("09:30", "16:00", "America/New_York")
	require.NoError(t, err)
	return s
}

func nyTime(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func TestClassify(t *testing.T) {
	s := newSchedule(t)

	// Tuesday mid-session
	assert.Equal(t, WindowIntraday, s.Classify(nyTime(t, 2026, time.March, 3, 10, 0)))
	// Tuesday just after close
	assert.Equal(t, WindowPostClose, s.Classify(nyTime(t, 2026, time.March, 3, 16, 1)))
	// Wednesday before open
	assert.Equal(t, WindowPostClose, s.Classify(nyTime(t, 2026, time.March, 4, 8, 0)))
	// Friday after close counts as weekend
	assert.Equal(t, WindowWeekend, s.Classify(nyTime(t, 2026, time.March, 6, 16, 1)))
	// Saturday
	assert.Equal(t, WindowWeekend, s.Classify(nyTime(t, 2026, time.March, 7, 12, 0)))
}

func TestExpiryIntradayEndsAtClose(t *testing.T) {
	s := newSchedule(t)
	// Fetched 10:00 on a trading day: expires at that session's close,
	// not 24 hours later.
	got := s.ExpiresAt(nyTime(t, 2026, time.March, 3, 10, 0))
	assert.Equal(t, nyTime(t, 2026, time.March, 3, 16, 0), got)
}

func TestExpiryPostCloseEndsNextOpen(t *testing.T) {
	s := newSchedule(t)
	// Tuesday 16:01 expires no earlier than Wednesday's open.
	got := s.ExpiresAt(nyTime(t, 2026, time.March, 3, 16, 1))
	assert.Equal(t, nyTime(t, 2026, time.March, 4, 9, 30), got)

	// Early morning before the open expires at that same morning's open.
	got = s.ExpiresAt(nyTime(t, 2026, time.March, 4, 7, 0))
	assert.Equal(t, nyTime(t, 2026, time.March, 4, 9, 30), got)
}

func TestExpiryWeekendEndsMondayOpen(t *testing.T) {
	s := newSchedule(t)
	monday := nyTime(t, 2026, time.March, 9, 9, 30)

	// Friday 16:01
	assert.Equal(t, monday, s.ExpiresAt(nyTime(t, 2026, time.March, 6, 16, 1)))
	// Saturday noon
	assert.Equal(t, monday, s.ExpiresAt(nyTime(t, 2026, time.March, 7, 12, 0)))
	// Sunday evening
	assert.Equal(t, monday, s.ExpiresAt(nyTime(t, 2026, time.March, 8, 20, 0)))
}

func TestBadScheduleConfig(t *testing.T) {
	_, err := NewSessionSchedule("9am", "16:00", "America/New_York")
	require.Error(t, err)
	_, err = NewSessionSchedule("09:30", "16:00", "Mars/Olympus")
	require.Error(t, err)
}
