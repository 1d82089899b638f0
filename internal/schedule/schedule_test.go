package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, ReportingZone)
}

func TestNextTriggerSameDay(t *testing.T) {
	s := New(Options{})

	// Monday 2026-08-24, 10:30 local. First trigger is 11:00.
	now := at(2026, time.August, 24, 10, 30)
	require.Equal(t, at(2026, time.August, 24, 11, 0), s.NextTrigger(now))

	// Exactly on a trigger instant moves to the next one.
	require.Equal(t, at(2026, time.August, 24, 13, 0), s.NextTrigger(at(2026, time.August, 24, 11, 0)))
}

func TestNextTriggerSettleBuffer(t *testing.T) {
	s := New(Options{})

	// The 17:00 slot fires at 17:05.
	now := at(2026, time.August, 24, 16, 0)
	require.Equal(t, at(2026, time.August, 24, 17, 5), s.NextTrigger(now))

	// 17:02 is still before the settled instant.
	require.Equal(t, at(2026, time.August, 24, 17, 5), s.NextTrigger(at(2026, time.August, 24, 17, 2)))
}

func TestNextTriggerRollsPastSunday(t *testing.T) {
	s := New(Options{})

	// Saturday 2026-08-29 after the last trigger: Sunday is skipped entirely.
	now := at(2026, time.August, 29, 21, 30)
	require.Equal(t, at(2026, time.August, 31, 11, 0), s.NextTrigger(now))

	// Any instant on Sunday also lands on Monday 11:00.
	require.Equal(t, at(2026, time.August, 31, 11, 0), s.NextTrigger(at(2026, time.August, 30, 12, 0)))
}

func TestNextTriggerSaturdayEvening(t *testing.T) {
	s := New(Options{})

	// Saturday 20:00 still has the 21:00 end-of-day trigger ahead of it.
	now := at(2026, time.August, 29, 20, 0)
	require.Equal(t, at(2026, time.August, 29, 21, 0), s.NextTrigger(now))
}

func TestWindowFor(t *testing.T) {
	s := New(Options{})

	trigger := at(2026, time.August, 24, 13, 0)
	w := s.WindowFor(trigger)
	require.Equal(t, at(2026, time.August, 24, 11, 0), w.Start)
	require.Equal(t, trigger, w.End)
	require.Equal(t, trigger, w.DisplayEnd)
	require.False(t, w.EndOfDay)
	require.Equal(t, "2026-08-24 11:00 - 13:00 ET", w.Label())
}

func TestWindowForSettledTrigger(t *testing.T) {
	s := New(Options{})

	// 17:05 fetches through the trigger instant but displays the grid close.
	trigger := at(2026, time.August, 24, 17, 5)
	w := s.WindowFor(trigger)
	require.Equal(t, at(2026, time.August, 24, 15, 0), w.Start)
	require.Equal(t, trigger, w.End)
	require.Equal(t, at(2026, time.August, 24, 17, 0), w.DisplayEnd)
	require.Equal(t, "2026-08-24 15:00 - 17:00 ET", w.Label())
}

func TestEndOfDay(t *testing.T) {
	s := New(Options{})

	require.True(t, s.IsEndOfDayTrigger(at(2026, time.August, 24, 21, 0)))
	require.False(t, s.IsEndOfDayTrigger(at(2026, time.August, 24, 19, 0)))

	day := s.DayWindow(at(2026, time.August, 24, 21, 0))
	require.Equal(t, at(2026, time.August, 24, 9, 0), day.Start)
	require.Equal(t, at(2026, time.August, 24, 21, 0), day.End)
	require.True(t, day.EndOfDay)
	require.Equal(t, "2026-08-24 09:00 - 21:00 ET", day.Label())
}

func TestIsOperating(t *testing.T) {
	s := New(Options{})

	require.True(t, s.IsOperating(at(2026, time.August, 24, 9, 0)))
	require.True(t, s.IsOperating(at(2026, time.August, 24, 20, 59)))
	require.False(t, s.IsOperating(at(2026, time.August, 24, 21, 0)))
	require.False(t, s.IsOperating(at(2026, time.August, 24, 8, 59)))
	// Sunday is closed all day.
	require.False(t, s.IsOperating(at(2026, time.August, 30, 12, 0)))
	// Saturday is a business day.
	require.True(t, s.IsOperating(at(2026, time.August, 29, 12, 0)))
}

func TestCustomTimetable(t *testing.T) {
	s := New(Options{
		TriggerHours: []int{10, 14, 18},
		OpenHour:     8,
		CloseHour:    18,
	})

	now := at(2026, time.August, 24, 12, 0)
	require.Equal(t, at(2026, time.August, 24, 14, 0), s.NextTrigger(now))
	require.True(t, s.IsEndOfDayTrigger(at(2026, time.August, 24, 18, 0)))

	day := s.DayWindow(at(2026, time.August, 24, 18, 0))
	require.Equal(t, at(2026, time.August, 24, 8, 0), day.Start)
	require.Equal(t, at(2026, time.August, 24, 18, 0), day.End)
}
