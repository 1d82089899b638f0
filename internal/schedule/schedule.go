package schedule

import (
	"time"
)

// ReportingZone is the fixed offset every schedule and report computation
// uses. The business operates on US Eastern daylight time; keeping one
// offset year-round means report boundaries never shift across a DST
// cutover.
var ReportingZone = time.FixedZone("EDT", -4*60*60)

// Defaults for the reporting calendar. Triggers fire on business days only;
// each one covers the preceding two hours of data.
const (
	DefaultOpenHour  = 9
	DefaultCloseHour = 21

	// The late-afternoon trigger waits an extra settling buffer so the
	// provider and the spreadsheet both catch up before the fetch. The
	// buffer is invisible in user-facing output.
	DefaultSettleHour   = 17
	DefaultSettleBuffer = 5 * time.Minute

	windowSpan = 2 * time.Hour
)

// DefaultTriggerHours is the daily report timetable in local hours.
var DefaultTriggerHours = []int{11, 13, 15, 17, 19, 21}

// Window is one reporting period. Start/End are the half-open fetch bounds;
// DisplayEnd trims the settling buffer so rendered ranges stay on the
// advertised grid.
type Window struct {
	Start      time.Time
	End        time.Time
	DisplayEnd time.Time
	TriggerAt  time.Time
	EndOfDay   bool
}

// Label renders the window range for user-facing output, settling buffer
// excluded.
func (w Window) Label() string {
	start := w.Start.In(ReportingZone)
	end := w.DisplayEnd.In(ReportingZone)
	return start.Format("2006-01-02 15:04") + " - " + end.Format("15:04") + " ET"
}

// Scheduler computes trigger instants and their report windows from a fixed
// daily timetable.
type Scheduler struct {
	zone         *time.Location
	triggerHours []int
	openHour     int
	closeHour    int
	settleHour   int
	settle       time.Duration
}

// Options override the default calendar. Zero values keep the defaults.
type Options struct {
	Zone         *time.Location
	TriggerHours []int
	OpenHour     int
	CloseHour    int
	SettleHour   int
	SettleBuffer time.Duration
}

// New builds a scheduler, filling unset options with the defaults above.
func New(opts Options) *Scheduler {
	s := &Scheduler{
		zone:         opts.Zone,
		triggerHours: opts.TriggerHours,
		openHour:     opts.OpenHour,
		closeHour:    opts.CloseHour,
		settleHour:   opts.SettleHour,
		settle:       opts.SettleBuffer,
	}
	if s.zone == nil {
		s.zone = ReportingZone
	}
	if len(s.triggerHours) == 0 {
		s.triggerHours = DefaultTriggerHours
	}
	if s.openHour == 0 {
		s.openHour = DefaultOpenHour
	}
	if s.closeHour == 0 {
		s.closeHour = DefaultCloseHour
	}
	if s.settleHour == 0 {
		s.settleHour = DefaultSettleHour
	}
	if s.settle == 0 {
		s.settle = DefaultSettleBuffer
	}
	return s
}

// IsOperating reports whether t falls inside the business calendar:
// Monday through Saturday, local hour within [open, close).
func (s *Scheduler) IsOperating(t time.Time) bool {
	local := t.In(s.zone)
	if local.Weekday() == time.Sunday {
		return false
	}
	hour := local.Hour()
	return hour >= s.openHour && hour < s.closeHour
}

// NextTrigger returns the first timetable instant strictly after now. When
// no trigger remains today, or today is Sunday, it is the first trigger of
// the next non-Sunday day.
func (s *Scheduler) NextTrigger(now time.Time) time.Time {
	local := now.In(s.zone)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.zone)
	for {
		if day.Weekday() != time.Sunday {
			for _, hour := range s.triggerHours {
				trigger := s.triggerInstant(day, hour)
				if trigger.After(now) {
					return trigger
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
}

// WindowFor maps a trigger instant to its two-hour report window. The
// settling trigger fetches through trigger time but displays the on-grid
// close.
func (s *Scheduler) WindowFor(trigger time.Time) Window {
	local := trigger.In(s.zone)
	gridEnd := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, s.zone)
	return Window{
		Start:      gridEnd.Add(-windowSpan),
		End:        trigger,
		DisplayEnd: gridEnd,
		TriggerAt:  trigger,
	}
}

// IsEndOfDayTrigger reports whether the trigger is the final one of its day
// and therefore also produces the full-day rollup.
func (s *Scheduler) IsEndOfDayTrigger(trigger time.Time) bool {
	return trigger.In(s.zone).Hour() == s.lastTriggerHour()
}

// DayWindow is the full business-day rollup window for an end-of-day
// trigger.
func (s *Scheduler) DayWindow(trigger time.Time) Window {
	local := trigger.In(s.zone)
	open := time.Date(local.Year(), local.Month(), local.Day(), s.openHour, 0, 0, 0, s.zone)
	close := time.Date(local.Year(), local.Month(), local.Day(), s.closeHour, 0, 0, 0, s.zone)
	return Window{
		Start:      open,
		End:        close,
		DisplayEnd: close,
		TriggerAt:  trigger,
		EndOfDay:   true,
	}
}

func (s *Scheduler) triggerInstant(day time.Time, hour int) time.Time {
	trigger := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, s.zone)
	if hour == s.settleHour {
		trigger = trigger.Add(s.settle)
	}
	return trigger
}

func (s *Scheduler) lastTriggerHour() int {
	return s.triggerHours[len(s.triggerHours)-1]
}
