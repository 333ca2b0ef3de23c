package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date, evaluated in the
// schedule's location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	raw := strings.TrimSpace(s)
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid clock time %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("clock time %q out of range", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// At pins the clock time onto day's calendar date in loc.
func (t TimeOfDay) At(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc)
}

// Window is the immutable daily schedule configuration. It is replaced
// wholesale (never partially mutated) to trigger a full re-plan.
//
// Quota maps each category to its daily post budget. A nil map means one
// fixed post and no opportunistic posts.
type Window struct {
	FixedTime TimeOfDay
	Start     TimeOfDay
	End       TimeOfDay

	MinInterval time.Duration
	MaxInterval time.Duration

	Quota map[Category]int

	// Location the whole schedule is evaluated in. Nil means host local
	// time; posts then follow whatever zone the process runs in.
	Location *time.Location
}

// Validate rejects configurations the planner cannot honor. The engine
// calls this synchronously before any planning, so a bad window never
// leaves the Stopped state.
func (w Window) Validate() error {
	if w.MinInterval <= 0 {
		return errors.New("min interval must be > 0")
	}
	if w.MaxInterval <= 0 {
		return errors.New("max interval must be > 0")
	}
	if w.MinInterval > w.MaxInterval {
		return fmt.Errorf("min interval %s exceeds max interval %s", w.MinInterval, w.MaxInterval)
	}
	if w.Start.Minutes() >= w.End.Minutes() {
		return fmt.Errorf("window start %s is not before window end %s", w.Start, w.End)
	}
	for cat, n := range w.Quota {
		if n < 0 {
			return fmt.Errorf("quota for %q must be >= 0", cat)
		}
	}
	return nil
}

func (w Window) loc() *time.Location {
	if w.Location == nil {
		return time.Local
	}
	return w.Location
}

// StartAt, EndAt and FixedAt pin the window's clock times onto day's date.
func (w Window) StartAt(day time.Time) time.Time { return w.Start.At(day, w.loc()) }
func (w Window) EndAt(day time.Time) time.Time   { return w.End.At(day, w.loc()) }
func (w Window) FixedAt(day time.Time) time.Time { return w.FixedTime.At(day, w.loc()) }

// DayStart returns midnight of day's date in the window's location.
// Quota reads use it as the "today" boundary.
func (w Window) DayStart(day time.Time) time.Time {
	y, m, d := day.In(w.loc()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, w.loc())
}

func (w Window) quotaFor(cat Category) int {
	if w.Quota == nil {
		if cat == CategoryFixed {
			return 1
		}
		return 0
	}
	return w.Quota[cat]
}
