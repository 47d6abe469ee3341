package trigger

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Kind tags a trigger variant in its serialized form.
type Kind string

const (
	KindDateTime  Kind = "datetime"
	KindDaysLater Kind = "dayslater"
	KindCron      Kind = "cron"
)

// StalenessWindow is the maximum lateness after which a pending trigger is
// treated as missed instead of fired.
const StalenessWindow = time.Hour

// Trigger is one time condition.
//
// Check and Advance are pure in-memory operations. The scheduler calls
// Advance exactly once, with the same now, right after Check returned true.
type Trigger interface {
	Kind() Kind
	Check(now time.Time) bool
	Advance(now time.Time)
	// Goal is the instant the trigger currently waits for (zero if none).
	Goal() time.Time
	Completed() bool
	json.Marshaler
}

// Marshal serializes t into the blob stored alongside a post.
func Marshal(t Trigger) (string, error) {
	b, err := t.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal %s trigger: %w", t.Kind(), err)
	}
	return string(b), nil
}

// due reports whether goal was crossed no more than StalenessWindow ago.
func due(goal, now time.Time) bool {
	if goal.IsZero() {
		return false
	}
	excess := now.Sub(goal)
	if excess > StalenessWindow {
		return false
	}
	return excess > 0
}

// ---- civil date / clock ----

// Date is a calendar day without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q, expected YYYY-MM-DD", ErrInvalidTimeFormat, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// AddDays moves d by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Clock is a wall-clock time of day with minute granularity.
type Clock struct {
	Hour   int
	Minute int
}

var reClock = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	m := reClock.FindStringSubmatch(s)
	if len(m) != 3 {
		return Clock{}, fmt.Errorf("%w: time %q, expected HH:MM", ErrInvalidTimeFormat, s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return Clock{}, fmt.Errorf("%w: time %q out of range", ErrInvalidTimeFormat, s)
	}
	return Clock{Hour: h, Minute: mm}, nil
}

// ClockOf returns the hour and minute of t in t's own location.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// instant combines a day and a clock in loc.
func instant(d Date, c Clock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// ---- wire helpers ----

func missing(kind Kind, field string) error {
	return fmt.Errorf("%w: %s trigger missing %q", ErrMalformedBlob, kind, field)
}

func checkKind(want Kind, got string) error {
	if Kind(got) != want {
		return fmt.Errorf("%w: kind %q restored as %s", ErrMalformedBlob, got, want)
	}
	return nil
}
