package trigger

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateTime fires at StartDate+TimeOfDay in the reference location. When
// Repeat is set it re-arms RepeatIntervalDays later; otherwise it completes.
type DateTime struct {
	loc *time.Location

	repeat    bool
	start     Date
	at        Clock
	interval  int
	completed bool
}

// NewDateTime builds a pending datetime trigger.
func NewDateTime(loc *time.Location, start Date, at Clock, repeat bool, intervalDays int) *DateTime {
	if loc == nil {
		loc = time.UTC
	}
	t := &DateTime{loc: loc, start: start, at: at, repeat: repeat}
	t.SetRepeatIntervalDays(intervalDays)
	return t
}

func newDateTimeDefault(env Env) Trigger {
	now := env.Now().In(env.Location)
	return NewDateTime(env.Location, DateOf(now), ClockOf(now), false, 1)
}

func (t *DateTime) Kind() Kind { return KindDateTime }

func (t *DateTime) Repeat() bool            { return t.repeat }
func (t *DateTime) SetRepeat(v bool)        { t.repeat = v }
func (t *DateTime) StartDate() Date         { return t.start }
func (t *DateTime) SetStartDate(d Date)     { t.start = d }
func (t *DateTime) TimeOfDay() Clock        { return t.at }
func (t *DateTime) SetTimeOfDay(c Clock)    { t.at = c }
func (t *DateTime) RepeatIntervalDays() int { return t.interval }
func (t *DateTime) Completed() bool         { return t.completed }

// SetRepeatIntervalDays stores n, clamped to at least one day.
func (t *DateTime) SetRepeatIntervalDays(n int) {
	t.interval = max(n, 1)
}

// Goal returns the absolute instant the trigger waits for.
func (t *DateTime) Goal() time.Time {
	return instant(t.start, t.at, t.loc)
}

func (t *DateTime) Check(now time.Time) bool {
	if t.completed {
		return false
	}
	return due(t.Goal(), now)
}

// Advance moves the trigger to its post-fire state.
func (t *DateTime) Advance(time.Time) {
	if !t.repeat {
		t.completed = true
		return
	}
	t.start = t.start.AddDays(t.interval)
}

type dateTimeWire struct {
	Kind               string  `json:"kind"`
	Repeat             *bool   `json:"repeat"`
	StartDate          *string `json:"startDate"`
	TimeOfDay          *string `json:"timeOfDay"`
	RepeatIntervalDays *int    `json:"repeatIntervalDays"`
	Completed          *bool   `json:"completed"`
}

func (t *DateTime) MarshalJSON() ([]byte, error) {
	start := t.start.String()
	at := t.at.String()
	return json.Marshal(dateTimeWire{
		Kind:               string(KindDateTime),
		Repeat:             &t.repeat,
		StartDate:          &start,
		TimeOfDay:          &at,
		RepeatIntervalDays: &t.interval,
		Completed:          &t.completed,
	})
}

func restoreDateTime(env Env, blob []byte) (Trigger, error) {
	var w dateTimeWire
	if err := json.Unmarshal(blob, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if err := checkKind(KindDateTime, w.Kind); err != nil {
		return nil, err
	}
	switch {
	case w.Repeat == nil:
		return nil, missing(KindDateTime, "repeat")
	case w.StartDate == nil:
		return nil, missing(KindDateTime, "startDate")
	case w.TimeOfDay == nil:
		return nil, missing(KindDateTime, "timeOfDay")
	case w.RepeatIntervalDays == nil:
		return nil, missing(KindDateTime, "repeatIntervalDays")
	case w.Completed == nil:
		return nil, missing(KindDateTime, "completed")
	}
	start, err := ParseDate(*w.StartDate)
	if err != nil {
		return nil, err
	}
	at, err := ParseClock(*w.TimeOfDay)
	if err != nil {
		return nil, err
	}
	t := NewDateTime(env.Location, start, at, *w.Repeat, *w.RepeatIntervalDays)
	t.completed = *w.Completed
	return t, nil
}
