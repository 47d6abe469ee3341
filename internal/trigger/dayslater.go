package trigger

import (
	"encoding/json"
	"fmt"
	"time"
)

// DaysLater fires once, DaysLater calendar days after StartDate at TimeOfDay.
// A negative offset means the start day itself.
type DaysLater struct {
	loc *time.Location

	start     Date
	at        Clock
	days      int
	completed bool
}

func NewDaysLater(loc *time.Location, start Date, at Clock, days int) *DaysLater {
	if loc == nil {
		loc = time.UTC
	}
	t := &DaysLater{loc: loc, start: start, at: at}
	t.SetDaysLater(days)
	return t
}

func newDaysLaterDefault(env Env) Trigger {
	now := env.Now().In(env.Location)
	return NewDaysLater(env.Location, DateOf(now), ClockOf(now), 0)
}

func (t *DaysLater) Kind() Kind         { return KindDaysLater }
func (t *DaysLater) StartDate() Date    { return t.start }
func (t *DaysLater) TimeOfDay() Clock   { return t.at }
func (t *DaysLater) DaysLater() int     { return t.days }
func (t *DaysLater) Completed() bool    { return t.completed }
func (t *DaysLater) SetDaysLater(n int) { t.days = max(n, 0) }

func (t *DaysLater) Goal() time.Time {
	return instant(t.start.AddDays(t.days), t.at, t.loc)
}

func (t *DaysLater) Check(now time.Time) bool {
	if t.completed {
		return false
	}
	return due(t.Goal(), now)
}

func (t *DaysLater) Advance(time.Time) { t.completed = true }

type daysLaterWire struct {
	Kind      string  `json:"kind"`
	StartDate *string `json:"startDate"`
	TimeOfDay *string `json:"timeOfDay"`
	DaysLater *int    `json:"daysLater"`
	Completed *bool   `json:"completed"`
}

func (t *DaysLater) MarshalJSON() ([]byte, error) {
	start := t.start.String()
	at := t.at.String()
	return json.Marshal(daysLaterWire{
		Kind:      string(KindDaysLater),
		StartDate: &start,
		TimeOfDay: &at,
		DaysLater: &t.days,
		Completed: &t.completed,
	})
}

func restoreDaysLater(env Env, blob []byte) (Trigger, error) {
	var w daysLaterWire
	if err := json.Unmarshal(blob, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if err := checkKind(KindDaysLater, w.Kind); err != nil {
		return nil, err
	}
	switch {
	case w.StartDate == nil:
		return nil, missing(KindDaysLater, "startDate")
	case w.TimeOfDay == nil:
		return nil, missing(KindDaysLater, "timeOfDay")
	case w.DaysLater == nil:
		return nil, missing(KindDaysLater, "daysLater")
	case w.Completed == nil:
		return nil, missing(KindDaysLater, "completed")
	}
	start, err := ParseDate(*w.StartDate)
	if err != nil {
		return nil, err
	}
	at, err := ParseClock(*w.TimeOfDay)
	if err != nil {
		return nil, err
	}
	t := NewDaysLater(env.Location, start, at, *w.DaysLater)
	t.completed = *w.Completed
	return t, nil
}
