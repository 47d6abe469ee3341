package trigger

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func mustClock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	require.NoError(t, err)
	return c
}

func TestDateTimeRepeatAdvance(t *testing.T) {
	t.Parallel()
	loc := tokyo(t)
	tr := NewDateTime(loc, mustDate(t, "2024-01-10"), mustClock(t, "09:00"), true, 3)

	now := time.Date(2024, 1, 10, 9, 0, 1, 0, loc)
	require.True(t, tr.Check(now))

	tr.Advance(now)
	assert.Equal(t, "2024-01-13", tr.StartDate().String())
	assert.Equal(t, "09:00", tr.TimeOfDay().String())
	assert.False(t, tr.Completed())
	assert.False(t, tr.Check(now))
	assert.Equal(t, time.Date(2024, 1, 13, 9, 0, 0, 0, loc), tr.Goal())
}

func TestDateTimeNonRepeatCompletes(t *testing.T) {
	t.Parallel()
	loc := tokyo(t)
	tr := NewDateTime(loc, mustDate(t, "2024-01-10"), mustClock(t, "09:00"), false, 3)

	now := time.Date(2024, 1, 10, 9, 0, 1, 0, loc)
	require.True(t, tr.Check(now))
	tr.Advance(now)

	assert.True(t, tr.Completed())
	for _, later := range []time.Duration{0, time.Second, time.Hour, 24 * time.Hour, 10 * 365 * 24 * time.Hour} {
		assert.False(t, tr.Check(now.Add(later)), "check at +%s", later)
	}
}

func TestDateTimeCompletedIsTerminal(t *testing.T) {
	t.Parallel()
	loc := tokyo(t)
	tr := NewDateTime(loc, mustDate(t, "2030-05-01"), mustClock(t, "12:30"), true, 1)
	tr.completed = true

	goal := tr.Goal()
	for _, at := range []time.Time{goal.Add(-time.Minute), goal.Add(time.Second), goal.Add(30 * time.Minute), goal.AddDate(50, 0, 0)} {
		assert.False(t, tr.Check(at))
	}
}

func TestDateTimeStalenessGuard(t *testing.T) {
	t.Parallel()
	loc := tokyo(t)
	tr := NewDateTime(loc, mustDate(t, "2024-03-01"), mustClock(t, "18:45"), false, 1)
	goal := tr.Goal()

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "before goal", now: goal.Add(-time.Second), want: false},
		{name: "at goal", now: goal, want: false},
		{name: "one second late", now: goal.Add(time.Second), want: true},
		{name: "exactly window", now: goal.Add(StalenessWindow), want: true},
		{name: "past window", now: goal.Add(StalenessWindow + time.Second), want: false},
		{name: "days late", now: goal.Add(72 * time.Hour), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.Check(tt.now))
		})
	}
}

func TestDateTimeIntervalClamp(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, -1, -365} {
		tr := NewDateTime(time.UTC, Date{2024, 1, 1}, Clock{9, 0}, true, n)
		assert.Equal(t, 1, tr.RepeatIntervalDays(), "constructor with %d", n)

		tr.SetRepeatIntervalDays(7)
		tr.SetRepeatIntervalDays(n)
		assert.Equal(t, 1, tr.RepeatIntervalDays(), "setter with %d", n)
	}
}

func TestDateTimeGoalUsesReferenceZone(t *testing.T) {
	t.Parallel()
	loc := tokyo(t)
	tr := NewDateTime(loc, mustDate(t, "2024-06-01"), mustClock(t, "00:30"), false, 1)

	// 00:30 JST is 15:30 UTC on the previous day.
	assert.Equal(t, time.Date(2024, 5, 31, 15, 30, 0, 0, time.UTC), tr.Goal().UTC())
}

func TestDateTimeRepeatKeepsWallClockAcrossDST(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2024-03-10 is the spring-forward day in New York.
	tr := NewDateTime(ny, mustDate(t, "2024-03-09"), mustClock(t, "09:00"), true, 1)
	fired := tr.Goal().Add(time.Minute)
	require.True(t, tr.Check(fired))
	tr.Advance(fired)

	goal := tr.Goal()
	assert.Equal(t, 9, goal.Hour())
	assert.Equal(t, 23*time.Hour, goal.Sub(fired.Add(-time.Minute)))
}

func TestDateTimeMonthRollover(t *testing.T) {
	t.Parallel()
	tr := NewDateTime(time.UTC, mustDate(t, "2024-02-28"), mustClock(t, "10:00"), true, 2)
	now := tr.Goal().Add(time.Second)
	require.True(t, tr.Check(now))
	tr.Advance(now)
	assert.Equal(t, "2024-03-01", tr.StartDate().String())
}

func TestDateTimeRoundTrip(t *testing.T) {
	t.Parallel()
	loc := tokyo(t)
	reg := Default(loc)

	cases := []*DateTime{
		NewDateTime(loc, mustDate(t, "2024-01-10"), mustClock(t, "09:00"), true, 3),
		NewDateTime(loc, mustDate(t, "2025-12-31"), mustClock(t, "23:59"), false, 1),
		func() *DateTime {
			d := NewDateTime(loc, mustDate(t, "2024-07-07"), mustClock(t, "07:07"), false, 14)
			d.completed = true
			return d
		}(),
	}
	for _, orig := range cases {
		blob, err := Marshal(orig)
		require.NoError(t, err)

		got, err := reg.Restore(blob)
		require.NoError(t, err)
		dt, ok := got.(*DateTime)
		require.True(t, ok)

		assert.Equal(t, orig.Goal(), dt.Goal())
		assert.Equal(t, orig.Repeat(), dt.Repeat())
		assert.Equal(t, orig.RepeatIntervalDays(), dt.RepeatIntervalDays())
		assert.Equal(t, orig.Completed(), dt.Completed())

		goal := orig.Goal()
		for _, d := range []time.Duration{-time.Hour, -time.Second, time.Second, 30 * time.Minute, 2 * time.Hour} {
			assert.Equal(t, orig.Check(goal.Add(d)), dt.Check(goal.Add(d)))
		}
	}
}

func TestDateTimeWireFields(t *testing.T) {
	t.Parallel()
	tr := NewDateTime(time.UTC, Date{2024, 1, 10}, Clock{9, 0}, true, 3)
	blob, err := Marshal(tr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"datetime","repeat":true,"startDate":"2024-01-10","timeOfDay":"09:00","repeatIntervalDays":3,"completed":false}`, blob)
}

func TestDateTimeRestoreClampsStoredInterval(t *testing.T) {
	t.Parallel()
	got, err := Default(time.UTC).Restore(`{"kind":"datetime","repeat":true,"startDate":"2024-01-10","timeOfDay":"09:00","repeatIntervalDays":0,"completed":false}`)
	require.NoError(t, err)
	assert.Equal(t, 1, got.(*DateTime).RepeatIntervalDays())
}

func TestParseClock(t *testing.T) {
	t.Parallel()
	c, err := ParseClock("7:05")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 7, Minute: 5}, c)

	for _, bad := range []string{"", "24:00", "12:60", "12-30", "1230", "12:3", "aa:bb"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidTimeFormat, bad)
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2024, Month: time.February, Day: 29}, d)

	for _, bad := range []string{"", "2024/01/10", "2023-02-29", "2024-1-10", "10-01-2024"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrInvalidTimeFormat, bad)
	}
}
