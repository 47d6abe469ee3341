package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysLaterGoal(t *testing.T) {
	t.Parallel()
	loc := tokyo(t)
	tests := []struct {
		days int
		want time.Time
	}{
		{days: 0, want: time.Date(2024, 1, 30, 8, 15, 0, 0, loc)},
		{days: -3, want: time.Date(2024, 1, 30, 8, 15, 0, 0, loc)},
		{days: 2, want: time.Date(2024, 2, 1, 8, 15, 0, 0, loc)},
		{days: 30, want: time.Date(2024, 2, 29, 8, 15, 0, 0, loc)},
	}
	for _, tt := range tests {
		tr := NewDaysLater(loc, mustDate(t, "2024-01-30"), mustClock(t, "08:15"), tt.days)
		assert.Equal(t, tt.want, tr.Goal(), "days=%d", tt.days)
		assert.GreaterOrEqual(t, tr.DaysLater(), 0)
	}
}

func TestDaysLaterFiresOnce(t *testing.T) {
	t.Parallel()
	tr := NewDaysLater(time.UTC, Date{2024, 5, 1}, Clock{12, 0}, 1)
	goal := tr.Goal()

	assert.False(t, tr.Check(goal.Add(-time.Minute)))
	require.True(t, tr.Check(goal.Add(time.Minute)))
	tr.Advance(goal.Add(time.Minute))

	assert.True(t, tr.Completed())
	assert.False(t, tr.Check(goal.Add(2*time.Minute)))
	assert.False(t, tr.Check(goal.AddDate(1, 0, 0)))
}

func TestDaysLaterStaleness(t *testing.T) {
	t.Parallel()
	tr := NewDaysLater(time.UTC, Date{2024, 5, 1}, Clock{12, 0}, 0)
	assert.False(t, tr.Check(tr.Goal().Add(StalenessWindow+time.Minute)))
}

func TestDaysLaterRoundTrip(t *testing.T) {
	t.Parallel()
	loc := tokyo(t)
	reg := Default(loc)
	orig := NewDaysLater(loc, mustDate(t, "2024-12-30"), mustClock(t, "21:00"), 5)

	blob, err := Marshal(orig)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"dayslater","startDate":"2024-12-30","timeOfDay":"21:00","daysLater":5,"completed":false}`, blob)

	got, err := reg.Restore(blob)
	require.NoError(t, err)
	assert.Equal(t, orig.Goal(), got.Goal())
	assert.Equal(t, orig.Completed(), got.Completed())

	_, err = reg.Restore(`{"kind":"dayslater","startDate":"2024-12-30","timeOfDay":"21:00","completed":false}`)
	assert.ErrorIs(t, err, ErrMalformedBlob)
}
