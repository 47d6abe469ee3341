package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronFiresEachActivationOnce(t *testing.T) {
	t.Parallel()
	loc := tokyo(t)
	anchor := time.Date(2024, 1, 10, 8, 0, 0, 0, loc)
	tr, err := NewCron(loc, "30 9 * * *", anchor)
	require.NoError(t, err)

	assert.True(t, time.Date(2024, 1, 10, 9, 30, 0, 0, loc).Equal(tr.Goal()))
	assert.False(t, tr.Check(time.Date(2024, 1, 10, 9, 29, 59, 0, loc)))

	now := time.Date(2024, 1, 10, 9, 30, 20, 0, loc)
	require.True(t, tr.Check(now))
	tr.Advance(now)
	assert.False(t, tr.Check(now.Add(30*time.Second)))
	assert.True(t, time.Date(2024, 1, 11, 9, 30, 0, 0, loc).Equal(tr.Goal()))
	assert.False(t, tr.Completed())
}

func TestCronSkipsStaleActivations(t *testing.T) {
	t.Parallel()
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr, err := NewCron(time.UTC, "0 * * * *", anchor)
	require.NoError(t, err)

	// Long downtime: the next activation after the anchor is days old, but
	// an activation inside the window is still due.
	now := time.Date(2024, 1, 5, 12, 10, 0, 0, time.UTC)
	require.True(t, tr.Check(now))
	tr.Advance(now)
	assert.False(t, tr.Check(now.Add(time.Minute)))
	assert.True(t, tr.Check(time.Date(2024, 1, 5, 13, 0, 5, 0, time.UTC)))
}

func TestCronCompletedIsTerminal(t *testing.T) {
	t.Parallel()
	tr, err := NewCron(time.UTC, "@hourly", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	tr.completed = true
	assert.False(t, tr.Check(time.Date(2024, 1, 1, 1, 0, 1, 0, time.UTC)))
}

func TestCronRoundTrip(t *testing.T) {
	t.Parallel()
	reg := Default(time.UTC)
	orig, err := NewCron(time.UTC, "15 6 * * 1-5", time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	blob, err := Marshal(orig)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"cron","expr":"15 6 * * 1-5","anchor":"2024-03-04T07:00:00Z","completed":false}`, blob)

	got, err := reg.Restore(blob)
	require.NoError(t, err)
	assert.True(t, orig.Goal().Equal(got.Goal()))

	_, err = reg.Restore(`{"kind":"cron","expr":"@daily","anchor":"yesterday","completed":false}`)
	assert.ErrorIs(t, err, ErrInvalidTimeFormat)
}

func TestCronRejectsSecondsField(t *testing.T) {
	t.Parallel()
	_, err := NewCron(time.UTC, "0 0 9 * * *", time.Now())
	assert.ErrorIs(t, err, ErrInvalidTimeFormat)
}
