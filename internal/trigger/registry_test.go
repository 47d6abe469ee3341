package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRestoreErrors(t *testing.T) {
	t.Parallel()
	reg := Default(time.UTC)

	tests := []struct {
		name string
		blob string
		want error
	}{
		{name: "not json", blob: `{"kind":`, want: ErrMalformedBlob},
		{name: "json array", blob: `[1,2]`, want: ErrMalformedBlob},
		{name: "json null", blob: `null`, want: ErrMalformedBlob},
		{name: "empty", blob: ``, want: ErrMalformedBlob},
		{name: "missing kind", blob: `{"repeat":true}`, want: ErrMalformedBlob},
		{name: "kind not string", blob: `{"kind":7}`, want: ErrMalformedBlob},
		{name: "empty kind", blob: `{"kind":""}`, want: ErrMalformedBlob},
		{name: "unknown kind", blob: `{"kind":"weather"}`, want: ErrUnknownKind},
		{name: "legacy class name", blob: `{"name":"DateTimeCondition"}`, want: ErrMalformedBlob},
		{name: "missing startDate", blob: `{"kind":"datetime","repeat":false,"timeOfDay":"09:00","repeatIntervalDays":1,"completed":false}`, want: ErrMalformedBlob},
		{name: "missing completed", blob: `{"kind":"datetime","repeat":false,"startDate":"2024-01-10","timeOfDay":"09:00","repeatIntervalDays":1}`, want: ErrMalformedBlob},
		{name: "wrong field type", blob: `{"kind":"datetime","repeat":"yes","startDate":"2024-01-10","timeOfDay":"09:00","repeatIntervalDays":1,"completed":false}`, want: ErrMalformedBlob},
		{name: "bad date", blob: `{"kind":"datetime","repeat":false,"startDate":"2024/01/10","timeOfDay":"09:00","repeatIntervalDays":1,"completed":false}`, want: ErrInvalidTimeFormat},
		{name: "bad time", blob: `{"kind":"datetime","repeat":false,"startDate":"2024-01-10","timeOfDay":"9am","repeatIntervalDays":1,"completed":false}`, want: ErrInvalidTimeFormat},
		{name: "bad cron", blob: `{"kind":"cron","expr":"every tuesday","anchor":"2024-01-01T00:00:00Z","completed":false}`, want: ErrInvalidTimeFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.Restore(tt.blob)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegistryIgnoresUnknownFields(t *testing.T) {
	t.Parallel()
	got, err := Default(time.UTC).Restore(`{"kind":"datetime","repeat":false,"startDate":"2024-01-10","timeOfDay":"09:00","repeatIntervalDays":2,"completed":false,"note":"added later","ui":{"label":"x"}}`)
	require.NoError(t, err)
	assert.Equal(t, KindDateTime, got.Kind())
	assert.Equal(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), got.Goal())
}

func TestRegistryCreate(t *testing.T) {
	t.Parallel()
	loc := tokyo(t)
	fixed := time.Date(2024, 4, 1, 23, 50, 42, 0, time.UTC) // 2024-04-02 08:50 JST
	reg := Default(loc, WithClock(func() time.Time { return fixed }))

	tr, err := reg.Create(KindDateTime)
	require.NoError(t, err)
	dt := tr.(*DateTime)
	assert.Equal(t, "2024-04-02", dt.StartDate().String())
	assert.Equal(t, "08:50", dt.TimeOfDay().String())
	assert.False(t, dt.Repeat())
	assert.Equal(t, 1, dt.RepeatIntervalDays())
	assert.False(t, dt.Completed())

	for _, k := range []Kind{KindDaysLater, KindCron} {
		tr, err := reg.Create(k)
		require.NoError(t, err)
		assert.Equal(t, k, tr.Kind())
		assert.False(t, tr.Completed())
	}

	_, err = reg.Create("weather")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegistryCreatedTriggersRoundTrip(t *testing.T) {
	t.Parallel()
	reg := Default(time.UTC)
	for _, k := range reg.Kinds() {
		tr, err := reg.Create(k)
		require.NoError(t, err)
		blob, err := Marshal(tr)
		require.NoError(t, err)
		back, err := reg.Restore(blob)
		require.NoError(t, err, k)
		assert.Equal(t, tr.Kind(), back.Kind())
		assert.True(t, tr.Goal().Equal(back.Goal()), k)
	}
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(nil)
	assert.Equal(t, time.UTC, reg.Location())
	assert.Empty(t, reg.Kinds())

	require.NoError(t, reg.Register(KindDateTime, newDateTimeDefault, restoreDateTime))
	assert.Error(t, reg.Register(KindDateTime, newDateTimeDefault, restoreDateTime))
	assert.Error(t, reg.Register("", newDateTimeDefault, restoreDateTime))
	assert.Error(t, reg.Register("x", nil, restoreDateTime))

	_, err := reg.Restore(`{"kind":"cron","expr":"@daily","anchor":"2024-01-01T00:00:00Z","completed":false}`)
	assert.ErrorIs(t, err, ErrUnknownKind)

	assert.Equal(t, []Kind{KindCron, KindDateTime, KindDaysLater}, Default(nil).Kinds())
}

func TestRestorerRejectsForeignKind(t *testing.T) {
	t.Parallel()
	env := Env{Location: time.UTC, Now: time.Now}
	_, err := restoreDateTime(env, []byte(`{"kind":"dayslater","startDate":"2024-01-10","timeOfDay":"09:00","daysLater":1,"completed":false}`))
	assert.ErrorIs(t, err, ErrMalformedBlob)
}
