package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

const blob = `{"kind":"datetime","repeat":false,"startDate":"2024-01-10","timeOfDay":"09:00","repeatIntervalDays":1,"completed":false}`

func sampleRecord(body string) Record {
	return Record{
		Post: transport.Post{
			APIToken:   "tok",
			RoomID:     "12345",
			Body:       body,
			SelfUnread: true,
		},
		Trigger: blob,
	}
}

func openers(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			st, err := Open(context.Background(), Config{}, logx.Nop())
			require.NoError(t, err)
			return st
		},
		"file": func(t *testing.T) Store {
			st, err := Open(context.Background(), Config{Driver: "file", Path: filepath.Join(t.TempDir(), "posts.json")}, logx.Nop())
			require.NoError(t, err)
			return st
		},
		"sqlite": func(t *testing.T) Store {
			st, err := Open(context.Background(), Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "posts.db")}, logx.Nop())
			require.NoError(t, err)
			return st
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, open := range openers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)
			t.Cleanup(func() { _ = st.Close() })

			list, err := st.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)

			id1, err := st.Insert(ctx, sampleRecord("first"))
			require.NoError(t, err)
			id2, err := st.Insert(ctx, sampleRecord("second"))
			require.NoError(t, err)
			assert.Greater(t, id2, id1)

			got, err := st.Get(ctx, id1)
			require.NoError(t, err)
			want := sampleRecord("first")
			want.ID = id1
			assert.Equal(t, want, got)

			got.Trigger = `{"kind":"datetime","repeat":false,"startDate":"2024-01-10","timeOfDay":"09:00","repeatIntervalDays":1,"completed":true}`
			require.NoError(t, st.Update(ctx, got))

			list, err = st.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, got, list[0])
			assert.Equal(t, "second", list[1].Post.Body)
			assert.Equal(t, blob, list[1].Trigger)

			require.NoError(t, st.Delete(ctx, id1))
			_, err = st.Get(ctx, id1)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, st.Delete(ctx, id1), ErrNotFound)
			assert.ErrorIs(t, st.Update(ctx, Record{ID: 999, Trigger: blob}), ErrNotFound)
		})
	}
}

func TestStoreCanceledContextIsUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, open := range openers(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			t.Cleanup(func() { _ = st.Close() })
			_, err := st.List(ctx)
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			cfg := Config{Driver: driver, Path: filepath.Join(t.TempDir(), "posts.data")}

			st, err := Open(ctx, cfg, logx.Nop())
			require.NoError(t, err)
			keep, err := st.Insert(ctx, sampleRecord("keep"))
			require.NoError(t, err)
			gone, err := st.Insert(ctx, sampleRecord("gone"))
			require.NoError(t, err)
			require.NoError(t, st.Delete(ctx, gone))
			require.NoError(t, st.Close())

			st, err = Open(ctx, cfg, logx.Nop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })

			list, err := st.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, keep, list[0].ID)
			assert.Equal(t, "keep", list[0].Post.Body)

			next, err := st.Insert(ctx, sampleRecord("next"))
			require.NoError(t, err)
			assert.Greater(t, next, keep)
		})
	}
}

func TestFileStoreReplaysJournalWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "posts.json")

	st, err := openFile(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	fs := st.(*fileStore)
	id, err := fs.Insert(ctx, sampleRecord("journal only"))
	require.NoError(t, err)
	// Simulate a crash: drop the handle without compacting.
	require.NoError(t, fs.journal.Close())

	st, err = openFile(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	got, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "journal only", got.Post.Body)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop())
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}
