package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixFilter(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	sched, unsubSched := b.Subscribe(4, "scheduler.")
	defer unsubSched()

	b.Publish(Event{Type: "scheduler.tick"})
	b.Publish(Event{Type: "poster.sent"})

	require.Len(t, all, 2)
	require.Len(t, sched, 1)
	ev := <-sched
	assert.Equal(t, "scheduler.tick", ev.Type)
	assert.False(t, ev.Time.IsZero())
}

func TestFullSubscriberDrops(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	assert.Equal(t, uint64(1), b.Dropped())
	assert.Equal(t, "a", (<-ch).Type)
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
	b.Publish(Event{Type: "after"})
}
