package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockin-app/lockin/internal/events"
)

func testEvent(t *testing.T, code string, n int) *events.Event {
	t.Helper()
	ev, err := events.New(code, events.TypeTick, time.Now(), events.TickPayload{RemainingSeconds: n})
	require.NoError(t, err)
	return ev
}

func recv(t *testing.T, sub *Subscriber) *events.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublish_FansOutToAllButOrigin(t *testing.T) {
	h := NewHub(8)
	a := h.Subscribe("ABCDEF")
	b := h.Subscribe("ABCDEF")
	c := h.Subscribe("ABCDEF")

	h.Publish("ABCDEF", testEvent(t, "ABCDEF", 99), a.ID)

	for _, sub := range []*Subscriber{b, c} {
		ev := recv(t, sub)
		assert.Equal(t, events.TypeTick, ev.Type)
	}
	select {
	case ev := <-a.Events():
		t.Fatalf("origin received its own event: %v", ev)
	default:
	}
}

func TestPublish_NoReplayForLateJoiners(t *testing.T) {
	h := NewHub(8)
	early := h.Subscribe("ABCDEF")

	h.Publish("ABCDEF", testEvent(t, "ABCDEF", 1), "")
	late := h.Subscribe("ABCDEF")

	recv(t, early)
	select {
	case ev := <-late.Events():
		t.Fatalf("late joiner saw a past event: %v", ev)
	default:
	}
}

func TestPublish_UnknownPodIsSilentNoop(t *testing.T) {
	h := NewHub(8)
	h.Publish("NOSUCH", testEvent(t, "NOSUCH", 1), "")
}

func TestPublish_SlowSubscriberDropsOldest(t *testing.T) {
	h := NewHub(2)
	sub := h.Subscribe("ABCDEF")

	for i := 1; i <= 5; i++ {
		h.Publish("ABCDEF", testEvent(t, "ABCDEF", i), "")
	}

	// Buffer held the two newest; the older three were dropped.
	var got []int
	for i := 0; i < 2; i++ {
		ev := recv(t, sub)
		payload, err := events.ParseEventPayload(ev)
		require.NoError(t, err)
		got = append(got, payload.(events.TickPayload).RemainingSeconds)
	}
	assert.Equal(t, []int{4, 5}, got)
}

func TestClose_StopsDeliveriesWithoutAffectingOthers(t *testing.T) {
	h := NewHub(8)
	a := h.Subscribe("ABCDEF")
	b := h.Subscribe("ABCDEF")

	a.Close()
	a.Close() // safe to repeat

	h.Publish("ABCDEF", testEvent(t, "ABCDEF", 7), "")
	ev := recv(t, b)
	assert.Equal(t, events.TypeTick, ev.Type)

	_, open := <-a.Events()
	assert.False(t, open, "closed subscriber channel should be closed")
}

func TestHub_RoomTornDownWhenLastSubscriberLeaves(t *testing.T) {
	h := NewHub(8)
	a := h.Subscribe("ABCDEF")
	b := h.Subscribe("ABCDEF")
	require.Equal(t, 1, h.RoomCount())
	require.Equal(t, 2, h.SubscriberCount("ABCDEF"))

	a.Close()
	assert.Equal(t, 1, h.RoomCount())
	b.Close()
	assert.Equal(t, 0, h.RoomCount())
}
