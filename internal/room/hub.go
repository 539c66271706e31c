package room

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lockin-app/lockin/internal/events"
	"github.com/lockin-app/lockin/internal/pod"
)

// DefaultBuffer is the per-subscriber event buffer.
const DefaultBuffer = 32

// Hub is the per-pod broadcast fabric. A room is created when its first
// subscriber arrives and torn down when the last one leaves; there is no
// process-wide channel object. Publishing never blocks on slow subscribers
// and a subscriber never sees events published before it joined.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Subscriber]struct{}
	buffer int
}

// Subscriber is one member's receive side of a pod stream.
type Subscriber struct {
	ID      string
	PodCode string
	ch      chan *events.Event

	hub    *Hub
	closed bool
	mu     sync.Mutex
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		rooms:  make(map[string]map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new member on a pod stream. Past messages are not
// replayed; the caller pushes a current snapshot explicitly.
func (h *Hub) Subscribe(podCode string) *Subscriber {
	podCode = pod.Normalize(podCode)
	sub := &Subscriber{
		ID:      uuid.New().String(),
		PodCode: podCode,
		ch:      make(chan *events.Event, h.buffer),
		hub:     h,
	}

	h.mu.Lock()
	room, ok := h.rooms[podCode]
	if !ok {
		room = make(map[*Subscriber]struct{})
		h.rooms[podCode] = room
	}
	room[sub] = struct{}{}
	total := len(room)
	h.mu.Unlock()

	log.Debug().
		Str("pod_code", podCode).
		Str("subscriber_id", sub.ID).
		Int("subscribers", total).
		Msg("subscriber joined room")

	return sub
}

// Publish fans an event out to every subscriber of a pod except origin (may
// be empty). Publishing to a pod with no subscribers is a silent no-op. Full
// subscriber buffers drop their oldest event to make room, so one stalled
// reader cannot stall the room.
func (h *Hub) Publish(podCode string, ev *events.Event, originID string) {
	h.mu.RLock()
	room := h.rooms[pod.Normalize(podCode)]
	targets := make([]*Subscriber, 0, len(room))
	for sub := range room {
		if originID != "" && sub.ID == originID {
			continue
		}
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(ev)
	}
}

// Events is the subscriber's receive channel. It is closed by Close.
func (s *Subscriber) Events() <-chan *events.Event {
	return s.ch
}

// Close unsubscribes without affecting other members. Safe to call more than
// once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	h := s.hub
	h.mu.Lock()
	if room, ok := h.rooms[s.PodCode]; ok {
		delete(room, s)
		if len(room) == 0 {
			delete(h.rooms, s.PodCode)
			log.Debug().Str("pod_code", s.PodCode).Msg("room torn down")
		}
	}
	h.mu.Unlock()

	close(s.ch)
}

// deliver enqueues without blocking: if the buffer is full the oldest event
// is discarded in favor of the newest.
func (s *Subscriber) deliver(ev *events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case dropped := <-s.ch:
			log.Warn().
				Str("pod_code", s.PodCode).
				Str("subscriber_id", s.ID).
				Str("event_type", string(dropped.Type)).
				Msg("subscriber buffer full, dropping oldest event")
		default:
		}
	}
}

// SubscriberCount reports how many members are attached to a pod stream.
func (h *Hub) SubscriberCount(podCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[pod.Normalize(podCode)])
}

// RoomCount reports how many live rooms exist.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
