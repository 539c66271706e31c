package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lockin-app/lockin/internal/models"
)

// SchemaVersion is stamped on every envelope so payloads can evolve without
// breaking older clients.
const SchemaVersion = 1

// Type tags the payload carried by an event envelope.
type Type string

const (
	// TypeSnapshot carries the full timer state. Pushed to new subscribers
	// and after start/pause/reset.
	TypeSnapshot Type = "snapshot"
	// TypeTick carries one countdown decrement.
	TypeTick Type = "tick"
	// TypePhaseChange marks remaining_seconds hitting zero and the timer
	// reloading into the other phase.
	TypePhaseChange Type = "phase_change"
	// TypeError reports a rejected client message back to its sender.
	TypeError Type = "error"
)

// Event is the versioned envelope for everything published on a pod stream.
type Event struct {
	ID        string          `json:"id"`
	Version   int             `json:"version"`
	PodCode   string          `json:"pod_code"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// SnapshotPayload is the payload for a snapshot event.
type SnapshotPayload struct {
	Timer models.PodTimerState `json:"timer"`
}

// TickPayload is the payload for a tick event.
type TickPayload struct {
	Phase            models.Phase `json:"phase"`
	RemainingSeconds int          `json:"remaining_seconds"`
}

// PhaseChangePayload is the payload for a phase_change event. For a
// focus->break flip, CompletedSeconds is the length of the focus interval
// that just finished; clients use it to submit the session to the ledger.
type PhaseChangePayload struct {
	From             models.Phase `json:"from"`
	To               models.Phase `json:"to"`
	RemainingSeconds int          `json:"remaining_seconds"`
	CompletedSeconds int          `json:"completed_seconds"`
}

// ErrorPayload is the payload for an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds an envelope around an already-marshaled payload.
func New(podCode string, typ Type, ts time.Time, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Version:   SchemaVersion,
		PodCode:   podCode,
		Type:      typ,
		Timestamp: ts,
		Data:      data,
	}, nil
}

// ParseEventPayload decodes an envelope's payload into its concrete type.
func ParseEventPayload(ev *Event) (any, error) {
	switch ev.Type {
	case TypeSnapshot:
		var p SnapshotPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeTick:
		var p TickPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypePhaseChange:
		var p PhaseChangePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeError:
		var p ErrorPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
}
