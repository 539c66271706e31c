package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidIntent is returned for malformed timer commands. Rejected intents
// never mutate timer state.
var ErrInvalidIntent = errors.New("invalid intent")

// IntentKind is a timer transition requested by a pod member. Members send
// transitions, never raw remaining_seconds values; the authority is the only
// writer of the countdown.
type IntentKind string

const (
	IntentStart IntentKind = "start"
	IntentPause IntentKind = "pause"
	IntentReset IntentKind = "reset"
)

// Intent is the inbound message schema on a pod's websocket.
type Intent struct {
	Version int        `json:"version"`
	Kind    IntentKind `json:"kind"`
}

// ParseIntent validates a raw client message. Unknown kinds, unsupported
// versions and broken JSON all reject with ErrInvalidIntent.
func ParseIntent(raw []byte) (Intent, error) {
	var in Intent
	if err := json.Unmarshal(raw, &in); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	if in.Version != SchemaVersion {
		return Intent{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidIntent, in.Version)
	}
	switch in.Kind {
	case IntentStart, IntentPause, IntentReset:
		return in, nil
	default:
		return Intent{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidIntent, in.Kind)
	}
}
