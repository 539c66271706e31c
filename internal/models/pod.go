package models

import "time"

// Pod represents an ad-hoc group of users sharing one synchronized countdown.
type Pod struct {
	Code      string    `json:"code"`
	Members   []string  `json:"members"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Phase defines which half of the focus/break cycle a pod is in.
type Phase string

const (
	PhaseFocus Phase = "focus"
	PhaseBreak Phase = "break"
)

// TimerRunState defines the lifecycle state of a pod's countdown.
type TimerRunState string

const (
	TimerIdle    TimerRunState = "IDLE"
	TimerRunning TimerRunState = "RUNNING"
	TimerPaused  TimerRunState = "PAUSED"
)

// PodTimerState is the authoritative countdown value for a pod. It is owned
// exclusively by the pod's timer authority and never written by clients.
type PodTimerState struct {
	PodCode          string        `json:"pod_code"`
	Phase            Phase         `json:"phase"`
	RemainingSeconds int           `json:"remaining_seconds"`
	Running          bool          `json:"running"`
	State            TimerRunState `json:"state"`
}
