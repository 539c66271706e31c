package models

import "time"

// SessionType defines the kind of interval a session covers.
type SessionType string

const (
	SessionTypeFocus SessionType = "focus"
	SessionTypeBreak SessionType = "break"
)

// FocusSession is one completed (or intentionally logged) interval. Immutable
// after creation; the (UserID, StartedAt, EndedAt) triple is its idempotency
// key.
type FocusSession struct {
	UserID          string      `json:"user_id"`
	StartedAt       time.Time   `json:"started_at"`
	EndedAt         time.Time   `json:"ended_at"`
	DurationSeconds int         `json:"duration_seconds"`
	Type            SessionType `json:"type"`
}

// SessionReward is the result of crediting one focus session.
type SessionReward struct {
	XPDelta           int  `json:"xp_delta"`
	NewLevel          int  `json:"new_level"`
	Streak            int  `json:"streak"`
	MilestoneReached  bool `json:"milestone_reached"`
	TotalFocusSeconds int  `json:"total_focus_seconds"`
}
