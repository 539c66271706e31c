package models

// LevelForXP derives a level from an XP total. Level is never stored or
// incremented independently; it is always recomputed from XP.
func LevelForXP(xp int) int {
	return xp/100 + 1
}

// UserProgress holds the durable per-user gamification counters. Mutated only
// by the session ledger.
type UserProgress struct {
	UserID            string   `json:"user_id"`
	XP                int      `json:"xp"`
	Level             int      `json:"level"`
	Streak            int      `json:"streak"`
	StreakHistory     []string `json:"streak_history"` // calendar days, "2006-01-02", at most one entry per day
	HP                int      `json:"hp"`
	TotalSessions     int      `json:"total_sessions"`
	TotalFocusSeconds int      `json:"total_focus_seconds"`
}

// NewUserProgress returns the starting counters for a user.
func NewUserProgress(userID string) *UserProgress {
	return &UserProgress{
		UserID: userID,
		Level:  1,
		HP:     100,
	}
}

// HasDay reports whether a calendar day is already credited.
func (p *UserProgress) HasDay(day string) bool {
	for _, d := range p.StreakHistory {
		if d == day {
			return true
		}
	}
	return false
}
