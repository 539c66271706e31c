package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockin-app/lockin/internal/models"
	"github.com/lockin-app/lockin/internal/progress"
)

var baseTime = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

// sessionEndingAt builds a valid focus session whose timestamps match its
// duration exactly.
func sessionEndingAt(end time.Time, durationSeconds int) models.FocusSession {
	return models.FocusSession{
		StartedAt:       end.Add(-time.Duration(durationSeconds) * time.Second),
		EndedAt:         end,
		DurationSeconds: durationSeconds,
		Type:            models.SessionTypeFocus,
	}
}

func newTestLedger(opts ...Option) (*Ledger, *progress.MemoryStore, *clockwork.FakeClock) {
	store := progress.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(baseTime)
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(store, opts...), store, clock
}

func TestRecordFocusSession_AwardsXPAndLevel(t *testing.T) {
	l, _, clock := newTestLedger()
	ctx := context.Background()

	// 25 minutes earns 25 XP.
	reward, err := l.RecordFocusSession(ctx, "u1", sessionEndingAt(clock.Now(), 1500))
	require.NoError(t, err)
	assert.Equal(t, 25, reward.XPDelta)
	assert.Equal(t, 1, reward.NewLevel)
	assert.Equal(t, 1, reward.Streak)
	assert.Equal(t, 1500, reward.TotalFocusSeconds)
	assert.False(t, reward.MilestoneReached)

	p, err := l.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 25, p.XP)
	assert.Equal(t, models.LevelForXP(p.XP), p.Level)
}

func TestRecordFocusSession_PartialMinutesFloor(t *testing.T) {
	l, _, clock := newTestLedger()

	// 90 seconds is one whole minute.
	reward, err := l.RecordFocusSession(context.Background(), "u1", sessionEndingAt(clock.Now(), 90))
	require.NoError(t, err)
	assert.Equal(t, 1, reward.XPDelta)
}

func TestRecordFocusSession_LevelInvariantAcrossSequence(t *testing.T) {
	l, _, clock := newTestLedger()
	ctx := context.Background()

	end := clock.Now()
	for i := 0; i < 5; i++ {
		end = end.Add(time.Hour)
		_, err := l.RecordFocusSession(ctx, "u1", sessionEndingAt(end, 1500))
		require.NoError(t, err)

		p, err := l.Progress(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, p.XP/100+1, p.Level)
	}

	p, err := l.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 125, p.XP)
	assert.Equal(t, 2, p.Level)
}

func TestRecordFocusSession_ReplayConflictsAndChangesNothing(t *testing.T) {
	l, _, clock := newTestLedger()
	ctx := context.Background()

	s := sessionEndingAt(clock.Now(), 1500)
	_, err := l.RecordFocusSession(ctx, "u1", s)
	require.NoError(t, err)

	before, err := l.Progress(ctx, "u1")
	require.NoError(t, err)

	_, err = l.RecordFocusSession(ctx, "u1", s)
	require.ErrorIs(t, err, ErrConflict)

	after, err := l.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRecordFocusSession_SameWindowDifferentUsersBothCredit(t *testing.T) {
	l, _, clock := newTestLedger()
	ctx := context.Background()

	s := sessionEndingAt(clock.Now(), 600)
	_, err := l.RecordFocusSession(ctx, "u1", s)
	require.NoError(t, err)
	_, err = l.RecordFocusSession(ctx, "u2", s)
	require.NoError(t, err)
}

func TestRecordFocusSession_StreakExtendsOnConsecutiveDays(t *testing.T) {
	l, _, clock := newTestLedger()
	ctx := context.Background()

	reward, err := l.RecordFocusSession(ctx, "u1", sessionEndingAt(clock.Now(), 1500))
	require.NoError(t, err)
	assert.Equal(t, 1, reward.Streak)

	clock.Advance(24 * time.Hour)
	reward, err = l.RecordFocusSession(ctx, "u1", sessionEndingAt(clock.Now(), 1500))
	require.NoError(t, err)
	assert.Equal(t, 2, reward.Streak)

	clock.Advance(24 * time.Hour)
	reward, err = l.RecordFocusSession(ctx, "u1", sessionEndingAt(clock.Now(), 1500))
	require.NoError(t, err)
	assert.Equal(t, 3, reward.Streak)
}

func TestRecordFocusSession_StreakResetsAfterGap(t *testing.T) {
	l, _, clock := newTestLedger()
	ctx := context.Background()

	_, err := l.RecordFocusSession(ctx, "u1", sessionEndingAt(clock.Now(), 1500))
	require.NoError(t, err)

	// Two missed days.
	clock.Advance(72 * time.Hour)
	reward, err := l.RecordFocusSession(ctx, "u1", sessionEndingAt(clock.Now(), 1500))
	require.NoError(t, err)
	assert.Equal(t, 1, reward.Streak)
}

func TestRecordFocusSession_SameDayDoesNotExtendStreak(t *testing.T) {
	l, _, clock := newTestLedger()
	ctx := context.Background()

	_, err := l.RecordFocusSession(ctx, "u1", sessionEndingAt(clock.Now(), 1500))
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	reward, err := l.RecordFocusSession(ctx, "u1", sessionEndingAt(clock.Now(), 1500))
	require.NoError(t, err)
	assert.Equal(t, 1, reward.Streak)
}

type milestoneRecorder struct {
	userID string
	level  int
	fired  int
}

func (m *milestoneRecorder) MilestoneReached(userID string, level int) {
	m.userID = userID
	m.level = level
	m.fired++
}

func TestRecordFocusSession_ThirtiethSessionPaysBonusAndWraps(t *testing.T) {
	rec := &milestoneRecorder{}
	l, _, clock := newTestLedger(WithNotifier(rec))
	ctx := context.Background()

	end := clock.Now()
	for i := 0; i < 29; i++ {
		end = end.Add(5 * time.Minute)
		reward, err := l.RecordFocusSession(ctx, "u1", sessionEndingAt(end, 60))
		require.NoError(t, err)
		require.False(t, reward.MilestoneReached, "session %d", i+1)
	}
	require.Zero(t, rec.fired)

	end = end.Add(5 * time.Minute)
	reward, err := l.RecordFocusSession(ctx, "u1", sessionEndingAt(end, 60))
	require.NoError(t, err)
	assert.True(t, reward.MilestoneReached)
	assert.Equal(t, 51, reward.XPDelta) // 1 XP for the minute + 50 bonus

	p, err := l.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.TotalSessions, "counter wraps at the milestone")
	assert.Equal(t, 80, p.XP)

	assert.Equal(t, 1, rec.fired)
	assert.Equal(t, "u1", rec.userID)
}

func TestApplyQuitPenalty_ClampsAtZero(t *testing.T) {
	l, _, _ := newTestLedger()
	ctx := context.Background()

	hp, err := l.ApplyQuitPenalty(ctx, "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, 70, hp)

	hp, err = l.ApplyQuitPenalty(ctx, "u1", 500)
	require.NoError(t, err)
	assert.Equal(t, 0, hp)

	// Penalties at zero are accepted and stay at zero.
	hp, err = l.ApplyQuitPenalty(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, hp)
}

func TestApplyQuitPenalty_DefaultLoss(t *testing.T) {
	l, _, _ := newTestLedger()

	hp, err := l.ApplyQuitPenalty(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, 90, hp)
}

func TestRecordLogin_SharesStreakWithSessions(t *testing.T) {
	l, _, clock := newTestLedger()
	ctx := context.Background()

	// A session already credited today; the login must not double-count.
	_, err := l.RecordFocusSession(ctx, "u1", sessionEndingAt(clock.Now(), 1500))
	require.NoError(t, err)

	streak, err := l.RecordLogin(ctx, "u1", clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, streak)

	// A login alone on the next day extends the streak.
	clock.Advance(24 * time.Hour)
	streak, err = l.RecordLogin(ctx, "u1", clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, streak)

	// And a session later that same day does not extend it again.
	reward, err := l.RecordFocusSession(ctx, "u1", sessionEndingAt(clock.Now(), 1500))
	require.NoError(t, err)
	assert.Equal(t, 2, reward.Streak)
}

func TestRecordFocusSession_Validation(t *testing.T) {
	l, _, clock := newTestLedger()
	ctx := context.Background()
	now := clock.Now()

	tests := []struct {
		name    string
		session models.FocusSession
	}{
		{
			name: "break sessions earn nothing",
			session: models.FocusSession{
				StartedAt:       now.Add(-5 * time.Minute),
				EndedAt:         now,
				DurationSeconds: 300,
				Type:            models.SessionTypeBreak,
			},
		},
		{
			name: "zero duration",
			session: models.FocusSession{
				StartedAt: now,
				EndedAt:   now,
				Type:      models.SessionTypeFocus,
			},
		},
		{
			name: "negative duration",
			session: models.FocusSession{
				StartedAt:       now.Add(-time.Minute),
				EndedAt:         now,
				DurationSeconds: -60,
				Type:            models.SessionTypeFocus,
			},
		},
		{
			name: "ends before it starts",
			session: models.FocusSession{
				StartedAt:       now,
				EndedAt:         now.Add(-time.Minute),
				DurationSeconds: 60,
				Type:            models.SessionTypeFocus,
			},
		},
		{
			name: "duration disagrees with timestamps",
			session: models.FocusSession{
				StartedAt:       now.Add(-time.Minute),
				EndedAt:         now,
				DurationSeconds: 1500,
				Type:            models.SessionTypeFocus,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.RecordFocusSession(ctx, "u1", tt.session)
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	// Nothing from the rejected sessions was credited.
	p, err := l.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.XP)
	assert.Equal(t, 0, p.Streak)
}
