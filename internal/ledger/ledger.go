package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/lockin-app/lockin/internal/models"
	"github.com/lockin-app/lockin/internal/progress"
)

var (
	// ErrValidation is returned for malformed sessions; nothing is
	// credited.
	ErrValidation = errors.New("invalid session")
	// ErrConflict is returned when a (user, start, end) session is
	// replayed. The original credit stands, the replay credits nothing.
	ErrConflict = errors.New("session replay")
)

const (
	// xpPerMinute converts focus time into experience.
	xpPerMinute = 1
	// milestoneSessions is the session count that triggers the bonus.
	milestoneSessions = 30
	// milestoneBonusXP is the flat award at the milestone.
	milestoneBonusXP = 50
	// durationTolerance is how far duration may drift from end-start.
	durationTolerance = 2 * time.Second
	// defaultQuitLoss is the HP penalty when the caller does not name one.
	defaultQuitLoss = 10

	dayFormat = "2006-01-02"
)

// Notifier receives fire-and-forget progress notifications.
type Notifier interface {
	MilestoneReached(userID string, level int)
}

// Ledger translates completed focus intervals into durable progress changes.
// All effects for one call are applied as a single transaction per user
// through the store.
type Ledger struct {
	store    progress.Store
	clock    clockwork.Clock
	notifier Notifier
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock used for calendar-day math.
func WithClock(clock clockwork.Clock) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithNotifier installs the notification collaborator.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

// New creates a ledger over the given store.
func New(store progress.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordFocusSession credits one completed focus interval. Idempotent per
// (user, start, end): a replay returns ErrConflict and changes nothing.
func (l *Ledger) RecordFocusSession(ctx context.Context, userID string, s models.FocusSession) (*models.SessionReward, error) {
	s.UserID = userID
	if err := validateSession(s); err != nil {
		return nil, err
	}

	today := l.clock.Now().UTC().Format(dayFormat)
	var reward models.SessionReward

	_, err := l.store.RecordSession(ctx, s, func(p *models.UserProgress) error {
		reward = models.SessionReward{XPDelta: s.DurationSeconds / 60}

		p.XP += reward.XPDelta
		p.TotalFocusSeconds += s.DurationSeconds
		creditActivityDay(p, today)

		p.TotalSessions++
		if p.TotalSessions >= milestoneSessions {
			p.XP += milestoneBonusXP
			p.TotalSessions = 0
			reward.XPDelta += milestoneBonusXP
			reward.MilestoneReached = true
		}

		p.Level = models.LevelForXP(p.XP)

		reward.NewLevel = p.Level
		reward.Streak = p.Streak
		reward.TotalFocusSeconds = p.TotalFocusSeconds
		return nil
	})
	if errors.Is(err, progress.ErrDuplicateSession) {
		return nil, fmt.Errorf("%w: session for %s at %s already credited", ErrConflict, userID, s.StartedAt.UTC().Format(time.RFC3339))
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID).
		Int("xp_delta", reward.XPDelta).
		Int("level", reward.NewLevel).
		Int("streak", reward.Streak).
		Bool("milestone", reward.MilestoneReached).
		Msg("focus session credited")

	if reward.MilestoneReached && l.notifier != nil {
		l.notifier.MilestoneReached(userID, reward.NewLevel)
	}
	return &reward, nil
}

// ApplyQuitPenalty deducts HP for abandoning a focus interval. HP clamps at
// zero; repeated penalties at zero are accepted, not rejected. A loss of zero
// or less applies the default penalty.
func (l *Ledger) ApplyQuitPenalty(ctx context.Context, userID string, loss int) (int, error) {
	if loss <= 0 {
		loss = defaultQuitLoss
	}

	p, err := l.store.Update(ctx, userID, func(p *models.UserProgress) error {
		p.HP -= loss
		if p.HP < 0 {
			p.HP = 0
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Str("user_id", userID).
		Int("loss", loss).
		Int("hp", p.HP).
		Msg("quit penalty applied")

	return p.HP, nil
}

// RecordLogin credits today as an activity day for a login event. Logins and
// focus sessions share one streak history, so a day already credited by a
// session is not double-counted. Returns the current streak.
func (l *Ledger) RecordLogin(ctx context.Context, userID string, now time.Time) (int, error) {
	day := now.UTC().Format(dayFormat)

	p, err := l.store.Update(ctx, userID, func(p *models.UserProgress) error {
		creditActivityDay(p, day)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return p.Streak, nil
}

// Progress returns the current counters for a user.
func (l *Ledger) Progress(ctx context.Context, userID string) (*models.UserProgress, error) {
	return l.store.Progress(ctx, userID)
}

// creditActivityDay appends day to the streak history if absent and
// recomputes the streak: consecutive with yesterday extends it, anything
// else restarts at 1. At most one entry exists per calendar day.
func creditActivityDay(p *models.UserProgress, day string) {
	if p.HasDay(day) {
		return
	}
	p.StreakHistory = append(p.StreakHistory, day)

	t, err := time.Parse(dayFormat, day)
	if err != nil {
		p.Streak = 1
		return
	}
	yesterday := t.AddDate(0, 0, -1).Format(dayFormat)
	if p.HasDay(yesterday) {
		p.Streak++
	} else {
		p.Streak = 1
	}
}

func validateSession(s models.FocusSession) error {
	if s.Type != models.SessionTypeFocus {
		return fmt.Errorf("%w: only focus sessions earn credit, got %q", ErrValidation, s.Type)
	}
	if s.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if s.EndedAt.Before(s.StartedAt) {
		return fmt.Errorf("%w: session ends before it starts", ErrValidation)
	}
	elapsed := s.EndedAt.Sub(s.StartedAt)
	drift := elapsed - time.Duration(s.DurationSeconds)*time.Second
	if drift < 0 {
		drift = -drift
	}
	if drift > durationTolerance {
		return fmt.Errorf("%w: duration %ds does not match timestamps (%s apart)", ErrValidation, s.DurationSeconds, elapsed)
	}
	return nil
}
