package timer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/lockin-app/lockin/internal/events"
	"github.com/lockin-app/lockin/internal/models"
	"github.com/lockin-app/lockin/internal/pod"
)

// PhaseDurations holds the configured lengths of the two phases.
type PhaseDurations struct {
	FocusSeconds int
	BreakSeconds int
}

// DefaultDurations is the classic 25/5 pomodoro split.
func DefaultDurations() PhaseDurations {
	return PhaseDurations{FocusSeconds: 1500, BreakSeconds: 300}
}

func (d PhaseDurations) seconds(p models.Phase) int {
	if p == models.PhaseBreak {
		return d.BreakSeconds
	}
	return d.FocusSeconds
}

// Publisher is what the authority needs from the room hub.
type Publisher interface {
	Publish(podCode string, ev *events.Event, originID string)
}

// PodLookup is what the authority needs from the registry.
type PodLookup interface {
	GetPod(code string) (*models.Pod, error)
}

// Hooks are fire-and-forget callbacks into the notification collaborator.
// Either may be nil.
type Hooks struct {
	// PodLocked fires when a pod's countdown starts.
	PodLocked func(podCode string)
	// PhaseEnd fires when a phase runs down to zero.
	PhaseEnd func(podCode string, completed models.Phase, completedSeconds int)
}

// Authority is the single source of truth for every pod's countdown. Clients
// only submit start/pause/reset intents; the tick loop here is the sole
// writer of remaining_seconds, which removes the lost-update races of
// client-driven countdowns. One tick goroutine exists per running pod, and
// none while the pod is idle or paused.
type Authority struct {
	clock     clockwork.Clock
	hub       Publisher
	pods      PodLookup
	durations PhaseDurations
	hooks     Hooks

	mu     sync.Mutex
	clocks map[string]*podClock
	done   chan struct{}
	wg     sync.WaitGroup
}

// podClock holds one pod's timer state. All fields are guarded by mu; only
// the authority's tick loop and intent handlers touch them.
type podClock struct {
	mu        sync.Mutex
	code      string
	phase     models.Phase
	remaining int
	state     models.TimerRunState
	deadline  time.Time
	stop      chan struct{} // non-nil exactly while RUNNING
	gen       uint64        // bumped on every Start; stale tick loops see a mismatch and exit
}

// Option configures an Authority.
type Option func(*Authority)

// WithClock overrides the wall clock. Tests pass a clockwork fake.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Authority) { a.clock = clock }
}

// WithHooks installs notification callbacks.
func WithHooks(h Hooks) Option {
	return func(a *Authority) { a.hooks = h }
}

// NewAuthority creates a timer authority publishing through hub for the pods
// known to registry.
func NewAuthority(hub Publisher, registry PodLookup, durations PhaseDurations, opts ...Option) *Authority {
	a := &Authority{
		clock:     clockwork.NewRealClock(),
		hub:       hub,
		pods:      registry,
		durations: durations,
		clocks:    make(map[string]*podClock),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply executes one timer intent against a pod. Unknown pods fail with
// pod.ErrNotFound; unknown kinds with events.ErrInvalidIntent. Ineffective
// transitions (start while running, pause while idle) are no-ops.
func (a *Authority) Apply(ctx context.Context, podCode string, kind events.IntentKind) error {
	pc, err := a.ensure(podCode)
	if err != nil {
		return err
	}

	switch kind {
	case events.IntentStart:
		a.start(pc)
	case events.IntentPause:
		a.pause(pc)
	case events.IntentReset:
		a.reset(pc)
	default:
		return events.ErrInvalidIntent
	}
	return nil
}

// Snapshot returns the current timer state for a pod. The pod's timer is
// created lazily in Idle/focus if it has never been touched.
func (a *Authority) Snapshot(podCode string) (models.PodTimerState, error) {
	pc, err := a.ensure(podCode)
	if err != nil {
		return models.PodTimerState{}, err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.stateLocked(), nil
}

// Shutdown stops every tick loop and waits for them to exit. Timers freeze at
// their last broadcast value; a later Start re-establishes authority without
// silently resuming.
func (a *Authority) Shutdown() {
	close(a.done)
	a.wg.Wait()
}

func (a *Authority) ensure(podCode string) (*podClock, error) {
	code := pod.Normalize(podCode)
	if _, err := a.pods.GetPod(code); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	pc, ok := a.clocks[code]
	if !ok {
		pc = &podClock{
			code:      code,
			phase:     models.PhaseFocus,
			remaining: a.durations.FocusSeconds,
			state:     models.TimerIdle,
		}
		a.clocks[code] = pc
	}
	return pc, nil
}

func (a *Authority) start(pc *podClock) {
	pc.mu.Lock()
	if pc.state == models.TimerRunning {
		pc.mu.Unlock()
		return
	}
	wasIdle := pc.state == models.TimerIdle
	pc.state = models.TimerRunning
	pc.deadline = a.clock.Now().Add(time.Second)
	pc.stop = make(chan struct{})
	pc.gen++
	stop := pc.stop
	gen := pc.gen
	snap := pc.stateLocked()
	pc.mu.Unlock()

	a.wg.Add(1)
	go a.run(pc, stop, gen)

	log.Info().
		Str("pod_code", pc.code).
		Str("phase", string(snap.Phase)).
		Int("remaining_seconds", snap.RemainingSeconds).
		Msg("pod timer started")

	a.broadcastSnapshot(pc.code, snap)

	if wasIdle && a.hooks.PodLocked != nil {
		a.hooks.PodLocked(pc.code)
	}
}

func (a *Authority) pause(pc *podClock) {
	pc.mu.Lock()
	if pc.state != models.TimerRunning {
		pc.mu.Unlock()
		return
	}
	pc.state = models.TimerPaused
	close(pc.stop)
	pc.stop = nil
	snap := pc.stateLocked()
	pc.mu.Unlock()

	log.Info().
		Str("pod_code", pc.code).
		Int("remaining_seconds", snap.RemainingSeconds).
		Msg("pod timer paused")

	a.broadcastSnapshot(pc.code, snap)
}

func (a *Authority) reset(pc *podClock) {
	pc.mu.Lock()
	if pc.stop != nil {
		close(pc.stop)
		pc.stop = nil
	}
	pc.state = models.TimerIdle
	pc.remaining = a.durations.seconds(pc.phase)
	snap := pc.stateLocked()
	pc.mu.Unlock()

	log.Info().
		Str("pod_code", pc.code).
		Str("phase", string(snap.Phase)).
		Msg("pod timer reset")

	a.broadcastSnapshot(pc.code, snap)
}

// run is the tick loop for one running pod. The deadline advances by exactly
// one second per tick from the start anchor, so a late wakeup shortens the
// next wait instead of accumulating skew.
func (a *Authority) run(pc *podClock, stop <-chan struct{}, gen uint64) {
	defer a.wg.Done()

	for {
		pc.mu.Lock()
		if pc.state != models.TimerRunning || pc.gen != gen {
			pc.mu.Unlock()
			return
		}
		wait := pc.deadline.Sub(a.clock.Now())
		pc.mu.Unlock()

		t := a.clock.NewTimer(wait)
		select {
		case <-t.Chan():
			if !a.tick(pc, gen) {
				return
			}
		case <-stop:
			stopAndDrainTimer(t)
			return
		case <-a.done:
			stopAndDrainTimer(t)
			return
		}
	}
}

// tick applies one decrement and reports whether the loop should continue.
func (a *Authority) tick(pc *podClock, gen uint64) bool {
	pc.mu.Lock()
	if pc.state != models.TimerRunning || pc.gen != gen {
		// A pause, reset or restart won the race against the fired timer.
		pc.mu.Unlock()
		return false
	}

	pc.remaining--
	pc.deadline = pc.deadline.Add(time.Second)

	if pc.remaining > 0 {
		payload := events.TickPayload{Phase: pc.phase, RemainingSeconds: pc.remaining}
		code := pc.code
		pc.mu.Unlock()
		a.publish(code, events.TypeTick, payload)
		return true
	}

	// remaining hit zero: emit the final tick, then flip the phase and
	// reload the countdown for the new phase.
	from := pc.phase
	to := models.PhaseBreak
	if from == models.PhaseBreak {
		to = models.PhaseFocus
	}
	completed := a.durations.seconds(from)
	pc.phase = to
	pc.remaining = a.durations.seconds(to)
	code := pc.code
	reloaded := pc.remaining
	pc.mu.Unlock()

	a.publish(code, events.TypeTick, events.TickPayload{Phase: from, RemainingSeconds: 0})
	a.publish(code, events.TypePhaseChange, events.PhaseChangePayload{
		From:             from,
		To:               to,
		RemainingSeconds: reloaded,
		CompletedSeconds: completed,
	})

	log.Info().
		Str("pod_code", code).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("pod phase changed")

	if a.hooks.PhaseEnd != nil {
		a.hooks.PhaseEnd(code, from, completed)
	}
	return true
}

func (a *Authority) broadcastSnapshot(code string, snap models.PodTimerState) {
	a.publish(code, events.TypeSnapshot, events.SnapshotPayload{Timer: snap})
}

func (a *Authority) publish(code string, typ events.Type, payload any) {
	ev, err := events.New(code, typ, a.clock.Now().UTC(), payload)
	if err != nil {
		log.Error().Err(err).Str("pod_code", code).Msg("failed to build timer event")
		return
	}
	a.hub.Publish(code, ev, "")
}

func (pc *podClock) stateLocked() models.PodTimerState {
	return models.PodTimerState{
		PodCode:          pc.code,
		Phase:            pc.phase,
		RemainingSeconds: pc.remaining,
		Running:          pc.state == models.TimerRunning,
		State:            pc.state,
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already
// fired, per the time.Timer.Stop contract.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
