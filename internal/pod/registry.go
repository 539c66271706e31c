package pod

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/lockin-app/lockin/internal/models"
)

var (
	// ErrNotFound is returned when a join code does not resolve to a pod.
	ErrNotFound = errors.New("pod not found")
	// ErrRegistryExhausted is returned when code generation keeps colliding.
	// With a 31-character alphabet and 6 positions this is practically
	// unreachable.
	ErrRegistryExhausted = errors.New("pod code space exhausted")
)

const codeRetries = 64

// Registry creates pods and tracks membership. Codes are unique for the
// lifetime of the registry and never reused while a pod exists.
type Registry struct {
	mu    sync.Mutex
	pods  map[string]*state
	codes func() (string, error)
	clock clockwork.Clock
}

type state struct {
	code      string
	createdBy string
	createdAt time.Time
	members   map[string]struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithCodeFunc overrides the code generator. Used by tests to force
// collisions.
func WithCodeFunc(fn func() (string, error)) Option {
	return func(r *Registry) { r.codes = fn }
}

// WithClock overrides the registry clock.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Registry) { r.clock = clock }
}

// NewRegistry creates an empty pod registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		pods:  make(map[string]*state),
		codes: GenerateCode,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreatePod allocates a fresh join code and registers the creator as the
// first member.
func (r *Registry) CreatePod(creator string) (*models.Pod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.allocateCodeLocked()
	if err != nil {
		return nil, err
	}

	s := &state{
		code:      code,
		createdBy: creator,
		createdAt: r.clock.Now().UTC(),
		members:   map[string]struct{}{creator: {}},
	}
	r.pods[code] = s

	log.Info().
		Str("pod_code", code).
		Str("user_id", creator).
		Msg("pod created")

	return s.snapshot(), nil
}

// JoinPod adds a user to an existing pod. Joining a pod twice is a no-op, not
// an error. Concurrent joins to the same pod are serialized so no duplicate
// entries or lost updates are possible.
func (r *Registry) JoinPod(code, user string) (*models.Pod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.pods[Normalize(code)]
	if !ok {
		return nil, ErrNotFound
	}

	if _, joined := s.members[user]; !joined {
		s.members[user] = struct{}{}
		log.Info().
			Str("pod_code", s.code).
			Str("user_id", user).
			Int("members", len(s.members)).
			Msg("user joined pod")
	}

	return s.snapshot(), nil
}

// GetPod returns a snapshot of a pod by code.
func (r *Registry) GetPod(code string) (*models.Pod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.pods[Normalize(code)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.snapshot(), nil
}

// IsMember reports whether user belongs to the pod with the given code.
func (r *Registry) IsMember(code, user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.pods[Normalize(code)]
	if !ok {
		return false
	}
	_, joined := s.members[user]
	return joined
}

func (r *Registry) allocateCodeLocked() (string, error) {
	for i := 0; i < codeRetries; i++ {
		code, err := r.codes()
		if err != nil {
			return "", err
		}
		code = Normalize(code)
		if _, taken := r.pods[code]; !taken {
			return code, nil
		}
	}
	return "", ErrRegistryExhausted
}

// snapshot copies pod state so callers never alias registry internals.
// Members are sorted for stable responses.
func (s *state) snapshot() *models.Pod {
	members := make([]string, 0, len(s.members))
	for m := range s.members {
		members = append(members, m)
	}
	sort.Strings(members)

	return &models.Pod{
		Code:      s.code,
		Members:   members,
		CreatedBy: s.createdBy,
		CreatedAt: s.createdAt,
	}
}

// Normalize maps a join code to its canonical form. Codes are
// case-insensitive.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
