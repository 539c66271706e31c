package progress

import (
	"context"
	"errors"

	"github.com/lockin-app/lockin/internal/models"
)

// ErrDuplicateSession is returned when a (user, start, end) triple has
// already been recorded. The ledger surfaces it as a Conflict.
var ErrDuplicateSession = errors.New("session already recorded")

// Store is the durable collaborator for per-user progress rows and the
// append-only session log.
type Store interface {
	// Progress returns the current counters for a user. Users with no row
	// yet read as the starting counters.
	Progress(ctx context.Context, userID string) (*models.UserProgress, error)

	// Update runs fn against the user's row under an atomic
	// read-modify-write. If fn returns an error nothing is persisted. No
	// two updates for the same user interleave.
	Update(ctx context.Context, userID string, fn func(p *models.UserProgress) error) (*models.UserProgress, error)

	// RecordSession appends a focus session and applies fn to the user's
	// row in the same transaction: either both persist or neither does. A
	// replay of the same (user, start, end) triple fails with
	// ErrDuplicateSession and leaves the row untouched.
	RecordSession(ctx context.Context, s models.FocusSession, fn func(p *models.UserProgress) error) (*models.UserProgress, error)
}
