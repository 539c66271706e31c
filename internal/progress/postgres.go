package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lockin-app/lockin/internal/models"
)

// PostgresStore persists progress rows and the session log in Postgres. The
// per-user atomicity contract is carried by SELECT ... FOR UPDATE inside one
// transaction, and replay detection by the unique index on
// (user_id, started_at, ended_at).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Progress(ctx context.Context, userID string) (*models.UserProgress, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, xp, level, streak, streak_history, hp, total_sessions, total_focus_seconds
		FROM user_progress
		WHERE user_id = $1`, userID)

	p, err := scanProgress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NewUserProgress(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Update(ctx context.Context, userID string, fn func(p *models.UserProgress) error) (*models.UserProgress, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*models.UserProgress, error) {
		return updateRow(ctx, tx, userID, fn)
	})
}

func (s *PostgresStore) RecordSession(ctx context.Context, sess models.FocusSession, fn func(p *models.UserProgress) error) (*models.UserProgress, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*models.UserProgress, error) {
		tag, err := tx.Exec(ctx, `
			INSERT INTO focus_sessions (user_id, started_at, ended_at, duration_seconds, session_type)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, started_at, ended_at) DO NOTHING`,
			sess.UserID, sess.StartedAt.UTC(), sess.EndedAt.UTC(), sess.DurationSeconds, string(sess.Type),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, ErrDuplicateSession
		}
		return updateRow(ctx, tx, sess.UserID, fn)
	})
}

// inTx runs fn inside a transaction; a returned error rolls everything back.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) (*models.UserProgress, error)) (*models.UserProgress, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return p, nil
}

// updateRow seeds the user's row if absent, locks it, applies fn and writes
// the result back.
func updateRow(ctx context.Context, tx pgx.Tx, userID string, fn func(p *models.UserProgress) error) (*models.UserProgress, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_progress (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return nil, fmt.Errorf("failed to seed progress row: %w", err)
	}

	row := tx.QueryRow(ctx, `
		SELECT user_id, xp, level, streak, streak_history, hp, total_sessions, total_focus_seconds
		FROM user_progress
		WHERE user_id = $1
		FOR UPDATE`, userID)
	p, err := scanProgress(row)
	if err != nil {
		return nil, fmt.Errorf("failed to lock progress row: %w", err)
	}

	if err := fn(p); err != nil {
		return nil, err
	}

	if p.StreakHistory == nil {
		p.StreakHistory = []string{}
	}
	history, err := json.Marshal(p.StreakHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal streak history: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE user_progress
		SET xp = $2, level = $3, streak = $4, streak_history = $5,
		    hp = $6, total_sessions = $7, total_focus_seconds = $8,
		    updated_at = now()
		WHERE user_id = $1`,
		p.UserID, p.XP, p.Level, p.Streak, history, p.HP, p.TotalSessions, p.TotalFocusSeconds,
	); err != nil {
		return nil, fmt.Errorf("failed to update progress: %w", err)
	}
	return p, nil
}

func scanProgress(row pgx.Row) (*models.UserProgress, error) {
	var (
		p       models.UserProgress
		history []byte
	)
	if err := row.Scan(&p.UserID, &p.XP, &p.Level, &p.Streak, &history, &p.HP, &p.TotalSessions, &p.TotalFocusSeconds); err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &p.StreakHistory); err != nil {
			return nil, fmt.Errorf("failed to unmarshal streak history: %w", err)
		}
	}
	return &p, nil
}
