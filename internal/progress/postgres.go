package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/anneliv/orato/pkg/types"
)

// Schema is the SQL DDL for the progress tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS exercise_sessions (
    id               TEXT PRIMARY KEY,
    exercise_id      TEXT NOT NULL DEFAULT '',
    exercise_type    TEXT NOT NULL,
    completed_at     TIMESTAMPTZ NOT NULL,
    duration_ms      BIGINT NOT NULL,
    fluency_score    DOUBLE PRECISION NOT NULL,
    clarity_score    DOUBLE PRECISION NOT NULL,
    confidence_score DOUBLE PRECISION NOT NULL,
    words_per_minute DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_words      INTEGER NOT NULL DEFAULT 0,
    repetition_count INTEGER NOT NULL DEFAULT 0,
    pause_count      INTEGER NOT NULL DEFAULT 0,
    audio_url        TEXT NOT NULL DEFAULT '',
    notes            TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_exercise_sessions_completed_at ON exercise_sessions(completed_at DESC);

CREATE TABLE IF NOT EXISTS practice_goals (
    id               INTEGER PRIMARY KEY CHECK (id = 1),
    weekly_sessions  INTEGER NOT NULL,
    weekly_minutes   INTEGER NOT NULL,
    monthly_sessions INTEGER NOT NULL,
    monthly_minutes  INTEGER NOT NULL,
    target_fluency   DOUBLE PRECISION NOT NULL,
    target_streak    INTEGER NOT NULL
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] over the given connection or
// pool. The caller is responsible for calling [PostgresStore.Migrate] to
// ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate executes the [Schema] DDL and seeds the goals singleton.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("progress: migrate: %w", err)
	}
	g := DefaultGoals()
	_, err := s.db.Exec(ctx,
		`INSERT INTO practice_goals (id, weekly_sessions, weekly_minutes, monthly_sessions, monthly_minutes, target_fluency, target_streak)
		 VALUES (1,$1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO NOTHING`,
		g.WeeklySessions, g.WeeklyMinutes, g.MonthlySessions, g.MonthlyMinutes, g.TargetFluency, g.TargetStreak)
	if err != nil {
		return fmt.Errorf("progress: migrate: seed goals: %w", err)
	}
	return nil
}

// Add implements [Store].
func (s *PostgresStore) Add(ctx context.Context, draft SessionDraft) (ExerciseSession, error) {
	session := sessionFromDraft(draft, uuid.NewString(), s.now())

	const query = `
		INSERT INTO exercise_sessions (
			id, exercise_id, exercise_type, completed_at, duration_ms,
			fluency_score, clarity_score, confidence_score,
			words_per_minute, total_words, repetition_count, pause_count,
			audio_url, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	_, err := s.db.Exec(ctx, query,
		session.ID, session.ExerciseID, string(session.ExerciseType),
		session.CompletedAt, session.Duration.Milliseconds(),
		session.FluencyScore, session.ClarityScore, session.ConfidenceScore,
		session.WordsPerMinute, session.TotalWords, session.RepetitionCount,
		session.PauseCount, session.AudioURL, session.Notes,
	)
	if err != nil {
		return ExerciseSession{}, fmt.Errorf("progress: insert session: %w", err)
	}
	return session, nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context) ([]ExerciseSession, error) {
	const query = `
		SELECT id, exercise_id, exercise_type, completed_at, duration_ms,
		       fluency_score, clarity_score, confidence_score,
		       words_per_minute, total_words, repetition_count, pause_count,
		       audio_url, notes
		FROM exercise_sessions
		ORDER BY completed_at DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("progress: list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []ExerciseSession{}
	for rows.Next() {
		var (
			sess       ExerciseSession
			exType     string
			durationMS int64
		)
		if err := rows.Scan(
			&sess.ID, &sess.ExerciseID, &exType, &sess.CompletedAt, &durationMS,
			&sess.FluencyScore, &sess.ClarityScore, &sess.ConfidenceScore,
			&sess.WordsPerMinute, &sess.TotalWords, &sess.RepetitionCount,
			&sess.PauseCount, &sess.AudioURL, &sess.Notes,
		); err != nil {
			return nil, fmt.Errorf("progress: list scan: %w", err)
		}
		sess.ExerciseType = types.ExerciseType(exType)
		sess.Duration = time.Duration(durationMS) * time.Millisecond
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("progress: list sessions: %w", err)
	}
	return sessions, nil
}

// Goals implements [Store].
func (s *PostgresStore) Goals(ctx context.Context) (Goals, error) {
	var g Goals
	err := s.db.QueryRow(ctx,
		`SELECT weekly_sessions, weekly_minutes, monthly_sessions, monthly_minutes, target_fluency, target_streak
		 FROM practice_goals WHERE id = 1`).
		Scan(&g.WeeklySessions, &g.WeeklyMinutes, &g.MonthlySessions, &g.MonthlyMinutes, &g.TargetFluency, &g.TargetStreak)
	if err != nil {
		return Goals{}, fmt.Errorf("progress: read goals: %w", err)
	}
	return g, nil
}

// UpdateGoals implements [Store].
func (s *PostgresStore) UpdateGoals(ctx context.Context, update GoalsUpdate) (Goals, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Goals{}, fmt.Errorf("progress: update goals: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var g Goals
	err = tx.QueryRow(ctx,
		`SELECT weekly_sessions, weekly_minutes, monthly_sessions, monthly_minutes, target_fluency, target_streak
		 FROM practice_goals WHERE id = 1
		 FOR UPDATE`).
		Scan(&g.WeeklySessions, &g.WeeklyMinutes, &g.MonthlySessions, &g.MonthlyMinutes, &g.TargetFluency, &g.TargetStreak)
	if err != nil {
		return Goals{}, fmt.Errorf("progress: update goals: %w", err)
	}

	g = update.apply(g)
	if _, err := tx.Exec(ctx,
		`UPDATE practice_goals SET weekly_sessions = $1, weekly_minutes = $2, monthly_sessions = $3, monthly_minutes = $4, target_fluency = $5, target_streak = $6
		 WHERE id = 1`,
		g.WeeklySessions, g.WeeklyMinutes, g.MonthlySessions, g.MonthlyMinutes, g.TargetFluency, g.TargetStreak,
	); err != nil {
		return Goals{}, fmt.Errorf("progress: update goals: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Goals{}, fmt.Errorf("progress: update goals: %w", err)
	}
	return g, nil
}

// Clear implements [Store].
func (s *PostgresStore) Clear(ctx context.Context) error {
	return s.replaceTx(ctx, nil, DefaultGoals(), "clear")
}

// ReplaceAll implements [Store]. Runs in one transaction so a failed import
// never leaves a half-replaced store.
func (s *PostgresStore) ReplaceAll(ctx context.Context, sessions []ExerciseSession, goals Goals) error {
	return s.replaceTx(ctx, sessions, goals, "replace")
}

func (s *PostgresStore) replaceTx(ctx context.Context, sessions []ExerciseSession, goals Goals, op string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("progress: %s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM exercise_sessions`); err != nil {
		return fmt.Errorf("progress: %s: %w", op, err)
	}
	for _, sess := range sessions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO exercise_sessions (
				id, exercise_id, exercise_type, completed_at, duration_ms,
				fluency_score, clarity_score, confidence_score,
				words_per_minute, total_words, repetition_count, pause_count,
				audio_url, notes
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			sess.ID, sess.ExerciseID, string(sess.ExerciseType),
			sess.CompletedAt, sess.Duration.Milliseconds(),
			sess.FluencyScore, sess.ClarityScore, sess.ConfidenceScore,
			sess.WordsPerMinute, sess.TotalWords, sess.RepetitionCount,
			sess.PauseCount, sess.AudioURL, sess.Notes,
		); err != nil {
			return fmt.Errorf("progress: %s: insert %s: %w", op, sess.ID, err)
		}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE practice_goals SET weekly_sessions = $1, weekly_minutes = $2, monthly_sessions = $3, monthly_minutes = $4, target_fluency = $5, target_streak = $6
		 WHERE id = 1`,
		goals.WeeklySessions, goals.WeeklyMinutes, goals.MonthlySessions, goals.MonthlyMinutes, goals.TargetFluency, goals.TargetStreak,
	); err != nil {
		return fmt.Errorf("progress: %s: %w", op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("progress: %s: %w", op, err)
	}
	return nil
}
