package progress

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/anneliv/orato/pkg/types"

	_ "modernc.org/sqlite" // SQLite driver.
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists sessions and goals in a single SQLite file. Safe for
// concurrent use through database/sql's connection pool.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("progress: create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("progress: open db: %w", err)
	}
	s := &SQLiteStore{db: db, log: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("progress: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			exercise_id TEXT NOT NULL,
			exercise_type TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			fluency_score REAL NOT NULL,
			clarity_score REAL NOT NULL,
			confidence_score REAL NOT NULL,
			words_per_minute REAL NOT NULL,
			total_words INTEGER NOT NULL,
			repetition_count INTEGER NOT NULL,
			pause_count INTEGER NOT NULL,
			audio_url TEXT NOT NULL,
			notes TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS goals (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			weekly_sessions INTEGER NOT NULL,
			weekly_minutes INTEGER NOT NULL,
			monthly_sessions INTEGER NOT NULL,
			monthly_minutes INTEGER NOT NULL,
			target_fluency REAL NOT NULL,
			target_streak INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_completed_at ON sessions(completed_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	// Seed the goals singleton so readers never see an empty table.
	g := DefaultGoals()
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO goals (id, weekly_sessions, weekly_minutes, monthly_sessions, monthly_minutes, target_fluency, target_streak)
		 VALUES (1, ?, ?, ?, ?, ?, ?)`,
		g.WeeklySessions, g.WeeklyMinutes, g.MonthlySessions, g.MonthlyMinutes, g.TargetFluency, g.TargetStreak,
	)
	return err
}

// Add implements [Store].
func (s *SQLiteStore) Add(ctx context.Context, draft SessionDraft) (ExerciseSession, error) {
	session := sessionFromDraft(draft, uuid.NewString(), s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, exercise_id, exercise_type, completed_at, duration_ms, fluency_score, clarity_score, confidence_score, words_per_minute, total_words, repetition_count, pause_count, audio_url, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.ExerciseID,
		string(session.ExerciseType),
		session.CompletedAt.UTC().Format(time.RFC3339Nano),
		session.Duration.Milliseconds(),
		session.FluencyScore,
		session.ClarityScore,
		session.ConfidenceScore,
		session.WordsPerMinute,
		session.TotalWords,
		session.RepetitionCount,
		session.PauseCount,
		session.AudioURL,
		session.Notes,
	)
	if err != nil {
		return ExerciseSession{}, fmt.Errorf("progress: insert session: %w", err)
	}
	return session, nil
}

// List implements [Store]. Rows that fail to parse are logged and skipped
// rather than failing the whole listing.
func (s *SQLiteStore) List(ctx context.Context) ([]ExerciseSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exercise_id, exercise_type, completed_at, duration_ms, fluency_score, clarity_score, confidence_score, words_per_minute, total_words, repetition_count, pause_count, audio_url, notes
		 FROM sessions
		 ORDER BY completed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("progress: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []ExerciseSession{}
	for rows.Next() {
		var (
			sess        ExerciseSession
			exType      string
			completedAt string
			durationMS  int64
		)
		if err := rows.Scan(
			&sess.ID, &sess.ExerciseID, &exType, &completedAt, &durationMS,
			&sess.FluencyScore, &sess.ClarityScore, &sess.ConfidenceScore,
			&sess.WordsPerMinute, &sess.TotalWords, &sess.RepetitionCount,
			&sess.PauseCount, &sess.AudioURL, &sess.Notes,
		); err != nil {
			return nil, fmt.Errorf("progress: scan session: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, completedAt)
		if err != nil {
			s.log.Warn("skipping session with bad timestamp", "id", sess.ID, "completed_at", completedAt)
			continue
		}
		sess.ExerciseType = types.ExerciseType(exType)
		sess.CompletedAt = at
		sess.Duration = time.Duration(durationMS) * time.Millisecond
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("progress: list sessions: %w", err)
	}
	return sessions, nil
}

// Goals implements [Store].
func (s *SQLiteStore) Goals(ctx context.Context) (Goals, error) {
	var g Goals
	err := s.db.QueryRowContext(ctx,
		`SELECT weekly_sessions, weekly_minutes, monthly_sessions, monthly_minutes, target_fluency, target_streak
		 FROM goals WHERE id = 1`).
		Scan(&g.WeeklySessions, &g.WeeklyMinutes, &g.MonthlySessions, &g.MonthlyMinutes, &g.TargetFluency, &g.TargetStreak)
	if err != nil {
		return Goals{}, fmt.Errorf("progress: read goals: %w", err)
	}
	return g, nil
}

// UpdateGoals implements [Store].
func (s *SQLiteStore) UpdateGoals(ctx context.Context, update GoalsUpdate) (Goals, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Goals{}, fmt.Errorf("progress: update goals: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var g Goals
	err = tx.QueryRowContext(ctx,
		`SELECT weekly_sessions, weekly_minutes, monthly_sessions, monthly_minutes, target_fluency, target_streak
		 FROM goals WHERE id = 1`).
		Scan(&g.WeeklySessions, &g.WeeklyMinutes, &g.MonthlySessions, &g.MonthlyMinutes, &g.TargetFluency, &g.TargetStreak)
	if err != nil {
		return Goals{}, fmt.Errorf("progress: update goals: %w", err)
	}

	g = update.apply(g)
	if err := writeGoalsTx(ctx, tx, g); err != nil {
		return Goals{}, fmt.Errorf("progress: update goals: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Goals{}, fmt.Errorf("progress: update goals: %w", err)
	}
	return g, nil
}

// Clear implements [Store].
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("progress: clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("progress: clear: %w", err)
	}
	if err := writeGoalsTx(ctx, tx, DefaultGoals()); err != nil {
		return fmt.Errorf("progress: clear: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("progress: clear: %w", err)
	}
	return nil
}

// ReplaceAll implements [Store]. Runs in one transaction so a failed import
// never leaves a half-replaced store.
func (s *SQLiteStore) ReplaceAll(ctx context.Context, sessions []ExerciseSession, goals Goals) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("progress: replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("progress: replace: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sessions (id, exercise_id, exercise_type, completed_at, duration_ms, fluency_score, clarity_score, confidence_score, words_per_minute, total_words, repetition_count, pause_count, audio_url, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("progress: replace: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, sess := range sessions {
		if _, err := stmt.ExecContext(ctx,
			sess.ID, sess.ExerciseID, string(sess.ExerciseType),
			sess.CompletedAt.UTC().Format(time.RFC3339Nano),
			sess.Duration.Milliseconds(),
			sess.FluencyScore, sess.ClarityScore, sess.ConfidenceScore,
			sess.WordsPerMinute, sess.TotalWords, sess.RepetitionCount,
			sess.PauseCount, sess.AudioURL, sess.Notes,
		); err != nil {
			return fmt.Errorf("progress: replace: insert %s: %w", sess.ID, err)
		}
	}

	if err := writeGoalsTx(ctx, tx, goals); err != nil {
		return fmt.Errorf("progress: replace: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("progress: replace: %w", err)
	}
	return nil
}

func writeGoalsTx(ctx context.Context, tx *sql.Tx, g Goals) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE goals SET weekly_sessions = ?, weekly_minutes = ?, monthly_sessions = ?, monthly_minutes = ?, target_fluency = ?, target_streak = ?
		 WHERE id = 1`,
		g.WeeklySessions, g.WeeklyMinutes, g.MonthlySessions, g.MonthlyMinutes, g.TargetFluency, g.TargetStreak)
	return err
}
