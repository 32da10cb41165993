package progress

import "context"

// Store owns the session list and the goals record. Implementations must be
// safe for concurrent use, and Add must be atomic from a reader's
// perspective — no partially inserted session is ever visible.
//
// Sessions are never updated or deduplicated: every completed exercise
// produces exactly one record, and records leave the store only through
// Clear or ReplaceAll.
type Store interface {
	// Add assigns a unique ID and a completion timestamp of "now" to the
	// draft, inserts it, and returns the stored session.
	Add(ctx context.Context, draft SessionDraft) (ExerciseSession, error)

	// List returns all sessions sorted descending by completion time.
	// The returned slice is the caller's to keep.
	List(ctx context.Context) ([]ExerciseSession, error)

	// Goals returns the current goals record.
	Goals(ctx context.Context) (Goals, error)

	// UpdateGoals merges the partial update into the stored goals and
	// returns the result. Fields absent from the update keep prior values.
	UpdateGoals(ctx context.Context, update GoalsUpdate) (Goals, error)

	// Clear discards all sessions and resets goals to defaults. Irreversible.
	Clear(ctx context.Context) error

	// ReplaceAll swaps the entire store contents for the given sessions and
	// goals. Used by import; existing sessions are discarded, not merged.
	ReplaceAll(ctx context.Context, sessions []ExerciseSession, goals Goals) error
}
