package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. It is
// suitable for single-process use and testing.
type MemStore struct {
	mu       sync.RWMutex
	sessions []ExerciseSession // sorted descending by CompletedAt
	goals    Goals

	// now is the clock used for completion timestamps. Tests override it.
	now func() time.Time
}

// NewMemStore returns an initialised [MemStore] with default goals.
func NewMemStore() *MemStore {
	return &MemStore{
		goals: DefaultGoals(),
		now:   time.Now,
	}
}

// SetClock overrides the completion-timestamp clock. Intended for tests.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Add implements [Store.Add].
func (s *MemStore) Add(ctx context.Context, draft SessionDraft) (ExerciseSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := sessionFromDraft(draft, uuid.NewString(), s.now())
	s.sessions = append(s.sessions, session)
	sortSessions(s.sessions)
	return session, nil
}

// List implements [Store.List].
func (s *MemStore) List(ctx context.Context) ([]ExerciseSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ExerciseSession, len(s.sessions))
	copy(out, s.sessions)
	return out, nil
}

// Goals implements [Store.Goals].
func (s *MemStore) Goals(ctx context.Context) (Goals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.goals, nil
}

// UpdateGoals implements [Store.UpdateGoals].
func (s *MemStore) UpdateGoals(ctx context.Context, update GoalsUpdate) (Goals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.goals = update.apply(s.goals)
	return s.goals, nil
}

// Clear implements [Store.Clear].
func (s *MemStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	s.goals = DefaultGoals()
	return nil
}

// ReplaceAll implements [Store.ReplaceAll].
func (s *MemStore) ReplaceAll(ctx context.Context, sessions []ExerciseSession, goals Goals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make([]ExerciseSession, len(sessions))
	copy(s.sessions, sessions)
	sortSessions(s.sessions)
	s.goals = goals
	return nil
}

// sessionFromDraft materialises a draft into a stored session.
func sessionFromDraft(d SessionDraft, id string, at time.Time) ExerciseSession {
	return ExerciseSession{
		ID:              id,
		ExerciseID:      d.ExerciseID,
		ExerciseType:    d.ExerciseType,
		CompletedAt:     at,
		Duration:        d.Duration,
		FluencyScore:    d.FluencyScore,
		ClarityScore:    d.ClarityScore,
		ConfidenceScore: d.ConfidenceScore,
		WordsPerMinute:  d.WordsPerMinute,
		TotalWords:      d.TotalWords,
		RepetitionCount: d.RepetitionCount,
		PauseCount:      d.PauseCount,
		AudioURL:        d.AudioURL,
		Notes:           d.Notes,
	}
}

// sortSessions orders sessions descending by completion time in place.
func sortSessions(sessions []ExerciseSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CompletedAt.After(sessions[j].CompletedAt)
	})
}
