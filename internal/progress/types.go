// Package progress owns the completed-session history and the
// user-configurable goals, and computes every derived progress view
// (daily and weekly rollups, streaks, aggregate stats) on demand.
//
// Derived views are pure recomputations over the session list: nothing is
// cached authoritatively, so a view can never drift out of sync with the
// sessions underneath it. The session list itself is append-only — sessions
// are added once when an exercise completes and never updated, only
// bulk-cleared or replaced wholesale by an import.
package progress

import (
	"errors"
	"time"

	"github.com/anneliv/orato/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("progress: not found")

// ExerciseSession is one completed practice record. Immutable after
// creation; identity is the ID.
type ExerciseSession struct {
	ID           string             `json:"id"`
	ExerciseID   string             `json:"exercise_id"`
	ExerciseType types.ExerciseType `json:"exercise_type"`

	// CompletedAt is when the exercise finished.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the exercise length.
	Duration time.Duration `json:"duration"`

	FluencyScore    float64 `json:"fluency_score"`
	ClarityScore    float64 `json:"clarity_score"`
	ConfidenceScore float64 `json:"confidence_score"`

	// Optional analysis detail. Zero values mean "not measured" — a session
	// recorded after a failed analysis still counts for progress tracking.
	WordsPerMinute  float64 `json:"words_per_minute,omitempty"`
	TotalWords      int     `json:"total_words,omitempty"`
	RepetitionCount int     `json:"repetition_count,omitempty"`
	PauseCount      int     `json:"pause_count,omitempty"`

	AudioURL string `json:"audio_url,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// SessionDraft is the caller-supplied part of a session. The store assigns
// the ID and completion timestamp on insert.
type SessionDraft struct {
	ExerciseID   string             `json:"exercise_id"`
	ExerciseType types.ExerciseType `json:"exercise_type"`
	Duration     time.Duration      `json:"duration"`

	FluencyScore    float64 `json:"fluency_score"`
	ClarityScore    float64 `json:"clarity_score"`
	ConfidenceScore float64 `json:"confidence_score"`

	WordsPerMinute  float64 `json:"words_per_minute,omitempty"`
	TotalWords      int     `json:"total_words,omitempty"`
	RepetitionCount int     `json:"repetition_count,omitempty"`
	PauseCount      int     `json:"pause_count,omitempty"`

	AudioURL string `json:"audio_url,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Goals are the user's practice targets. Persisted as a single record.
type Goals struct {
	// WeeklySessions and WeeklyMinutes are per-week targets.
	WeeklySessions int `json:"weekly_sessions"`
	WeeklyMinutes  int `json:"weekly_minutes"`

	// MonthlySessions and MonthlyMinutes are per-month targets.
	MonthlySessions int `json:"monthly_sessions"`
	MonthlyMinutes  int `json:"monthly_minutes"`

	// TargetFluency is the fluency score the user is working towards.
	TargetFluency float64 `json:"target_fluency"`

	// TargetStreak is the streak length the user is working towards, in days.
	TargetStreak int `json:"target_streak"`
}

// DefaultGoals are applied to a fresh store and after a full reset.
func DefaultGoals() Goals {
	return Goals{
		WeeklySessions:  5,
		WeeklyMinutes:   60,
		MonthlySessions: 20,
		MonthlyMinutes:  240,
		TargetFluency:   80,
		TargetStreak:    7,
	}
}

// GoalsUpdate is a partial goals change. Nil fields keep their prior value.
type GoalsUpdate struct {
	WeeklySessions  *int     `json:"weekly_sessions,omitempty"`
	WeeklyMinutes   *int     `json:"weekly_minutes,omitempty"`
	MonthlySessions *int     `json:"monthly_sessions,omitempty"`
	MonthlyMinutes  *int     `json:"monthly_minutes,omitempty"`
	TargetFluency   *float64 `json:"target_fluency,omitempty"`
	TargetStreak    *int     `json:"target_streak,omitempty"`
}

// apply merges the update over g.
func (u GoalsUpdate) apply(g Goals) Goals {
	if u.WeeklySessions != nil {
		g.WeeklySessions = *u.WeeklySessions
	}
	if u.WeeklyMinutes != nil {
		g.WeeklyMinutes = *u.WeeklyMinutes
	}
	if u.MonthlySessions != nil {
		g.MonthlySessions = *u.MonthlySessions
	}
	if u.MonthlyMinutes != nil {
		g.MonthlyMinutes = *u.MonthlyMinutes
	}
	if u.TargetFluency != nil {
		g.TargetFluency = *u.TargetFluency
	}
	if u.TargetStreak != nil {
		g.TargetStreak = *u.TargetStreak
	}
	return g
}

// DailyProgress is the rollup of all sessions completed on one calendar
// date. Derived on demand, never stored.
type DailyProgress struct {
	// Date is the calendar day, at midnight local time.
	Date time.Time `json:"date"`

	Sessions      int           `json:"sessions"`
	TotalDuration time.Duration `json:"total_duration"`

	AvgFluency    float64 `json:"avg_fluency"`
	AvgClarity    float64 `json:"avg_clarity"`
	AvgConfidence float64 `json:"avg_confidence"`

	// StreakDay is true when the day's practice meets the streak minimum.
	StreakDay bool `json:"streak_day"`
}

// WeeklyProgress is seven consecutive daily rollups (Monday through Sunday)
// plus week totals. Derived on demand, never stored.
type WeeklyProgress struct {
	// WeekStart is the Monday of the week, at midnight local time.
	WeekStart time.Time `json:"week_start"`

	Days [7]DailyProgress `json:"days"`

	Sessions      int           `json:"sessions"`
	TotalDuration time.Duration `json:"total_duration"`

	AvgFluency    float64 `json:"avg_fluency"`
	AvgClarity    float64 `json:"avg_clarity"`
	AvgConfidence float64 `json:"avg_confidence"`

	// TypeCounts is the exercise-type histogram for the week.
	TypeCounts map[types.ExerciseType]int `json:"type_counts"`

	// FluencyDelta is this week's average fluency minus the previous
	// week's, present only when both weeks had sessions.
	FluencyDelta *float64 `json:"fluency_delta,omitempty"`
}

// StreakSpan is one maximal run of consecutive streak days.
type StreakSpan struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Length int       `json:"length"`
}

// StreakData summarises the user's practice streaks over the scan window.
type StreakData struct {
	Current int `json:"current"`
	Longest int `json:"longest"`

	// LastActive is the most recent streak day, zero when none exists.
	LastActive time.Time `json:"last_active,omitzero"`

	// StreakStart is the first day of the current streak, zero when there
	// is no current streak.
	StreakStart time.Time `json:"streak_start,omitzero"`

	// History lists every streak in the window, sorted descending by length.
	History []StreakSpan `json:"history"`
}

// Stats is the all-time aggregate view plus goal progress.
type Stats struct {
	TotalSessions int           `json:"total_sessions"`
	TotalDuration time.Duration `json:"total_duration"`

	AvgFluency    float64 `json:"avg_fluency"`
	AvgClarity    float64 `json:"avg_clarity"`
	AvgConfidence float64 `json:"avg_confidence"`

	// FavoriteType is the most frequent exercise type, empty with no sessions.
	FavoriteType types.ExerciseType `json:"favorite_type,omitempty"`

	CurrentStreak int `json:"current_streak"`

	// Goal completion percentages, each min(100, actual/target × 100).
	WeeklySessionGoal   float64 `json:"weekly_session_goal"`
	WeeklyDurationGoal  float64 `json:"weekly_duration_goal"`
	MonthlySessionGoal  float64 `json:"monthly_session_goal"`
	MonthlyDurationGoal float64 `json:"monthly_duration_goal"`
}
