package progress

import (
	"context"
	"math"
	"time"

	"github.com/anneliv/orato/pkg/types"
)

// streakWindowDays bounds how far back the streak scan looks.
const streakWindowDays = 365

// DefaultStreakMinimum is the practice time a day needs to count as a
// streak day.
const DefaultStreakMinimum = 5 * time.Minute

// Aggregator computes every derived progress view over a [Store]. Views are
// pure functions of the session list; calling one twice without adding
// sessions yields identical results.
type Aggregator struct {
	store Store

	// streakMinimum is the daily practice floor for streak days.
	streakMinimum time.Duration

	// now is the clock for "today"-relative views. Tests override it.
	now func() time.Time
}

// AggregatorOption configures an [Aggregator].
type AggregatorOption func(*Aggregator)

// WithStreakMinimum overrides the daily practice floor for streak days.
func WithStreakMinimum(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.streakMinimum = d
		}
	}
}

// WithClock overrides the aggregator's clock. Intended for tests.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator returns an Aggregator over store.
func NewAggregator(store Store, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store:         store,
		streakMinimum: DefaultStreakMinimum,
		now:           time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// DailyProgress rolls up all sessions completed on the calendar date of
// day, in day's location. A date with no sessions yields a zeroed record.
func (a *Aggregator) DailyProgress(ctx context.Context, day time.Time) (DailyProgress, error) {
	sessions, err := a.store.List(ctx)
	if err != nil {
		return DailyProgress{}, err
	}
	return a.dailyFrom(sessions, day), nil
}

// dailyFrom computes the rollup without touching the store, for reuse by
// the weekly and streak views.
func (a *Aggregator) dailyFrom(sessions []ExerciseSession, day time.Time) DailyProgress {
	date := calendarDay(day)
	p := DailyProgress{Date: date}

	var fluency, clarity, confidence float64
	for _, s := range sessions {
		if !calendarDay(s.CompletedAt.In(day.Location())).Equal(date) {
			continue
		}
		p.Sessions++
		p.TotalDuration += s.Duration
		fluency += s.FluencyScore
		clarity += s.ClarityScore
		confidence += s.ConfidenceScore
	}
	if p.Sessions > 0 {
		n := float64(p.Sessions)
		p.AvgFluency = fluency / n
		p.AvgClarity = clarity / n
		p.AvgConfidence = confidence / n
	}
	p.StreakDay = p.TotalDuration >= a.streakMinimum
	return p
}

// WeeklyProgress returns rollups for the most recent weekCount weeks,
// newest first. Weeks start on Monday. The improvement delta on each week
// compares it against the week before it; the oldest requested week
// carries no delta.
func (a *Aggregator) WeeklyProgress(ctx context.Context, weekCount int) ([]WeeklyProgress, error) {
	if weekCount <= 0 {
		weekCount = 1
	}
	sessions, err := a.store.List(ctx)
	if err != nil {
		return nil, err
	}

	now := a.now()
	weeks := make([]WeeklyProgress, 0, weekCount)
	// Compute one extra trailing week so the oldest requested week could
	// still get a delta if it has a predecessor with sessions.
	starts := make([]time.Time, weekCount+1)
	cur := weekStart(now)
	for i := range starts {
		starts[i] = cur.AddDate(0, 0, -7*i)
	}

	rollups := make([]WeeklyProgress, len(starts))
	for i, start := range starts {
		rollups[i] = a.weekFrom(sessions, start)
	}

	for i := 0; i < weekCount; i++ {
		w := rollups[i]
		prev := rollups[i+1]
		if w.Sessions > 0 && prev.Sessions > 0 {
			delta := w.AvgFluency - prev.AvgFluency
			w.FluencyDelta = &delta
		}
		weeks = append(weeks, w)
	}
	return weeks, nil
}

func (a *Aggregator) weekFrom(sessions []ExerciseSession, start time.Time) WeeklyProgress {
	w := WeeklyProgress{
		WeekStart:  start,
		TypeCounts: make(map[types.ExerciseType]int),
	}

	var fluency, clarity, confidence float64
	for i := range w.Days {
		day := a.dailyFrom(sessions, start.AddDate(0, 0, i))
		w.Days[i] = day
		w.Sessions += day.Sessions
		w.TotalDuration += day.TotalDuration
		fluency += day.AvgFluency * float64(day.Sessions)
		clarity += day.AvgClarity * float64(day.Sessions)
		confidence += day.AvgConfidence * float64(day.Sessions)
	}
	if w.Sessions > 0 {
		n := float64(w.Sessions)
		w.AvgFluency = fluency / n
		w.AvgClarity = clarity / n
		w.AvgConfidence = confidence / n
	}

	end := start.AddDate(0, 0, 7)
	for _, s := range sessions {
		at := s.CompletedAt.In(start.Location())
		if !at.Before(start) && at.Before(end) {
			w.TypeCounts[s.ExerciseType]++
		}
	}
	return w
}

// StreakData scans the most recent 365 days backward from today. A streak
// is a maximal run of consecutive streak days; the current streak is the
// run that reaches today or yesterday (today may still be in progress).
func (a *Aggregator) StreakData(ctx context.Context) (StreakData, error) {
	sessions, err := a.store.List(ctx)
	if err != nil {
		return StreakData{}, err
	}

	today := calendarDay(a.now())

	// Minutes practised per day, keyed by day offset back from today.
	perDay := make(map[int]time.Duration)
	for _, s := range sessions {
		day := calendarDay(s.CompletedAt.In(today.Location()))
		offset := daysBetween(day, today)
		if offset < 0 || offset >= streakWindowDays {
			continue
		}
		perDay[offset] += s.Duration
	}

	streakDay := func(offset int) bool {
		return perDay[offset] >= a.streakMinimum
	}

	var data StreakData

	// Walk backward collecting maximal runs.
	for offset := 0; offset < streakWindowDays; {
		if !streakDay(offset) {
			offset++
			continue
		}
		runEnd := offset
		for offset < streakWindowDays && streakDay(offset) {
			offset++
		}
		runStart := offset - 1 // farthest-back day of this run
		span := StreakSpan{
			Start:  today.AddDate(0, 0, -runStart),
			End:    today.AddDate(0, 0, -runEnd),
			Length: runStart - runEnd + 1,
		}
		data.History = append(data.History, span)

		if span.Length > data.Longest {
			data.Longest = span.Length
		}
		if data.LastActive.IsZero() {
			data.LastActive = span.End
		}
		// The run is "current" when it reaches today, or ended yesterday
		// (today's practice may simply not have happened yet).
		if runEnd <= 1 && data.Current == 0 {
			data.Current = span.Length
			data.StreakStart = span.Start
		}
	}

	sortSpansByLength(data.History)
	return data, nil
}

// Stats computes the all-time aggregate plus goal completion percentages.
// An empty store yields an all-zero Stats with no error.
func (a *Aggregator) Stats(ctx context.Context) (Stats, error) {
	sessions, err := a.store.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	goals, err := a.store.Goals(ctx)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	var fluency, clarity, confidence float64
	typeCounts := make(map[types.ExerciseType]int)

	for _, s := range sessions {
		st.TotalSessions++
		st.TotalDuration += s.Duration
		fluency += s.FluencyScore
		clarity += s.ClarityScore
		confidence += s.ConfidenceScore
		typeCounts[s.ExerciseType]++
	}
	if st.TotalSessions > 0 {
		n := float64(st.TotalSessions)
		st.AvgFluency = fluency / n
		st.AvgClarity = clarity / n
		st.AvgConfidence = confidence / n
	}
	st.FavoriteType = favoriteType(sessions, typeCounts)

	streak, err := a.StreakData(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.CurrentStreak = streak.Current

	now := a.now()
	wkStart := weekStart(now)
	moStart := monthStart(now)

	var weekSessions, monthSessions int
	var weekDuration, monthDuration time.Duration
	for _, s := range sessions {
		at := s.CompletedAt.In(now.Location())
		if !at.Before(wkStart) {
			weekSessions++
			weekDuration += s.Duration
		}
		if !at.Before(moStart) {
			monthSessions++
			monthDuration += s.Duration
		}
	}

	st.WeeklySessionGoal = goalPercent(float64(weekSessions), float64(goals.WeeklySessions))
	st.WeeklyDurationGoal = goalPercent(weekDuration.Minutes(), float64(goals.WeeklyMinutes))
	st.MonthlySessionGoal = goalPercent(float64(monthSessions), float64(goals.MonthlySessions))
	st.MonthlyDurationGoal = goalPercent(monthDuration.Minutes(), float64(goals.MonthlyMinutes))
	return st, nil
}

// goalPercent is min(100, actual/target × 100), with a zero or negative
// target treated as "no goal set" and reported as zero progress.
func goalPercent(actual, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return math.Min(100, actual/target*100)
}

// favoriteType is the highest-frequency exercise type. Ties go to the type
// seen most recently, which is deterministic because sessions are sorted.
func favoriteType(sessions []ExerciseSession, counts map[types.ExerciseType]int) types.ExerciseType {
	var best types.ExerciseType
	bestCount := 0
	for _, s := range sessions {
		if c := counts[s.ExerciseType]; c > bestCount {
			best = s.ExerciseType
			bestCount = c
		}
	}
	return best
}

func sortSpansByLength(spans []StreakSpan) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].Length > spans[j-1].Length; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
}

// calendarDay truncates t to midnight in its own location.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// weekStart returns the Monday of t's week at midnight.
func weekStart(t time.Time) time.Time {
	day := calendarDay(t)
	wd := int(day.Weekday())
	if wd == 0 {
		wd = 7 // Sunday belongs to the week started six days earlier
	}
	return day.AddDate(0, 0, -(wd - 1))
}

// monthStart returns the first day of t's month at midnight.
func monthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// daysBetween returns the whole calendar days from a to b (both midnight).
// The dates are re-anchored in UTC before subtracting so a DST transition
// between them cannot shorten a day below 24 hours and truncate the count.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
