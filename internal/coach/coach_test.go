package coach

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/anneliv/orato/internal/fluency"
	"github.com/anneliv/orato/internal/segmenter"
	"github.com/anneliv/orato/pkg/types"
)

func metricsWith(fluencyScore, clarity, confidence, wpm float64, repetitions int) fluency.Metrics {
	m := fluency.Metrics{
		FluencyScore:    fluencyScore,
		ClarityScore:    clarity,
		ConfidenceScore: confidence,
		WordsPerMinute:  wpm,
	}
	for i := 0; i < repetitions; i++ {
		m.Repetitions = append(m.Repetitions, segmenter.RepetitionRecord{Word: "word", Count: 3})
	}
	return m
}

// ── Scoring ──────────────────────────────────────────────────────────────────

func TestOverallScoreWeights(t *testing.T) {
	t.Parallel()

	// All dimensions at 100 → 100.
	if got := OverallScore(metricsWith(100, 100, 100, 140, 0)); got != 100 {
		t.Fatalf("want 100, got %v", got)
	}

	// Zeroing only clarity (30% weight) drops exactly 30 points.
	if got := OverallScore(metricsWith(100, 0, 100, 140, 0)); got != 70 {
		t.Fatalf("want 70, got %v", got)
	}

	// Zeroing pace (10% weight): 0 WPM is 120 from the band floor → pace
	// sub-score 0 → 10 point drop.
	if got := OverallScore(metricsWith(100, 100, 100, 0, 0)); got != 90 {
		t.Fatalf("want 90, got %v", got)
	}
}

func TestPaceScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wpm  float64
		want float64
	}{
		{120, 100},
		{140, 100},
		{160, 100},
		{110, 90},
		{170, 90},
		{280, 0},
		{0, 0},
	}
	for _, tt := range tests {
		if got := PaceScore(tt.wpm); got != tt.want {
			t.Fatalf("PaceScore(%v) = %v, want %v", tt.wpm, got, tt.want)
		}
	}
}

func TestRepetitionScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		count int
		want  float64
	}{
		{0, 100},
		{1, 85},
		{3, 55},
		{7, 0},
		{20, 0},
	}
	for _, tt := range tests {
		if got := RepetitionScore(tt.count); got != tt.want {
			t.Fatalf("RepetitionScore(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

// ── Feedback tiers ───────────────────────────────────────────────────────────

func TestDimensionTiers(t *testing.T) {
	t.Parallel()

	g := New()

	t.Run("high scores produce achievements with low priority", func(t *testing.T) {
		t.Parallel()
		s := g.Generate("user-1", Exercise{ID: "ex-1", Type: types.ExerciseFluency}, metricsWith(90, 90, 90, 140, 0), nil)
		for _, fb := range s.Feedback {
			if fb.Kind != KindAchievement {
				t.Fatalf("want only achievements at high scores, got %+v", fb)
			}
			if fb.Priority == PriorityHigh {
				t.Fatalf("achievements must not be high priority, got %+v", fb)
			}
		}
	})

	t.Run("low scores produce high-priority attention items", func(t *testing.T) {
		t.Parallel()
		s := g.Generate("user-1", Exercise{ID: "ex-1", Type: types.ExerciseFluency}, metricsWith(30, 30, 30, 300, 7), nil)
		for _, cat := range []Category{CategoryFluency, CategoryClarity, CategoryPace} {
			fb, ok := findFeedback(s.Feedback, cat)
			if !ok {
				t.Fatalf("missing %s feedback", cat)
			}
			if fb.Priority != PriorityHigh {
				t.Fatalf("%s at a low score must be high priority, got %+v", cat, fb)
			}
		}
	})

	t.Run("every dimension always produces one item", func(t *testing.T) {
		t.Parallel()
		s := g.Generate("user-1", Exercise{ID: "ex-1", Type: types.ExerciseFluency}, metricsWith(70, 65, 82, 150, 1), nil)
		for _, cat := range []Category{CategoryFluency, CategoryClarity, CategoryConfidence, CategoryPace, CategoryRepetition} {
			if _, ok := findFeedback(s.Feedback, cat); !ok {
				t.Fatalf("missing %s feedback", cat)
			}
		}
	})
}

func findFeedback(items []Feedback, cat Category) (Feedback, bool) {
	for _, fb := range items {
		if fb.Category == cat {
			return fb, true
		}
	}
	return Feedback{}, false
}

func TestExerciseBonus(t *testing.T) {
	t.Parallel()

	g := New()

	t.Run("pacing exercise in band earns perfect pace", func(t *testing.T) {
		t.Parallel()
		s := g.Generate("u", Exercise{ID: "e", Type: types.ExercisePacing}, metricsWith(80, 80, 80, 140, 0), nil)
		fb, ok := findFeedback(s.Feedback, CategoryExercise)
		if !ok || fb.Kind != KindAchievement {
			t.Fatalf("want a pacing achievement, got %+v", s.Feedback)
		}
	})

	t.Run("pacing exercise out of band earns nothing extra", func(t *testing.T) {
		t.Parallel()
		s := g.Generate("u", Exercise{ID: "e", Type: types.ExercisePacing}, metricsWith(80, 80, 80, 250, 0), nil)
		if _, ok := findFeedback(s.Feedback, CategoryExercise); ok {
			t.Fatal("out-of-band pacing must not earn the bonus")
		}
	})

	t.Run("clean repetition drill earns clean run", func(t *testing.T) {
		t.Parallel()
		s := g.Generate("u", Exercise{ID: "e", Type: types.ExerciseRepetition}, metricsWith(80, 80, 80, 140, 0), nil)
		if _, ok := findFeedback(s.Feedback, CategoryExercise); !ok {
			t.Fatal("repetition drill with no repetitions must earn the bonus")
		}
	})
}

// ── Personalisation ──────────────────────────────────────────────────────────

func TestPersonalFeedback(t *testing.T) {
	t.Parallel()

	g := New()

	t.Run("streak milestone appears at seven days", func(t *testing.T) {
		t.Parallel()
		p := &Profile{Sessions: 10, Streak: 7, AvgFluency: 70, AvgClarity: 75, AvgConfidence: 80}
		s := g.Generate("u", Exercise{ID: "e", Type: types.ExerciseFluency}, metricsWith(60, 60, 60, 140, 0), p)
		found := false
		for _, fb := range s.Feedback {
			if fb.Category == CategoryPersonal && fb.Emoji == "🔥" {
				found = true
			}
		}
		if !found {
			t.Fatal("want a streak milestone item")
		}
	})

	t.Run("weakest area is called out", func(t *testing.T) {
		t.Parallel()
		p := &Profile{Sessions: 5, Streak: 2, AvgFluency: 80, AvgClarity: 55, AvgConfidence: 75}
		s := g.Generate("u", Exercise{ID: "e", Type: types.ExerciseFluency}, metricsWith(60, 60, 60, 140, 0), p)
		if _, ok := findFeedback(s.Feedback, CategoryClarity); !ok {
			t.Fatal("want the weakest area (clarity) highlighted")
		}
	})

	t.Run("nil profile adds nothing personal", func(t *testing.T) {
		t.Parallel()
		s := g.Generate("u", Exercise{ID: "e", Type: types.ExerciseFluency}, metricsWith(60, 60, 60, 140, 0), nil)
		if _, ok := findFeedback(s.Feedback, CategoryPersonal); ok {
			t.Fatal("no personal feedback without a profile")
		}
	})
}

// ── Motivational messages ────────────────────────────────────────────────────

func TestMotivationalMessagePools(t *testing.T) {
	t.Parallel()

	g := New()
	tests := []struct {
		score float64
		pool  []string
	}{
		{95, excellentMessages},
		{85, excellentMessages},
		{75, goodMessages},
		{55, improvingMessages},
		{10, beginnerMessages},
	}
	for _, tt := range tests {
		msg := g.MotivationalMessage(tt.score)
		if !slices.Contains(tt.pool, msg) {
			t.Fatalf("score %v: message %q not in expected pool", tt.score, msg)
		}
	}
}

func TestMotivationalMessageSeeded(t *testing.T) {
	t.Parallel()

	a := New(WithRand(rand.New(rand.NewPCG(7, 7))))
	b := New(WithRand(rand.New(rand.NewPCG(7, 7))))
	for i := 0; i < 10; i++ {
		if ma, mb := a.MotivationalMessage(90), b.MotivationalMessage(90); ma != mb {
			t.Fatalf("seeded generators must agree: %q vs %q", ma, mb)
		}
	}
}

// ── Profile updates ──────────────────────────────────────────────────────────

func TestProfileUpdate(t *testing.T) {
	t.Parallel()

	day := func(d int) time.Time {
		return time.Date(2026, 5, 1+d, 18, 0, 0, 0, time.UTC)
	}

	t.Run("first session seeds averages", func(t *testing.T) {
		t.Parallel()
		var p Profile
		p.Update(80, 70, 60, day(0))
		if p.AvgFluency != 80 || p.AvgClarity != 70 || p.AvgConfidence != 60 {
			t.Fatalf("first session must seed averages, got %+v", p)
		}
		if p.Streak != 1 || p.Sessions != 1 {
			t.Fatalf("want streak 1 sessions 1, got %+v", p)
		}
	})

	t.Run("subsequent sessions apply the moving average", func(t *testing.T) {
		t.Parallel()
		var p Profile
		p.Update(80, 80, 80, day(0))
		p.Update(90, 80, 80, day(1))
		if math.Abs(p.AvgFluency-81) > 1e-9 {
			t.Fatalf("want 80 + 0.1*(90-80) = 81, got %v", p.AvgFluency)
		}
	})

	t.Run("next-day session increments the streak", func(t *testing.T) {
		t.Parallel()
		var p Profile
		p.Update(80, 80, 80, day(0))
		p.Update(80, 80, 80, day(1))
		p.Update(80, 80, 80, day(2))
		if p.Streak != 3 {
			t.Fatalf("want streak 3, got %d", p.Streak)
		}
	})

	t.Run("same-day session leaves the streak alone", func(t *testing.T) {
		t.Parallel()
		var p Profile
		p.Update(80, 80, 80, day(0))
		p.Update(80, 80, 80, day(1))
		p.Update(80, 80, 80, day(1).Add(2*time.Hour))
		if p.Streak != 2 {
			t.Fatalf("want streak 2 after a same-day repeat, got %d", p.Streak)
		}
	})

	t.Run("gap over one day resets the streak", func(t *testing.T) {
		t.Parallel()
		var p Profile
		p.Update(80, 80, 80, day(0))
		p.Update(80, 80, 80, day(1))
		p.Update(80, 80, 80, day(4))
		if p.Streak != 1 {
			t.Fatalf("want streak reset to 1, got %d", p.Streak)
		}
	})
}

// ── Exercise variants ────────────────────────────────────────────────────────

func TestExerciseValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ex      Exercise
		wantErr bool
	}{
		{"valid pacing", Exercise{Type: types.ExercisePacing, Params: PacingParams{MinWPM: 100, MaxWPM: 160}}, false},
		{"inverted pacing band", Exercise{Type: types.ExercisePacing, Params: PacingParams{MinWPM: 160, MaxWPM: 100}}, true},
		{"params of wrong kind", Exercise{Type: types.ExerciseBreathing, Params: PacingParams{MinWPM: 100, MaxWPM: 160}}, true},
		{"unknown type", Exercise{Type: "yodeling"}, true},
		{"no params is fine", Exercise{Type: types.ExerciseFreeSpeech}, false},
		{"empty repetition phrase", Exercise{Type: types.ExerciseRepetition, Params: RepetitionParams{Reps: 3}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.ex.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// ── Soundalike grouping ──────────────────────────────────────────────────────

func TestSoundalikeGroups(t *testing.T) {
	t.Parallel()

	t.Run("phonetically similar repeated words group together", func(t *testing.T) {
		t.Parallel()
		reps := []segmenter.RepetitionRecord{
			{Word: "there", Count: 4},
			{Word: "their", Count: 3},
			{Word: "window", Count: 3},
		}
		groups := soundalikeGroups(reps)
		if len(groups) == 0 {
			t.Fatal("want at least one soundalike group")
		}
		g := groups[0]
		if !slices.Contains(g, "there") || !slices.Contains(g, "their") {
			t.Fatalf("want there/their grouped, got %v", groups)
		}
		if slices.Contains(g, "window") {
			t.Fatalf("window must not join the there/their group, got %v", g)
		}
	})

	t.Run("distinct-sounding words produce no groups", func(t *testing.T) {
		t.Parallel()
		reps := []segmenter.RepetitionRecord{
			{Word: "window", Count: 3},
			{Word: "elephant", Count: 3},
		}
		if groups := soundalikeGroups(reps); len(groups) != 0 {
			t.Fatalf("want no groups, got %v", groups)
		}
	})

	t.Run("no repetitions no feedback", func(t *testing.T) {
		t.Parallel()
		if _, ok := soundalikeFeedback(nil); ok {
			t.Fatal("want no soundalike feedback for empty input")
		}
	})
}
