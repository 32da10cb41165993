// Package coach maps a fluency analysis result (plus optional prior user
// history) to prioritised, human-readable feedback and an overall session
// score.
//
// Feedback generation is deterministic rule-based scoring: each dimension
// (fluency, clarity, confidence, pace, repetition control) has three score
// tiers producing a fixed message/emoji/advice tuple. Only the motivational
// message is randomised — from a pool keyed by score bracket, behind an
// injectable random source so tests can pin the selection.
package coach

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/anneliv/orato/internal/fluency"
	"github.com/anneliv/orato/internal/segmenter"
	"github.com/anneliv/orato/pkg/types"
)

// Category identifies which dimension a feedback item addresses.
type Category string

const (
	CategoryFluency       Category = "fluency"
	CategoryClarity       Category = "clarity"
	CategoryConfidence    Category = "confidence"
	CategoryPace          Category = "pace"
	CategoryRepetition    Category = "repetition"
	CategoryPronunciation Category = "pronunciation"
	CategoryExercise      Category = "exercise"
	CategoryPersonal      Category = "personal"
)

// Kind classifies the tone of a feedback item.
type Kind string

const (
	KindAchievement   Kind = "achievement"
	KindImprovement   Kind = "improvement"
	KindEncouragement Kind = "encouragement"
	KindTip           Kind = "tip"
)

// Priority orders feedback items for display.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Feedback is one generated feedback item.
type Feedback struct {
	Category Category `json:"category"`
	Kind     Kind     `json:"kind"`
	Message  string   `json:"message"`
	Emoji    string   `json:"emoji"`
	Advice   string   `json:"advice"`
	Priority Priority `json:"priority"`
}

// Session is the full coaching output for one completed exercise.
type Session struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	ExerciseID   string              `json:"exercise_id"`
	ExerciseType types.ExerciseType  `json:"exercise_type"`
	SessionDate  time.Time           `json:"session_date"`
	Metrics      fluency.Metrics     `json:"metrics"`
	Feedback     []Feedback          `json:"feedback"`
	OverallScore float64             `json:"overall_score"`

	ImprovementAreas    []string `json:"improvement_areas"`
	Strengths           []string `json:"strengths"`
	NextRecommendations []string `json:"next_recommendations"`
	MotivationalMessage string   `json:"motivational_message"`
}

// Overall score weights per spec: fluency and clarity dominate, confidence
// next, pace and repetition control round it out.
const (
	weightFluency    = 0.30
	weightClarity    = 0.30
	weightConfidence = 0.20
	weightPace       = 0.10
	weightRepetition = 0.10
)

// Comfortable pace band for the pace sub-score, in WPM.
const (
	paceBandLow  = 120.0
	paceBandHigh = 160.0
)

// Score tier boundaries shared by all dimension rule sets.
const (
	tierAchievement = 80.0
	tierImprovement = 60.0
)

// Generator produces coaching sessions from fluency metrics. Safe for
// concurrent use when the injected random source is; the default source is
// guarded internally by math/rand/v2.
type Generator struct {
	pick func(n int) int
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand injects a deterministic random source for motivational message
// selection. Tests use this to pin the chosen pool entry.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		g.pick = r.IntN
	}
}

// New returns a Generator. Without options, message selection uses the
// process-wide random source.
func New(opts ...Option) *Generator {
	g := &Generator{pick: rand.IntN}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Exercise is the metadata of the exercise that produced the recording.
// Params carries the type-specific payload; it may be nil.
type Exercise struct {
	ID         string
	Type       types.ExerciseType
	Difficulty int
	Params     ExerciseParams
}

// Generate produces the full coaching session for one analysis result.
// profile may be nil when no prior user history exists.
func (g *Generator) Generate(userID string, ex Exercise, m fluency.Metrics, profile *Profile) Session {
	overall := OverallScore(m)

	var feedback []Feedback
	feedback = append(feedback, dimensionFeedback(CategoryFluency, m.FluencyScore, fluencyRules))
	feedback = append(feedback, dimensionFeedback(CategoryClarity, m.ClarityScore, clarityRules))
	feedback = append(feedback, dimensionFeedback(CategoryConfidence, m.ConfidenceScore, confidenceRules))
	feedback = append(feedback, dimensionFeedback(CategoryPace, PaceScore(m.WordsPerMinute), paceRules))
	feedback = append(feedback, dimensionFeedback(CategoryRepetition, RepetitionScore(len(m.Repetitions)), repetitionRules))

	if fb, ok := exerciseBonus(ex, m); ok {
		feedback = append(feedback, fb)
	}
	if fb, ok := soundalikeFeedback(m.Repetitions); ok {
		feedback = append(feedback, fb)
	}
	if profile != nil {
		feedback = append(feedback, personalFeedback(profile, m)...)
	}

	return Session{
		ID:                  uuid.NewString(),
		UserID:              userID,
		ExerciseID:          ex.ID,
		ExerciseType:        ex.Type,
		SessionDate:         time.Now(),
		Metrics:             m,
		Feedback:            feedback,
		OverallScore:        overall,
		ImprovementAreas:    improvementAreas(m),
		Strengths:           strengths(m),
		NextRecommendations: recommendations(ex, m),
		MotivationalMessage: g.MotivationalMessage(overall),
	}
}

// OverallScore is the weighted blend of the five dimension scores.
func OverallScore(m fluency.Metrics) float64 {
	score := m.FluencyScore*weightFluency +
		m.ClarityScore*weightClarity +
		m.ConfidenceScore*weightConfidence +
		PaceScore(m.WordsPerMinute)*weightPace +
		RepetitionScore(len(m.Repetitions))*weightRepetition
	return math.Max(0, math.Min(100, score))
}

// PaceScore is 100 inside the comfortable band, scaling down proportionally
// with distance outside it.
func PaceScore(wpm float64) float64 {
	var distance float64
	switch {
	case wpm < paceBandLow:
		distance = paceBandLow - wpm
	case wpm > paceBandHigh:
		distance = wpm - paceBandHigh
	default:
		return 100
	}
	return math.Max(0, 100-distance)
}

// RepetitionScore deducts a flat 15 points per distinct repeated word.
func RepetitionScore(repetitionCount int) float64 {
	return math.Max(0, 100-15*float64(repetitionCount))
}

// tierRule is one dimension's message tuple for a score tier.
type tierRule struct {
	kind     Kind
	message  string
	emoji    string
	advice   string
	priority Priority
}

// ruleSet holds the three tier rules for a dimension, highest tier first.
type ruleSet struct {
	high tierRule // score ≥ 80
	mid  tierRule // 60 ≤ score < 80
	low  tierRule // score < 60
}

func dimensionFeedback(cat Category, score float64, rules ruleSet) Feedback {
	var r tierRule
	switch {
	case score >= tierAchievement:
		r = rules.high
	case score >= tierImprovement:
		r = rules.mid
	default:
		r = rules.low
	}
	return Feedback{
		Category: cat,
		Kind:     r.kind,
		Message:  r.message,
		Emoji:    r.emoji,
		Advice:   r.advice,
		Priority: r.priority,
	}
}

var fluencyRules = ruleSet{
	high: tierRule{KindAchievement, "Your speech flowed smoothly and naturally.", "🌊",
		"Keep practising at this level to make smooth delivery automatic.", PriorityLow},
	mid: tierRule{KindImprovement, "Your fluency is coming along — a few rough patches remain.", "💪",
		"Try reading a short paragraph aloud twice a day, focusing on continuous delivery.", PriorityMedium},
	low: tierRule{KindTip, "Speech flow was frequently interrupted this session.", "🌱",
		"Slow down and take one breath per sentence; smoothness comes before speed.", PriorityHigh},
}

var clarityRules = ruleSet{
	high: tierRule{KindAchievement, "Every word came through clearly.", "🔔",
		"Excellent articulation — challenge yourself with tongue twisters next.", PriorityLow},
	mid: tierRule{KindImprovement, "Most words were clear, with some muddled moments.", "🎯",
		"Exaggerate consonants at the start and end of words during practice.", PriorityMedium},
	low: tierRule{KindTip, "Quite a few words were hard to make out.", "🗣️",
		"Practise speaking slightly louder and opening your mouth wider on vowels.", PriorityHigh},
}

var confidenceRules = ruleSet{
	high: tierRule{KindAchievement, "You sounded confident and assured.", "⭐",
		"Carry this energy into longer free-speech exercises.", PriorityLow},
	mid: tierRule{KindEncouragement, "Your voice carried decent conviction with room to grow.", "🙂",
		"Stand up while practising; posture feeds directly into vocal confidence.", PriorityMedium},
	low: tierRule{KindEncouragement, "Your delivery sounded hesitant in places.", "🤗",
		"Record yourself reading familiar text — hearing your own steady voice builds trust in it.", PriorityHigh},
}

var paceRules = ruleSet{
	high: tierRule{KindAchievement, "Your speaking pace sat right in the comfortable range.", "⏱️",
		"Great pacing — keep an ear on it as sentences get longer.", PriorityLow},
	mid: tierRule{KindImprovement, "Your pace drifted outside the comfortable range at times.", "🚶",
		"Tap a slow steady beat with your finger and let your words ride it.", PriorityMedium},
	low: tierRule{KindTip, "Your pace was far from the comfortable 120–160 words per minute.", "🐢",
		"Practise with a metronome app at 120 beats per minute, one word per beat.", PriorityHigh},
}

var repetitionRules = ruleSet{
	high: tierRule{KindAchievement, "Very few repeated words — nice variety.", "🎨",
		"Your vocabulary variety is strong; keep expanding it with new topics.", PriorityLow},
	mid: tierRule{KindImprovement, "A few words kept coming back.", "🔁",
		"When you feel a repeat coming, pause briefly and pick a different word.", PriorityMedium},
	low: tierRule{KindTip, "Several words were repeated often this session.", "📚",
		"Before speaking, jot three synonyms for your topic's key words and use them.", PriorityHigh},
}

// exerciseBonus adds type-specific achievement feedback when the exercise's
// own success criterion is met.
func exerciseBonus(ex Exercise, m fluency.Metrics) (Feedback, bool) {
	switch ex.Type {
	case types.ExercisePacing:
		if m.WordsPerMinute >= paceBandLow && m.WordsPerMinute <= paceBandHigh {
			return Feedback{
				Category: CategoryExercise, Kind: KindAchievement,
				Message:  "Perfect pace! You hit the target band for this pacing exercise.",
				Emoji:    "🎯",
				Advice:   "Try the next difficulty level to stretch your range.",
				Priority: PriorityLow,
			}, true
		}
	case types.ExerciseBreathing:
		if longPauseCount(m) == 0 {
			return Feedback{
				Category: CategoryExercise, Kind: KindAchievement,
				Message:  "Steady breathing — no long pauses interrupted your flow.",
				Emoji:    "🌬️",
				Advice:   "Extend your exhale phrases by one extra word next session.",
				Priority: PriorityLow,
			}, true
		}
	case types.ExerciseRepetition:
		if len(m.Repetitions) == 0 {
			return Feedback{
				Category: CategoryExercise, Kind: KindAchievement,
				Message:  "Clean run — no unintended repetitions in a repetition drill.",
				Emoji:    "✨",
				Advice:   "Increase the phrase length to keep challenging yourself.",
				Priority: PriorityLow,
			}, true
		}
	case types.ExerciseFreeSpeech:
		if m.TotalWords >= 100 {
			return Feedback{
				Category: CategoryExercise, Kind: KindAchievement,
				Message:  "You kept free speech going for over a hundred words.",
				Emoji:    "🎤",
				Advice:   "Pick an unfamiliar topic next time to push spontaneity.",
				Priority: PriorityLow,
			}, true
		}
	}
	return Feedback{}, false
}

func longPauseCount(m fluency.Metrics) int {
	n := 0
	for _, p := range m.Pauses {
		if p.Severity == segmenter.PauseLong {
			n++
		}
	}
	return n
}

// personalFeedback appends history-aware items: improvement trend, streak
// milestones, and the single weakest tracked area.
func personalFeedback(p *Profile, m fluency.Metrics) []Feedback {
	var out []Feedback

	if p.Sessions > 0 && m.FluencyScore > p.AvgFluency {
		out = append(out, Feedback{
			Category: CategoryPersonal, Kind: KindAchievement,
			Message:  fmt.Sprintf("Your fluency beat your running average of %.0f.", p.AvgFluency),
			Emoji:    "📈",
			Advice:   "You are trending upward — keep the daily rhythm going.",
			Priority: PriorityLow,
		})
	}

	if p.Streak >= 7 {
		out = append(out, Feedback{
			Category: CategoryPersonal, Kind: KindAchievement,
			Message:  fmt.Sprintf("%d days of practice in a row!", p.Streak),
			Emoji:    "🔥",
			Advice:   "Consistency is the single biggest driver of progress.",
			Priority: PriorityLow,
		})
	}

	if area, score := p.weakestArea(); area != "" {
		out = append(out, Feedback{
			Category: Category(area), Kind: KindTip,
			Message:  fmt.Sprintf("Your %s (averaging %.0f) is your biggest opportunity.", area, score),
			Emoji:    "🧭",
			Advice:   fmt.Sprintf("Dedicate one session this week specifically to %s work.", area),
			Priority: PriorityMedium,
		})
	}

	return out
}

func improvementAreas(m fluency.Metrics) []string {
	var areas []string
	if m.FluencyScore < tierAchievement {
		areas = append(areas, "fluency")
	}
	if m.ClarityScore < tierAchievement {
		areas = append(areas, "clarity")
	}
	if m.ConfidenceScore < tierAchievement {
		areas = append(areas, "confidence")
	}
	if PaceScore(m.WordsPerMinute) < tierAchievement {
		areas = append(areas, "pace")
	}
	if RepetitionScore(len(m.Repetitions)) < tierAchievement {
		areas = append(areas, "repetition control")
	}
	return areas
}

func strengths(m fluency.Metrics) []string {
	var s []string
	if m.FluencyScore >= tierAchievement {
		s = append(s, "smooth speech flow")
	}
	if m.ClarityScore >= tierAchievement {
		s = append(s, "clear articulation")
	}
	if m.ConfidenceScore >= tierAchievement {
		s = append(s, "confident delivery")
	}
	if PaceScore(m.WordsPerMinute) >= tierAchievement {
		s = append(s, "comfortable pacing")
	}
	if RepetitionScore(len(m.Repetitions)) >= tierAchievement {
		s = append(s, "varied vocabulary")
	}
	return s
}

// recommendations suggests the next exercises based on the weakest signals.
func recommendations(ex Exercise, m fluency.Metrics) []string {
	var recs []string
	if PaceScore(m.WordsPerMinute) < tierImprovement {
		recs = append(recs, "a pacing exercise at an easier tempo")
	}
	if len(m.Repetitions) > 2 {
		recs = append(recs, "a repetition drill with short varied phrases")
	}
	if longPauseCount(m) > 1 {
		recs = append(recs, "a breathing exercise to smooth out long pauses")
	}
	if len(recs) == 0 {
		switch ex.Type {
		case types.ExerciseFreeSpeech:
			recs = append(recs, "a longer free-speech session on a new topic")
		default:
			recs = append(recs, "a free-speech session to apply what you practised")
		}
	}
	return recs
}
