// Package fluency produces the canonical FluencyMetrics for a completed
// recording from the transcription collaborator's output.
//
// Two scoring policies are supported, selected by caller configuration:
//
//   - PolicyStandard penalises words-per-minute outside a fixed comfortable
//     band and applies flat severity-weighted repetition penalties.
//   - PolicyAdaptive accepts a custom target WPM, computes the pace penalty
//     as a deviation ratio from that target, scales repetition penalties
//     against a configurable threshold, and grants a small rhythm bonus when
//     the pace is steady across segments.
//
// Malformed input never produces an error: an empty transcript yields a
// zero-word result, and negative or NaN durations are treated as zero. The
// pipeline must always hand the caller a usable, if low-confidence, result.
package fluency

import (
	"math"

	"github.com/anneliv/orato/internal/segmenter"
	"github.com/anneliv/orato/pkg/types"
)

// Policy selects the scoring model.
type Policy string

const (
	// PolicyStandard uses a fixed comfortable WPM band and flat penalties.
	PolicyStandard Policy = "standard"

	// PolicyAdaptive scores pace against a caller-supplied target WPM and
	// rewards steady segment-to-segment pacing.
	PolicyAdaptive Policy = "adaptive"
)

// IsValid reports whether p is a recognised scoring policy.
func (p Policy) IsValid() bool {
	return p == PolicyStandard || p == PolicyAdaptive
}

// Metrics is the canonical analysis output for one recording.
//
// Invariants: SpeakingTime + SilenceTime equals Duration within floating
// point tolerance, and all three scores lie in [0,100].
type Metrics struct {
	WordsPerMinute float64 `json:"words_per_minute"`
	TotalWords     int     `json:"total_words"`

	// Duration is the total recording length in seconds.
	Duration float64 `json:"duration"`

	Repetitions []segmenter.RepetitionRecord `json:"repetitions"`
	Pauses      []segmenter.PauseRecord      `json:"pauses"`

	// SpeakingTime is the summed segment span in seconds.
	SpeakingTime float64 `json:"speaking_time"`

	// SilenceTime is Duration − SpeakingTime, floored at zero.
	SilenceTime float64 `json:"silence_time"`

	FluencyScore    float64 `json:"fluency_score"`
	ClarityScore    float64 `json:"clarity_score"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// Config holds the calculator's scoring parameters. The zero value selects
// the standard policy with default thresholds.
type Config struct {
	// Policy selects the scoring model. Empty defaults to PolicyStandard.
	Policy Policy

	// TargetWPM is the pace target for PolicyAdaptive. Ignored by
	// PolicyStandard. Zero defaults to DefaultTargetWPM.
	TargetWPM float64

	// PauseFloor is the pause-detection floor in seconds. Zero defaults to
	// the policy default (0.3 standard, 0.5 adaptive).
	PauseFloor float64

	// RepetitionThreshold scales repetition penalties for PolicyAdaptive: a
	// repetition's penalty grows with count relative to this threshold.
	// Zero defaults to DefaultRepetitionThreshold.
	RepetitionThreshold int
}

const (
	// DefaultTargetWPM is the adaptive policy's default pace target.
	DefaultTargetWPM = 140

	// DefaultRepetitionThreshold is the count against which adaptive
	// repetition penalties are scaled.
	DefaultRepetitionThreshold = 3

	// standardPauseFloor and adaptivePauseFloor are the per-policy defaults
	// for the pause-detection floor, in seconds.
	standardPauseFloor = 0.3
	adaptivePauseFloor = 0.5

	// Comfortable WPM band for the standard policy.
	standardBandLow  = 100.0
	standardBandHigh = 180.0

	// maxPacePenalty caps how much pace deviation can cost.
	maxPacePenalty = 25.0

	// longPausePenalty is subtracted per long pause.
	longPausePenalty = 8.0

	// defaultClarity is used when no segments are available.
	defaultClarity = 85.0

	// defaultConfidence is used when no segments are available.
	defaultConfidence = 80.0

	// rhythmBonus is granted by the adaptive policy for steady pacing.
	rhythmBonus = 5.0

	// steadyPaceCoV is the coefficient-of-variation ceiling below which
	// segment pacing counts as steady.
	steadyPaceCoV = 0.3
)

// severityPenalty maps repetition severity to its base fluency penalty.
var severityPenalty = map[segmenter.Severity]float64{
	segmenter.SeverityLow:    5,
	segmenter.SeverityMedium: 10,
	segmenter.SeverityHigh:   18,
}

// Calculator computes [Metrics] from transcription results. It is stateless
// after construction and safe for concurrent use.
type Calculator struct {
	cfg Config
}

// New returns a Calculator with defaults applied over cfg.
func New(cfg Config) *Calculator {
	if cfg.Policy == "" {
		cfg.Policy = PolicyStandard
	}
	if cfg.TargetWPM <= 0 {
		cfg.TargetWPM = DefaultTargetWPM
	}
	if cfg.PauseFloor <= 0 {
		if cfg.Policy == PolicyAdaptive {
			cfg.PauseFloor = adaptivePauseFloor
		} else {
			cfg.PauseFloor = standardPauseFloor
		}
	}
	if cfg.RepetitionThreshold <= 0 {
		cfg.RepetitionThreshold = DefaultRepetitionThreshold
	}
	return &Calculator{cfg: cfg}
}

// Compute derives the full metrics for one transcription result.
func (c *Calculator) Compute(result types.TranscriptionResult) Metrics {
	duration := sanitize(result.Duration)

	words := segmenter.Words(result.Text)
	repetitions := segmenter.Repetitions(words)
	pauses := segmenter.Pauses(result.Segments, segmenter.PauseConfig{MinGap: c.cfg.PauseFloor})

	speaking := segmenter.SpeakingTime(result.Segments)
	if duration > 0 && speaking > duration {
		// Segment timestamps can overshoot the reported duration by a little;
		// clamp so the speaking/silence split still sums to the total.
		speaking = duration
	}
	silence := math.Max(0, duration-speaking)

	var wpm float64
	if duration > 0 {
		wpm = float64(len(words)) / (duration / 60)
	}

	m := Metrics{
		WordsPerMinute: wpm,
		TotalWords:     len(words),
		Duration:       duration,
		Repetitions:    repetitions,
		Pauses:         pauses,
		SpeakingTime:   speaking,
		SilenceTime:    silence,
		ClarityScore:   clarityScore(result.Segments),
	}
	m.ConfidenceScore = confidenceScore(result.Segments)
	m.FluencyScore = c.fluencyScore(wpm, repetitions, pauses, result.Segments)
	return m
}

// fluencyScore starts at 100 and subtracts pace, repetition, and long-pause
// penalties, clamped to [0,100].
func (c *Calculator) fluencyScore(wpm float64, reps []segmenter.RepetitionRecord, pauses []segmenter.PauseRecord, segments []types.TranscriptSegment) float64 {
	score := 100.0

	score -= c.pacePenalty(wpm)

	for _, r := range reps {
		penalty := severityPenalty[r.Severity]
		if c.cfg.Policy == PolicyAdaptive {
			// Scale with how far the count exceeds the threshold.
			scale := float64(r.Count) / float64(c.cfg.RepetitionThreshold)
			if scale > 2 {
				scale = 2
			}
			if scale > 1 {
				penalty *= scale
			}
		}
		score -= penalty
	}

	for _, p := range pauses {
		if p.Severity == segmenter.PauseLong {
			score -= longPausePenalty
		}
	}

	if c.cfg.Policy == PolicyAdaptive && paceVariation(segments) < steadyPaceCoV {
		score += rhythmBonus
	}

	return clamp(score)
}

// pacePenalty returns the deduction for speaking pace.
//
// Standard policy: zero inside [standardBandLow, standardBandHigh], growing
// half a point per WPM of deviation outside it, capped at maxPacePenalty.
// Adaptive policy: proportional to the deviation ratio from the target WPM,
// capped at maxPacePenalty+5.
func (c *Calculator) pacePenalty(wpm float64) float64 {
	if c.cfg.Policy == PolicyAdaptive {
		deviation := math.Abs(wpm-c.cfg.TargetWPM) / c.cfg.TargetWPM
		return math.Min(maxPacePenalty+5, deviation*60)
	}
	switch {
	case wpm < standardBandLow:
		return math.Min(maxPacePenalty, (standardBandLow-wpm)*0.5)
	case wpm > standardBandHigh:
		return math.Min(maxPacePenalty, (wpm-standardBandHigh)*0.5)
	default:
		return 0
	}
}

// clarityScore averages (1 − noSpeechProb) across segments as a percentage.
// Without segments it falls back to defaultClarity.
func clarityScore(segments []types.TranscriptSegment) float64 {
	if len(segments) == 0 {
		return defaultClarity
	}
	var sum float64
	for _, s := range segments {
		sum += 1 - s.NoSpeechProb
	}
	return clamp(sum / float64(len(segments)) * 100)
}

// confidenceScore maps the mean segment log-probability onto [0,100] via the
// affine mapping (avgLogProb + 1) × 50. Without segments it falls back to
// defaultConfidence.
func confidenceScore(segments []types.TranscriptSegment) float64 {
	if len(segments) == 0 {
		return defaultConfidence
	}
	var sum float64
	for _, s := range segments {
		sum += s.AvgLogProb
	}
	avg := sum / float64(len(segments))
	return clamp((avg + 1) * 50)
}

// paceVariation returns the coefficient of variation of per-segment speaking
// pace (words per second). Fewer than two usable segments count as maximally
// unsteady so the rhythm bonus is withheld.
func paceVariation(segments []types.TranscriptSegment) float64 {
	var paces []float64
	for _, s := range segments {
		span := s.End - s.Start
		if span <= 0 {
			continue
		}
		paces = append(paces, float64(len(segmenter.Words(s.Text)))/span)
	}
	if len(paces) < 2 {
		return math.Inf(1)
	}

	var mean float64
	for _, p := range paces {
		mean += p
	}
	mean /= float64(len(paces))
	if mean == 0 {
		return math.Inf(1)
	}

	var variance float64
	for _, p := range paces {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(paces))
	return math.Sqrt(variance) / mean
}

// sanitize maps NaN, infinite, and negative durations to zero.
func sanitize(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	return d
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
