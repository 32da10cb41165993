// Package segmenter converts a raw transcription result into the normalised
// word, pause, and repetition primitives that the fluency calculator scores.
//
// All functions treat empty or missing input as "nothing to report": an empty
// transcript yields empty repetition and pause lists and zero speaking time,
// never an error. This keeps the analysis pipeline total — a degraded
// transcription still flows through to a usable (if low-confidence) result.
package segmenter

import (
	"sort"
	"strings"
	"unicode"

	"github.com/anneliv/orato/pkg/types"
)

// Severity grades how disruptive a detected repetition is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// PauseSeverity grades the length of a detected pause.
type PauseSeverity string

const (
	PauseShort  PauseSeverity = "short"
	PauseMedium PauseSeverity = "medium"
	PauseLong   PauseSeverity = "long"
)

// PausePosition classifies where in the speech flow a pause occurred.
type PausePosition string

const (
	// PositionWord is a pause in the middle of a run of words.
	PositionWord PausePosition = "word"

	// PositionPhrase is a pause at a phrase boundary (comma, semicolon, or a
	// coordinating conjunction).
	PositionPhrase PausePosition = "phrase"

	// PositionSentence is a pause at a sentence boundary.
	PositionSentence PausePosition = "sentence"
)

// RepetitionRecord describes one word that was repeated beyond the tracking
// threshold. Recomputed per analysis; never persisted on its own.
type RepetitionRecord struct {
	// Word is the normalised (lowercased, punctuation-stripped) word.
	Word string `json:"word"`

	// Count is the total number of occurrences. Always greater than 2.
	Count int `json:"count"`

	// Positions are the word-indices of each occurrence, in order.
	Positions []int `json:"positions"`

	// Severity grades the repetition per count and clustering.
	Severity Severity `json:"severity"`
}

// PauseRecord describes one silence gap between adjacent transcript segments.
type PauseRecord struct {
	// Start is the pause start time in seconds (end of the preceding segment).
	Start float64 `json:"start"`

	// End is the pause end time in seconds (start of the following segment).
	End float64 `json:"end"`

	// Duration is End − Start, in seconds. Always above the detection floor.
	Duration float64 `json:"duration"`

	// Severity grades the pause length relative to the surrounding text.
	Severity PauseSeverity `json:"severity"`

	// Position classifies the pause as a word, phrase, or sentence break.
	Position PausePosition `json:"position"`
}

// PauseConfig controls pause detection thresholds.
type PauseConfig struct {
	// MinGap is the detection floor in seconds. Gaps shorter than this are
	// ignored entirely. Zero or negative values fall back to DefaultMinGap.
	MinGap float64
}

// DefaultMinGap is the default pause-detection floor in seconds.
const DefaultMinGap = 0.3

// minTrackedWordLen excludes short function words ("a", "the", "is") from
// repetition tracking. Only words longer than this are counted.
const minTrackedWordLen = 2

// repetitionFloor is the occurrence count a word must exceed to qualify as a
// repetition.
const repetitionFloor = 2

// clusterDistance is the maximum word-index distance between two occurrences
// for them to count as clustered.
const clusterDistance = 3

// Words normalises text into word tokens: lowercased, punctuation stripped,
// split on whitespace, empty tokens discarded. Both fluency and repetition
// analysis use this same tokenisation so their word counts always agree.
//
// Apostrophes inside contractions are kept so "don't" stays one word.
func Words(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r):
			return unicode.ToLower(r)
		case r == '\'':
			return r
		case unicode.IsSpace(r):
			return r
		default:
			return -1
		}
	}, text)

	fields := strings.Fields(cleaned)
	words := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}

// Repetitions builds a frequency map over the normalised words and returns a
// record for every word that occurs more than twice. Words of length ≤ 2 are
// never tracked, to avoid flagging function words.
//
// Severity policy:
//   - high: count > 8, or ≥ 60% of occurrences are clustered (adjacent
//     occurrences within clusterDistance word positions)
//   - medium: count > 4, or ≥ 30% clustered
//   - low: otherwise
//
// The result is sorted descending by count; ties keep first-seen order.
func Repetitions(words []string) []RepetitionRecord {
	positions := make(map[string][]int)
	var order []string

	for i, w := range words {
		if len(w) <= minTrackedWordLen {
			continue
		}
		if _, seen := positions[w]; !seen {
			order = append(order, w)
		}
		positions[w] = append(positions[w], i)
	}

	var records []RepetitionRecord
	for _, w := range order {
		pos := positions[w]
		if len(pos) <= repetitionFloor {
			continue
		}
		records = append(records, RepetitionRecord{
			Word:      w,
			Count:     len(pos),
			Positions: pos,
			Severity:  repetitionSeverity(len(pos), clusteredRatio(pos)),
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Count > records[j].Count
	})
	return records
}

// clusteredRatio returns the fraction of occurrences that are clustered: an
// occurrence is clustered when it is within clusterDistance word positions of
// either neighbouring occurrence.
func clusteredRatio(positions []int) float64 {
	if len(positions) < 2 {
		return 0
	}
	clustered := 0
	for i, p := range positions {
		if i > 0 && p-positions[i-1] <= clusterDistance {
			clustered++
			continue
		}
		if i < len(positions)-1 && positions[i+1]-p <= clusterDistance {
			clustered++
		}
	}
	return float64(clustered) / float64(len(positions))
}

func repetitionSeverity(count int, clustered float64) Severity {
	switch {
	case count > 8 || clustered >= 0.6:
		return SeverityHigh
	case count > 4 || clustered >= 0.3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Pauses examines each adjacent segment pair and records the gap between them
// when it exceeds the configured detection floor.
//
// Severity boundaries stretch with the complexity of the surrounding text:
// longer surrounding segments make a given gap more forgivable, so the
// medium/long boundaries grow with complexityFactor = (len(before)+len(after))/20.
func Pauses(segments []types.TranscriptSegment, cfg PauseConfig) []PauseRecord {
	minGap := cfg.MinGap
	if minGap <= 0 {
		minGap = DefaultMinGap
	}

	var pauses []PauseRecord
	for i := 1; i < len(segments); i++ {
		prev, next := segments[i-1], segments[i]
		gap := next.Start - prev.End
		if gap < minGap {
			continue
		}

		complexity := float64(len(prev.Text)+len(next.Text)) / 20.0
		pauses = append(pauses, PauseRecord{
			Start:    prev.End,
			End:      next.Start,
			Duration: gap,
			Severity: pauseSeverity(gap, complexity),
			Position: pausePosition(prev.Text, next.Text),
		})
	}
	return pauses
}

// pauseSeverity grades a gap against boundaries scaled by the surrounding
// text complexity. Base boundaries: medium at 0.8s, long at 2.0s.
func pauseSeverity(gap, complexity float64) PauseSeverity {
	mediumAt := 0.8 + 0.1*complexity
	longAt := 2.0 + 0.2*complexity
	switch {
	case gap >= longAt:
		return PauseLong
	case gap >= mediumAt:
		return PauseMedium
	default:
		return PauseShort
	}
}

// coordinating conjunctions that mark a phrase boundary when a segment ends
// on one of them.
var conjunctions = map[string]bool{
	"and": true, "but": true, "or": true, "nor": true,
	"for": true, "so": true, "yet": true,
}

// pausePosition classifies a gap:
//   - sentence: the preceding text ends in '.', '!' or '?', or the following
//     text starts with an uppercase letter
//   - phrase: the preceding text ends in ',' or ';', or on a coordinating
//     conjunction
//   - word: otherwise
func pausePosition(before, after string) PausePosition {
	before = strings.TrimSpace(before)
	after = strings.TrimSpace(after)

	if before != "" {
		switch before[len(before)-1] {
		case '.', '!', '?':
			return PositionSentence
		}
	}
	if after != "" {
		if first := []rune(after)[0]; unicode.IsUpper(first) {
			return PositionSentence
		}
	}
	if before != "" {
		switch before[len(before)-1] {
		case ',', ';':
			return PositionPhrase
		}
	}
	if ws := Words(before); len(ws) > 0 && conjunctions[ws[len(ws)-1]] {
		return PositionPhrase
	}
	return PositionWord
}

// SpeakingTime sums the span of every segment, in seconds. Segments with
// non-positive span contribute nothing.
func SpeakingTime(segments []types.TranscriptSegment) float64 {
	var total float64
	for _, s := range segments {
		if span := s.End - s.Start; span > 0 {
			total += span
		}
	}
	return total
}
