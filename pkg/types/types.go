// Package types defines the shared data contracts used across all Orato packages.
//
// These types form the lingua franca between the transcription collaborator,
// the analysis pipeline, and the progress tracker. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// TranscriptSegment is one contiguous span of recognised speech inside a
// transcription result. Times are in seconds relative to the start of the
// recording. Segments are immutable once received from the transcriber.
type TranscriptSegment struct {
	// Start is the segment start time in seconds.
	Start float64 `json:"start"`

	// End is the segment end time in seconds.
	End float64 `json:"end"`

	// Text is the recognised speech content of this segment.
	Text string `json:"text"`

	// NoSpeechProb is the transcriber's probability (0.0–1.0) that the
	// segment contains no speech at all.
	NoSpeechProb float64 `json:"no_speech_prob"`

	// AvgLogProb is the average token log-probability reported by the
	// transcriber. Values closer to 0 indicate higher recognition confidence.
	AvgLogProb float64 `json:"avg_logprob"`
}

// TranscriptionResult is the full output of the transcription collaborator
// for one recording: the aggregate text plus ordered, time-stamped segments.
//
// The analysis pipeline must tolerate Segments being nil (clarity and
// confidence fall back to defaults) and Duration being zero.
type TranscriptionResult struct {
	// Text is the full transcript.
	Text string `json:"text"`

	// Language is the detected or requested language code (e.g. "en").
	Language string `json:"language"`

	// Duration is the total recording length in seconds.
	Duration float64 `json:"duration"`

	// Segments holds the time-stamped spans, in order. May be nil when the
	// transcriber does not report segment detail.
	Segments []TranscriptSegment `json:"segments,omitempty"`
}

// RecognitionEvent is one delta from a streaming recognition engine, driving
// the live metrics tracker during an in-progress recording.
//
// Interim events carry a transient hypothesis that may be overwritten by the
// next event; only final events are appended to the confirmed transcript and
// contribute to live word counts.
type RecognitionEvent struct {
	// Text is the recognised text of this delta.
	Text string `json:"text"`

	// IsFinal reports whether the engine has committed to this result.
	IsFinal bool `json:"is_final"`

	// At is the arrival time of the event. A zero value means "now".
	At time.Time `json:"at,omitzero"`
}

// ExerciseType identifies the kind of practice exercise a session belongs to.
type ExerciseType string

const (
	ExerciseBreathing     ExerciseType = "breathing"
	ExercisePacing        ExerciseType = "pacing"
	ExerciseRepetition    ExerciseType = "repetition"
	ExerciseFreeSpeech    ExerciseType = "freeSpeech"
	ExercisePronunciation ExerciseType = "pronunciation"
	ExerciseFluency       ExerciseType = "fluency"
	ExerciseArticulation  ExerciseType = "articulation"
)

// IsValid reports whether t is a recognised exercise type.
func (t ExerciseType) IsValid() bool {
	switch t {
	case ExerciseBreathing, ExercisePacing, ExerciseRepetition, ExerciseFreeSpeech,
		ExercisePronunciation, ExerciseFluency, ExerciseArticulation:
		return true
	}
	return false
}
