package coach

import (
	"fmt"

	"github.com/anneliv/orato/pkg/types"
)

// ExerciseParams is the type-specific payload of an [Exercise]. Each variant
// keeps its own invariants independently checkable instead of spreading
// optional fields across one flat struct.
type ExerciseParams interface {
	// Kind returns the exercise type this payload belongs to.
	Kind() types.ExerciseType

	// Validate checks the variant's own invariants.
	Validate() error
}

// BreathingParams configures a breathing exercise.
type BreathingParams struct {
	// BreathsPerMinute is the target breathing rate.
	BreathsPerMinute int

	// HoldSeconds is the breath-hold length between phrases.
	HoldSeconds int
}

func (BreathingParams) Kind() types.ExerciseType { return types.ExerciseBreathing }

func (p BreathingParams) Validate() error {
	if p.BreathsPerMinute <= 0 {
		return fmt.Errorf("coach: breathing: breaths per minute must be positive, got %d", p.BreathsPerMinute)
	}
	return nil
}

// PacingParams configures a pacing exercise.
type PacingParams struct {
	// MinWPM and MaxWPM bound the target pace band.
	MinWPM float64
	MaxWPM float64
}

func (PacingParams) Kind() types.ExerciseType { return types.ExercisePacing }

func (p PacingParams) Validate() error {
	if p.MinWPM <= 0 || p.MaxWPM <= p.MinWPM {
		return fmt.Errorf("coach: pacing: invalid band [%v, %v]", p.MinWPM, p.MaxWPM)
	}
	return nil
}

// RepetitionParams configures a repetition drill.
type RepetitionParams struct {
	// Phrase is the text the user repeats.
	Phrase string

	// Reps is how many times the phrase is repeated.
	Reps int
}

func (RepetitionParams) Kind() types.ExerciseType { return types.ExerciseRepetition }

func (p RepetitionParams) Validate() error {
	if p.Phrase == "" {
		return fmt.Errorf("coach: repetition: phrase must not be empty")
	}
	if p.Reps <= 0 {
		return fmt.Errorf("coach: repetition: reps must be positive, got %d", p.Reps)
	}
	return nil
}

// FreeSpeechParams configures a free-speech exercise.
type FreeSpeechParams struct {
	// Topic is the speaking prompt. Empty means an open topic.
	Topic string

	// MinSeconds is the minimum speaking time for the exercise to count.
	MinSeconds int
}

func (FreeSpeechParams) Kind() types.ExerciseType { return types.ExerciseFreeSpeech }

func (p FreeSpeechParams) Validate() error {
	if p.MinSeconds < 0 {
		return fmt.Errorf("coach: free speech: negative minimum duration %d", p.MinSeconds)
	}
	return nil
}

// Validate checks that the exercise's payload, when present, matches its
// declared type and satisfies its own invariants.
func (e Exercise) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("coach: unknown exercise type %q", e.Type)
	}
	if e.Params == nil {
		return nil
	}
	if e.Params.Kind() != e.Type {
		return fmt.Errorf("coach: params for %q attached to %q exercise", e.Params.Kind(), e.Type)
	}
	return e.Params.Validate()
}
