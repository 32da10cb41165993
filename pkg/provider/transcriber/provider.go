// Package transcriber defines the Provider interface for batch
// speech-to-text backends.
//
// A transcriber wraps a recorded-audio transcription service (e.g. the
// OpenAI audio API or a local Whisper server) and exposes a uniform
// request/response interface. Unlike a streaming recogniser, a transcriber
// processes a complete recording and returns the full
// [types.TranscriptionResult] including timed segments, which downstream
// analysis depends on for pace and pause measurement.
//
// Implementations must be safe for concurrent use.
package transcriber

import (
	"context"
	"errors"
	"io"

	"github.com/anneliv/orato/pkg/types"
)

// ErrNoSpeech is returned when the provider found no transcribable speech
// in the recording. Callers may treat this as a degraded result rather than
// a failure.
var ErrNoSpeech = errors.New("transcriber: no speech detected")

// Request describes one recording to transcribe.
type Request struct {
	// Audio is the encoded audio stream. The reader is consumed exactly
	// once and is not closed by the provider.
	Audio io.Reader

	// Filename hints the container format to the provider (e.g.
	// "exercise.wav"). Required by backends that sniff format from the
	// extension.
	Filename string

	// Language is the ISO 639-1 language hint (e.g. "en"). Empty lets the
	// provider auto-detect, if supported.
	Language string

	// Prompt optionally biases recognition towards expected vocabulary,
	// such as the words of a repetition exercise.
	Prompt string
}

// Provider is the abstraction over any batch speech-to-text backend.
type Provider interface {
	// Transcribe processes the complete recording and returns the
	// transcript with timed segments. Segment timestamps are seconds from
	// the start of the recording.
	Transcribe(ctx context.Context, req Request) (types.TranscriptionResult, error)
}
