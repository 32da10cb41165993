// Package mock provides test doubles for the transcriber package.
//
// Pre-populate Provider.Result (or Results for multi-call sequences) with
// the transcription the consumer should receive, then inspect
// TranscribeCalls to verify what was requested.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/anneliv/orato/pkg/provider/transcriber"
	"github.com/anneliv/orato/pkg/types"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is the raw audio read from the request reader.
	Audio []byte
	// Filename, Language and Prompt mirror the request fields.
	Filename string
	Language string
	Prompt   string
}

// Provider is a mock implementation of transcriber.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call when Results is empty.
	Result types.TranscriptionResult

	// Results, when non-empty, is consumed one element per call. Once
	// exhausted, calls fall back to Result.
	Results []types.TranscriptionResult

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, req transcriber.Request) (types.TranscriptionResult, error) {
	var audio []byte
	if req.Audio != nil {
		audio, _ = io.ReadAll(req.Audio)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{
		Ctx:      ctx,
		Audio:    audio,
		Filename: req.Filename,
		Language: req.Language,
		Prompt:   req.Prompt,
	})
	if p.TranscribeErr != nil {
		return types.TranscriptionResult{}, p.TranscribeErr
	}
	if len(p.Results) > 0 {
		res := p.Results[0]
		p.Results = p.Results[1:]
		return res, nil
	}
	return p.Result, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements transcriber.Provider at compile time.
var _ transcriber.Provider = (*Provider)(nil)
