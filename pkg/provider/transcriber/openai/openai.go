// Package openai provides a transcriber backed by the OpenAI audio API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/anneliv/orato/pkg/provider/transcriber"
	"github.com/anneliv/orato/pkg/types"
)

// Provider implements transcriber.Provider using the OpenAI audio API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Use it to point at
// an API-compatible local Whisper server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI transcriber Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.AudioModelWhisper1)
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// verboseTranscription is the verbose_json response shape. The SDK's typed
// response omits segment detail, so the body is decoded directly.
type verboseTranscription struct {
	Task     string           `json:"task"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Text     string           `json:"text"`
	Segments []verboseSegment `json:"segments"`
}

type verboseSegment struct {
	ID           int     `json:"id"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	AvgLogProb   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// Transcribe implements transcriber.Provider.
func (p *Provider) Transcribe(ctx context.Context, req transcriber.Request) (types.TranscriptionResult, error) {
	if req.Audio == nil {
		return types.TranscriptionResult{}, fmt.Errorf("openai: request audio must not be nil")
	}
	filename := req.Filename
	if filename == "" {
		filename = "audio.wav"
	}

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(req.Audio, filename, mimeForFilename(filename)),
		Model:          oai.AudioModel(p.model),
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if req.Language != "" {
		params.Language = oai.String(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = oai.String(req.Prompt)
	}

	var raw verboseTranscription
	_, err := p.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&raw))
	if err != nil {
		return types.TranscriptionResult{}, fmt.Errorf("openai: transcribe: %w", err)
	}

	if strings.TrimSpace(raw.Text) == "" && len(raw.Segments) == 0 {
		return types.TranscriptionResult{}, transcriber.ErrNoSpeech
	}
	return convert(raw), nil
}

// convert maps the verbose_json payload onto the shared result type.
func convert(raw verboseTranscription) types.TranscriptionResult {
	res := types.TranscriptionResult{
		Text:     strings.TrimSpace(raw.Text),
		Language: raw.Language,
		Duration: raw.Duration,
		Segments: make([]types.TranscriptSegment, 0, len(raw.Segments)),
	}
	for _, seg := range raw.Segments {
		res.Segments = append(res.Segments, types.TranscriptSegment{
			Start:        seg.Start,
			End:          seg.End,
			Text:         strings.TrimSpace(seg.Text),
			AvgLogProb:   seg.AvgLogProb,
			NoSpeechProb: seg.NoSpeechProb,
		})
	}
	return res
}

// mimeForFilename returns the content type for the audio container, falling
// back to wav for unknown extensions.
func mimeForFilename(name string) string {
	switch {
	case strings.HasSuffix(name, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(name, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(name, ".webm"):
		return "audio/webm"
	case strings.HasSuffix(name, ".m4a"):
		return "audio/mp4"
	case strings.HasSuffix(name, ".flac"):
		return "audio/flac"
	default:
		return "audio/wav"
	}
}

// Ensure Provider implements transcriber.Provider at compile time.
var _ transcriber.Provider = (*Provider)(nil)
