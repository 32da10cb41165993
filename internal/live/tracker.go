// Package live maintains an incrementally updated estimate of speaking
// metrics while a recording is still in progress.
//
// A Tracker consumes the recognition engine's event stream (interim and final
// transcript deltas) and recomputes a full metrics snapshot on a fixed tick.
// Each tick is a complete recomputation from the accumulated final chunks,
// never a delta, so ticks are idempotent — only the order in which final
// chunks arrive matters.
//
// All live numbers are advisory. The fluency calculator's duration-based
// result is authoritative once the recording stops; stopping the tracker
// discards its running estimates rather than persisting them.
package live

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/anneliv/orato/internal/segmenter"
	"github.com/anneliv/orato/pkg/types"
)

// State is the tracker lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
)

// Config holds tracker tuning parameters. The zero value selects defaults.
type Config struct {
	// Tick is the recomputation interval. Default 500ms.
	Tick time.Duration

	// PauseThreshold is the silence gap between consecutive final chunks
	// that counts as a pause, and the delay after the last final chunk at
	// which IsSpeaking flips to false. Default 1s.
	PauseThreshold time.Duration

	// SpeakingFloor is the fraction of elapsed session time assumed to be
	// actual speaking time when computing live WPM. Live recognition leaves
	// gaps during processing, so raw elapsed time undercounts pace; this
	// floor is a documented approximation, not a measurement. Default 0.8.
	SpeakingFloor float64

	// Now overrides the clock, for tests. Default time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = 500 * time.Millisecond
	}
	if c.PauseThreshold <= 0 {
		c.PauseThreshold = time.Second
	}
	if c.SpeakingFloor <= 0 || c.SpeakingFloor > 1 {
		c.SpeakingFloor = 0.8
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Snapshot is one point-in-time view of the live metrics.
type Snapshot struct {
	// WordCount counts words across all finalised chunks. Interim text is
	// never counted, to avoid double-counting partial recognitions.
	WordCount int `json:"word_count"`

	// WordsPerMinute is the live pace estimate against the speaking floor.
	WordsPerMinute float64 `json:"words_per_minute"`

	// PauseCount counts silences between final chunks above the threshold.
	PauseCount int `json:"pause_count"`

	// TotalPause is the summed duration of counted pauses.
	TotalPause time.Duration `json:"total_pause"`

	// PaceVariation is the coefficient of variation of per-chunk pace.
	PaceVariation float64 `json:"pace_variation"`

	// RhythmScore grades speaking rhythm 0–100.
	RhythmScore float64 `json:"rhythm_score"`

	// IsSpeaking reports whether a final chunk arrived within the pause
	// threshold of this snapshot.
	IsSpeaking bool `json:"is_speaking"`

	// Elapsed is the time since the tracker started listening.
	Elapsed time.Duration `json:"elapsed"`

	// InterimText is the current transient hypothesis, if any.
	InterimText string `json:"interim_text,omitempty"`
}

// chunk is one finalised transcript delta. Its start time is the arrival
// time of the previous chunk (or the session start), its end time its own
// arrival — the best segmentation available without per-word timing.
type chunk struct {
	text string
	at   time.Time
}

// Tracker accumulates recognition events and recomputes a Snapshot on every
// tick. All methods are safe for concurrent use.
type Tracker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	startedAt time.Time
	chunks    []chunk
	interim   string
	latest    Snapshot

	updates chan Snapshot
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns an idle Tracker.
func New(cfg Config) *Tracker {
	return &Tracker{
		cfg:     cfg.withDefaults(),
		state:   StateIdle,
		updates: make(chan Snapshot, 8),
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start transitions the tracker to listening and begins the tick loop.
// Starting an already-listening tracker is a no-op.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateListening {
		return
	}
	t.state = StateListening
	t.startedAt = t.cfg.Now()
	t.chunks = nil
	t.interim = ""
	t.latest = Snapshot{RhythmScore: 100}

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go t.loop(ctx)
}

// Stop halts the tick loop, discards all running estimates, and returns the
// tracker to idle. Live numbers are advisory only — nothing is persisted.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.state != StateListening {
		t.mu.Unlock()
		return
	}
	t.state = StateIdle
	cancel, done := t.cancel, t.done
	t.chunks = nil
	t.interim = ""
	t.latest = Snapshot{}
	t.mu.Unlock()

	cancel()
	<-done
}

// OnEvent consumes one recognition event. Final events append a chunk in
// arrival order; interim events overwrite the transient hypothesis. Events
// arriving while the tracker is idle are dropped.
func (t *Tracker) OnEvent(ev types.RecognitionEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateListening {
		return
	}

	at := ev.At
	if at.IsZero() {
		at = t.cfg.Now()
	}

	if ev.IsFinal {
		t.chunks = append(t.chunks, chunk{text: ev.Text, at: at})
		t.interim = ""
		return
	}
	t.interim = ev.Text
}

// Snapshot returns the most recently computed snapshot.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// Updates returns a channel carrying a snapshot per tick. Slow consumers
// miss intermediate snapshots rather than blocking the tick loop.
func (t *Tracker) Updates() <-chan Snapshot {
	return t.updates
}

// Tick forces an immediate recomputation and returns the result. The tick
// loop calls this on every interval; tests call it directly with a fake
// clock to avoid real timers.
func (t *Tracker) Tick() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateListening {
		return t.latest
	}
	t.latest = t.recompute(t.cfg.Now())
	return t.latest
}

func (t *Tracker) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := t.Tick()
			select {
			case t.updates <- snap:
			default:
			}
		}
	}
}

// recompute derives a full snapshot from the accumulated chunks.
// Must be called with t.mu held.
func (t *Tracker) recompute(now time.Time) Snapshot {
	elapsed := now.Sub(t.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	var wordCount int
	for _, c := range t.chunks {
		wordCount += len(segmenter.Words(c.text))
	}

	// Live WPM against the estimated speaking-time floor rather than raw
	// elapsed time; see Config.SpeakingFloor.
	var wpm float64
	if speaking := elapsed.Seconds() * t.cfg.SpeakingFloor; speaking > 0 {
		wpm = float64(wordCount) / (speaking / 60)
	}

	pauseCount, totalPause := t.pauses()
	paceVar := t.paceVariation()

	isSpeaking := false
	if n := len(t.chunks); n > 0 {
		isSpeaking = now.Sub(t.chunks[n-1].at) <= t.cfg.PauseThreshold
	}

	return Snapshot{
		WordCount:      wordCount,
		WordsPerMinute: wpm,
		PauseCount:     pauseCount,
		TotalPause:     totalPause,
		PaceVariation:  paceVar,
		RhythmScore:    rhythmScore(pauseCount, totalPause, paceVar),
		IsSpeaking:     isSpeaking,
		Elapsed:        elapsed,
		InterimText:    t.interim,
	}
}

// pauses counts gaps above the threshold between consecutive final chunks.
// Must be called with t.mu held.
func (t *Tracker) pauses() (count int, total time.Duration) {
	for i := 1; i < len(t.chunks); i++ {
		gap := t.chunks[i].at.Sub(t.chunks[i-1].at)
		if gap > t.cfg.PauseThreshold {
			count++
			total += gap
		}
	}
	return count, total
}

// paceVariation computes the coefficient of variation of per-chunk pace
// (words per second of the chunk's span). Must be called with t.mu held.
func (t *Tracker) paceVariation() float64 {
	var paces []float64
	prev := t.startedAt
	for _, c := range t.chunks {
		span := c.at.Sub(prev).Seconds()
		prev = c.at
		if span <= 0 {
			continue
		}
		paces = append(paces, float64(len(segmenter.Words(c.text)))/span)
	}
	if len(paces) < 2 {
		return 0
	}

	var mean float64
	for _, p := range paces {
		mean += p
	}
	mean /= float64(len(paces))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, p := range paces {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(paces))
	return math.Sqrt(variance) / mean
}

// Rhythm scoring constants.
const (
	pauseCountCeiling   = 10
	pauseCountPenalty   = 2.0
	maxPauseCountDeduct = 30.0
	longAvgPause        = 3 * time.Second
	maxAvgPauseDeduct   = 25.0
	steadyPaceCoV       = 0.3
	erraticPaceCoV      = 0.6
	steadyPaceBonus     = 10.0
	erraticPacePenalty  = 20.0
)

// rhythmScore starts at 100 and adjusts for pause frequency, average pause
// length, and pace steadiness, clamped to [0,100].
func rhythmScore(pauseCount int, totalPause time.Duration, paceVar float64) float64 {
	score := 100.0

	if pauseCount > pauseCountCeiling {
		score -= math.Min(maxPauseCountDeduct, pauseCountPenalty*float64(pauseCount-pauseCountCeiling))
	}

	if pauseCount > 0 {
		avg := totalPause / time.Duration(pauseCount)
		if avg > longAvgPause {
			over := avg - longAvgPause
			score -= math.Min(maxAvgPauseDeduct, over.Seconds()*10)
		}
	}

	switch {
	case paceVar < steadyPaceCoV:
		score += steadyPaceBonus
	case paceVar > erraticPaceCoV:
		score -= erraticPacePenalty
	}

	return math.Max(0, math.Min(100, score))
}
