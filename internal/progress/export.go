package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anneliv/orato/pkg/types"
)

// ExportVersion is the document format emitted by [Exporter.Export] and the
// only version [Exporter.Import] accepts.
const ExportVersion = "1.0"

// ErrBadExport wraps every import validation failure.
var ErrBadExport = errors.New("progress: invalid export document")

// ExportDoc is the backup wire format. Timestamps are RFC 3339 and
// durations are whole milliseconds, so documents survive editing by hand.
type ExportDoc struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Goals      Goals           `json:"goals"`
	Sessions   []exportSession `json:"sessions"`
}

type exportSession struct {
	ID           string             `json:"id"`
	ExerciseID   string             `json:"exercise_id"`
	ExerciseType types.ExerciseType `json:"exercise_type"`
	CompletedAt  time.Time          `json:"completed_at"`
	DurationMS   int64              `json:"duration_ms"`

	FluencyScore    float64 `json:"fluency_score"`
	ClarityScore    float64 `json:"clarity_score"`
	ConfidenceScore float64 `json:"confidence_score"`

	WordsPerMinute  float64 `json:"words_per_minute,omitempty"`
	TotalWords      int     `json:"total_words,omitempty"`
	RepetitionCount int     `json:"repetition_count,omitempty"`
	PauseCount      int     `json:"pause_count,omitempty"`

	AudioURL string `json:"audio_url,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Exporter serialises a [Store] to JSON backups and restores from them.
type Exporter struct {
	store Store
	now   func() time.Time
}

// NewExporter returns an Exporter over store.
func NewExporter(store Store) *Exporter {
	return &Exporter{store: store, now: time.Now}
}

// Export serialises every session plus the goals into a versioned JSON
// document.
func (e *Exporter) Export(ctx context.Context) ([]byte, error) {
	sessions, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("progress: export: %w", err)
	}
	goals, err := e.store.Goals(ctx)
	if err != nil {
		return nil, fmt.Errorf("progress: export: %w", err)
	}

	doc := ExportDoc{
		Version:    ExportVersion,
		ExportedAt: e.now().UTC(),
		Goals:      goals,
		Sessions:   make([]exportSession, 0, len(sessions)),
	}
	for _, s := range sessions {
		doc.Sessions = append(doc.Sessions, toExport(s))
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Import validates data and, only when the whole document is valid,
// replaces the store's contents with it. A failed import leaves the store
// untouched.
func (e *Exporter) Import(ctx context.Context, data []byte) error {
	var doc ExportDoc
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %w", ErrBadExport, err)
	}
	if doc.Version != ExportVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrBadExport, doc.Version)
	}

	sessions := make([]ExerciseSession, 0, len(doc.Sessions))
	seen := make(map[string]struct{}, len(doc.Sessions))
	for i, es := range doc.Sessions {
		s, err := fromExport(es)
		if err != nil {
			return fmt.Errorf("%w: session %d: %w", ErrBadExport, i, err)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: session %d: duplicate id %q", ErrBadExport, i, s.ID)
		}
		seen[s.ID] = struct{}{}
		sessions = append(sessions, s)
	}

	if err := e.store.ReplaceAll(ctx, sessions, doc.Goals); err != nil {
		return fmt.Errorf("progress: import: %w", err)
	}
	return nil
}

func toExport(s ExerciseSession) exportSession {
	return exportSession{
		ID:              s.ID,
		ExerciseID:      s.ExerciseID,
		ExerciseType:    s.ExerciseType,
		CompletedAt:     s.CompletedAt.UTC(),
		DurationMS:      s.Duration.Milliseconds(),
		FluencyScore:    s.FluencyScore,
		ClarityScore:    s.ClarityScore,
		ConfidenceScore: s.ConfidenceScore,
		WordsPerMinute:  s.WordsPerMinute,
		TotalWords:      s.TotalWords,
		RepetitionCount: s.RepetitionCount,
		PauseCount:      s.PauseCount,
		AudioURL:        s.AudioURL,
		Notes:           s.Notes,
	}
}

func fromExport(es exportSession) (ExerciseSession, error) {
	switch {
	case es.ID == "":
		return ExerciseSession{}, errors.New("missing id")
	case !es.ExerciseType.IsValid():
		return ExerciseSession{}, fmt.Errorf("unknown exercise type %q", es.ExerciseType)
	case es.CompletedAt.IsZero():
		return ExerciseSession{}, errors.New("missing completed_at")
	case es.DurationMS < 0:
		return ExerciseSession{}, fmt.Errorf("negative duration %d", es.DurationMS)
	}
	for name, score := range map[string]float64{
		"fluency_score":    es.FluencyScore,
		"clarity_score":    es.ClarityScore,
		"confidence_score": es.ConfidenceScore,
	} {
		if score < 0 || score > 100 {
			return ExerciseSession{}, fmt.Errorf("%s %v out of range", name, score)
		}
	}
	return ExerciseSession{
		ID:              es.ID,
		ExerciseID:      es.ExerciseID,
		ExerciseType:    es.ExerciseType,
		CompletedAt:     es.CompletedAt,
		Duration:        time.Duration(es.DurationMS) * time.Millisecond,
		FluencyScore:    es.FluencyScore,
		ClarityScore:    es.ClarityScore,
		ConfidenceScore: es.ConfidenceScore,
		WordsPerMinute:  es.WordsPerMinute,
		TotalWords:      es.TotalWords,
		RepetitionCount: es.RepetitionCount,
		PauseCount:      es.PauseCount,
		AudioURL:        es.AudioURL,
		Notes:           es.Notes,
	}, nil
}
