package progress

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anneliv/orato/pkg/types"
)

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := NewMemStore()

	at := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	first := addAt(t, src, at, practiceDraft(types.ExercisePacing, 10*time.Minute, 72))
	second := addAt(t, src, at.Add(48*time.Hour), practiceDraft(types.ExerciseBreathing, 5*time.Minute, 65))
	weekly := 7
	if _, err := src.UpdateGoals(ctx, GoalsUpdate{WeeklySessions: &weekly}); err != nil {
		t.Fatalf("UpdateGoals: %v", err)
	}

	data, err := NewExporter(src).Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst := NewMemStore()
	if err := NewExporter(dst).Import(ctx, data); err != nil {
		t.Fatalf("Import: %v", err)
	}

	got, err := dst.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("imported %d sessions, want 2", len(got))
	}
	// Newest first: second, then first.
	for i, want := range []ExerciseSession{second, first} {
		if got[i].ID != want.ID {
			t.Errorf("session %d: ID = %s, want %s", i, got[i].ID, want.ID)
		}
		if !got[i].CompletedAt.Equal(want.CompletedAt) {
			t.Errorf("session %d: CompletedAt = %v, want %v", i, got[i].CompletedAt, want.CompletedAt)
		}
		if got[i].FluencyScore != want.FluencyScore || got[i].Duration != want.Duration {
			t.Errorf("session %d: scores or duration changed: %+v", i, got[i])
		}
	}

	goals, err := dst.Goals(ctx)
	if err != nil {
		t.Fatalf("Goals: %v", err)
	}
	if goals.WeeklySessions != 7 {
		t.Errorf("WeeklySessions = %d, want 7", goals.WeeklySessions)
	}
}

func TestExportDocumentShape(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()
	addAt(t, s, time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC), practiceDraft(types.ExercisePacing, 10*time.Minute, 72))

	data, err := NewExporter(s).Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	for _, key := range []string{"version", "exported_at", "goals", "sessions"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("export document missing %q", key)
		}
	}
	var version string
	if err := json.Unmarshal(doc["version"], &version); err != nil || version != ExportVersion {
		t.Errorf("version = %q (%v), want %q", version, err, ExportVersion)
	}
}

func TestImportRejectsInvalidDocuments(t *testing.T) {
	t.Parallel()

	validSession := `{"id":"s-1","exercise_id":"ex","exercise_type":"pacing","completed_at":"2026-03-10T08:30:00Z","duration_ms":600000,"fluency_score":72,"clarity_score":80,"confidence_score":75}`

	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{{{`},
		{"wrong version", `{"version":"2.0","exported_at":"2026-03-18T00:00:00Z","goals":{},"sessions":[]}`},
		{"unknown field", `{"version":"1.0","exported_at":"2026-03-18T00:00:00Z","goals":{},"sessions":[],"extra":1}`},
		{"missing session id", strings.Replace(
			`{"version":"1.0","exported_at":"2026-03-18T00:00:00Z","goals":{},"sessions":[`+validSession+`]}`,
			`"id":"s-1",`, "", 1)},
		{"bad exercise type", strings.Replace(
			`{"version":"1.0","exported_at":"2026-03-18T00:00:00Z","goals":{},"sessions":[`+validSession+`]}`,
			`"pacing"`, `"juggling"`, 1)},
		{"score out of range", strings.Replace(
			`{"version":"1.0","exported_at":"2026-03-18T00:00:00Z","goals":{},"sessions":[`+validSession+`]}`,
			`"fluency_score":72`, `"fluency_score":140`, 1)},
		{"duplicate ids", `{"version":"1.0","exported_at":"2026-03-18T00:00:00Z","goals":{},"sessions":[` +
			validSession + `,` + validSession + `]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := NewMemStore()
			existing := addAt(t, s, time.Now(), practiceDraft(types.ExerciseFluency, 10*time.Minute, 70))

			err := NewExporter(s).Import(ctx, []byte(tt.doc))
			if !errors.Is(err, ErrBadExport) {
				t.Fatalf("Import error = %v, want ErrBadExport", err)
			}

			// A failed import must not disturb the store.
			got, lerr := s.List(ctx)
			if lerr != nil {
				t.Fatalf("List: %v", lerr)
			}
			if len(got) != 1 || got[0].ID != existing.ID {
				t.Errorf("store changed after failed import: %+v", got)
			}
		})
	}
}
