package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/anneliv/orato/internal/app"
	"github.com/anneliv/orato/internal/config"
	"github.com/anneliv/orato/internal/progress"
	"github.com/anneliv/orato/pkg/provider/transcriber/mock"
	"github.com/anneliv/orato/pkg/types"
)

func TestNewDefaultsToMemoryStore(t *testing.T) {
	a, err := app.New(context.Background(), &config.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if _, ok := a.Store().(*progress.MemStore); !ok {
		t.Errorf("store is %T, want *progress.MemStore", a.Store())
	}
}

func TestNewOpensSQLiteStore(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Backend = config.StorageSQLite
	cfg.Storage.Path = filepath.Join(t.TempDir(), "orato.db")

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if _, ok := a.Store().(*progress.SQLiteStore); !ok {
		t.Errorf("store is %T, want *progress.SQLiteStore", a.Store())
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Backend = "punchcards"

	if _, err := app.New(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for an unknown storage backend")
	}
}

func TestNewRejectsUnknownTranscriber(t *testing.T) {
	cfg := &config.Config{}
	cfg.Transcriber.Name = "carrier-pigeon"

	if _, err := app.New(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for an unknown transcriber")
	}
}

func TestHandlerServesAnalysis(t *testing.T) {
	trans := &mock.Provider{Result: types.TranscriptionResult{
		Text:     "one two three four five six",
		Duration: 3,
	}}

	a, err := app.New(context.Background(), &config.Config{}, app.WithTranscriber(trans))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{
		"exercise_type": "freeSpeech",
		"transcription": map[string]any{
			"text":     "one two three four five six",
			"duration": 3,
		},
		"record": true,
	})
	resp, err := http.Post(ts.URL+"/v1/analyze", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/analyze: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	sessions, err := a.Store().List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("stored %d sessions, want 1", len(sessions))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.ListenAddr = "127.0.0.1:0"

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Backend = config.StorageSQLite
	cfg.Storage.Path = filepath.Join(t.TempDir(), "orato.db")

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
