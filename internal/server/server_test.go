package server_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/anneliv/orato/internal/coach"
	"github.com/anneliv/orato/internal/fluency"
	"github.com/anneliv/orato/internal/live"
	"github.com/anneliv/orato/internal/progress"
	"github.com/anneliv/orato/internal/server"
	"github.com/anneliv/orato/pkg/provider/transcriber"
	"github.com/anneliv/orato/pkg/provider/transcriber/mock"
	"github.com/anneliv/orato/pkg/types"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type testEnv struct {
	store *progress.MemStore
	mock  *mock.Provider
	srv   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := progress.NewMemStore()
	trans := &mock.Provider{}

	s := server.New(server.Config{
		Store:           store,
		Calculator:      fluency.New(fluency.Config{}),
		Coach:           coach.New(coach.WithRand(rand.New(rand.NewPCG(1, 1)))),
		Transcriber:     trans,
		TranscriberName: "mock",
		Live:            live.Config{Tick: 20 * time.Millisecond},
	})

	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)

	return &testEnv{store: store, mock: trans, srv: ts}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// sampleTranscription yields ~150 WPM over 8 seconds with clean segments.
func sampleTranscription() types.TranscriptionResult {
	words := make([]string, 20)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	text := strings.Join(words, " ")
	return types.TranscriptionResult{
		Text:     text,
		Language: "en",
		Duration: 8,
		Segments: []types.TranscriptSegment{
			{Start: 0, End: 4, Text: strings.Join(words[:10], " "), AvgLogProb: -0.2, NoSpeechProb: 0.01},
			{Start: 4, End: 8, Text: strings.Join(words[10:], " "), AvgLogProb: -0.2, NoSpeechProb: 0.01},
		},
	}
}

type analyzeOut struct {
	Metrics  fluency.Metrics `json:"metrics"`
	Coaching coach.Session   `json:"coaching"`
	NoSpeech bool            `json:"no_speech"`
	RecordID string          `json:"record_id"`
}

// ---------------------------------------------------------------------------
// /v1/analyze
// ---------------------------------------------------------------------------

func TestAnalyzeWithTranscription(t *testing.T) {
	env := newTestEnv(t)

	tr := sampleTranscription()
	resp := env.do(t, http.MethodPost, "/v1/analyze", map[string]any{
		"user_id":       "u1",
		"exercise_id":   "ex1",
		"exercise_type": "freeSpeech",
		"transcription": tr,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	out := decodeBody[analyzeOut](t, resp)
	if out.Metrics.TotalWords != 20 {
		t.Errorf("TotalWords = %d, want 20", out.Metrics.TotalWords)
	}
	if math.Abs(out.Metrics.WordsPerMinute-150) > 1e-9 {
		t.Errorf("WordsPerMinute = %v, want 150", out.Metrics.WordsPerMinute)
	}
	if out.Coaching.OverallScore <= 0 {
		t.Errorf("OverallScore = %v, want > 0", out.Coaching.OverallScore)
	}
	if len(out.Coaching.Feedback) == 0 {
		t.Error("expected feedback entries")
	}
	if out.RecordID != "" {
		t.Errorf("RecordID = %q, want empty without record flag", out.RecordID)
	}
	if env.mock.CallCount() != 0 {
		t.Errorf("transcriber called %d times for pre-transcribed input", env.mock.CallCount())
	}
}

func TestAnalyzeRecordsSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/analyze", map[string]any{
		"exercise_id":   "ex1",
		"exercise_type": "pacing",
		"transcription": sampleTranscription(),
		"record":        true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	out := decodeBody[analyzeOut](t, resp)
	if out.RecordID == "" {
		t.Fatal("expected a record ID")
	}

	sessions, err := env.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("stored %d sessions, want 1", len(sessions))
	}
	got := sessions[0]
	if got.ID != out.RecordID {
		t.Errorf("stored ID = %q, want %q", got.ID, out.RecordID)
	}
	if got.ExerciseType != types.ExercisePacing {
		t.Errorf("ExerciseType = %q, want pacing", got.ExerciseType)
	}
	if got.FluencyScore != out.Metrics.FluencyScore {
		t.Errorf("FluencyScore = %v, want %v", got.FluencyScore, out.Metrics.FluencyScore)
	}
	if got.Duration != 8*time.Second {
		t.Errorf("Duration = %v, want 8s", got.Duration)
	}
}

func TestAnalyzeAudioUsesTranscriber(t *testing.T) {
	env := newTestEnv(t)
	env.mock.Result = sampleTranscription()

	audio := []byte("not really wav data")
	resp := env.do(t, http.MethodPost, "/v1/analyze", map[string]any{
		"exercise_type": "fluency",
		"audio_base64":  base64.StdEncoding.EncodeToString(audio),
		"filename":      "take1.wav",
		"language":      "en",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	out := decodeBody[analyzeOut](t, resp)
	if out.Metrics.TotalWords != 20 {
		t.Errorf("TotalWords = %d, want 20", out.Metrics.TotalWords)
	}

	if env.mock.CallCount() != 1 {
		t.Fatalf("transcriber called %d times, want 1", env.mock.CallCount())
	}
	call := env.mock.TranscribeCalls[0]
	if !bytes.Equal(call.Audio, audio) {
		t.Error("transcriber did not receive the decoded audio")
	}
	if call.Filename != "take1.wav" || call.Language != "en" {
		t.Errorf("call = %+v, want filename take1.wav, language en", call)
	}
}

func TestAnalyzeNoSpeechStillRecords(t *testing.T) {
	env := newTestEnv(t)
	env.mock.TranscribeErr = transcriber.ErrNoSpeech

	resp := env.do(t, http.MethodPost, "/v1/analyze", map[string]any{
		"exercise_type": "breathing",
		"audio_base64":  base64.StdEncoding.EncodeToString([]byte("silence")),
		"record":        true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	out := decodeBody[analyzeOut](t, resp)
	if !out.NoSpeech {
		t.Error("NoSpeech = false, want true")
	}
	if out.Metrics.TotalWords != 0 || out.Metrics.FluencyScore != 0 {
		t.Errorf("metrics = %+v, want zero values", out.Metrics)
	}
	if out.RecordID == "" {
		t.Error("expected the session to be recorded despite no speech")
	}
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"unknown exercise type", map[string]any{
			"exercise_type": "juggling",
			"transcription": sampleTranscription(),
		}},
		{"no input at all", map[string]any{
			"exercise_type": "pacing",
		}},
		{"bad base64", map[string]any{
			"exercise_type": "pacing",
			"audio_base64":  "%%% not base64 %%%",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/v1/analyze", tc.body)
			if resp.StatusCode < 400 || resp.StatusCode >= 500 {
				t.Errorf("status = %d, want a 4xx", resp.StatusCode)
			}
		})
	}
}

func TestAnalyzeWithoutTranscriberRejectsAudio(t *testing.T) {
	store := progress.NewMemStore()
	s := server.New(server.Config{
		Store:      store,
		Calculator: fluency.New(fluency.Config{}),
		Coach:      coach.New(),
	})
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{
		"exercise_type": "pacing",
		"audio_base64":  base64.StdEncoding.EncodeToString([]byte("audio")),
	})
	resp, err := http.Post(ts.URL+"/v1/analyze", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/sessions", progress.SessionDraft{
		ExerciseID:   "ex9",
		ExerciseType: types.ExerciseBreathing,
		Duration:     10 * time.Minute,
		FluencyScore: 72,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want 201", resp.StatusCode)
	}
	created := decodeBody[progress.ExerciseSession](t, resp)
	if created.ID == "" || created.CompletedAt.IsZero() {
		t.Fatalf("created = %+v, want assigned ID and timestamp", created)
	}

	resp = env.do(t, http.MethodGet, "/v1/sessions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", resp.StatusCode)
	}
	listing := decodeBody[struct {
		Sessions []progress.ExerciseSession `json:"sessions"`
	}](t, resp)
	if len(listing.Sessions) != 1 || listing.Sessions[0].ID != created.ID {
		t.Fatalf("listing = %+v, want the created session", listing.Sessions)
	}

	resp = env.do(t, http.MethodDelete, "/v1/sessions", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/v1/sessions", nil)
	listing = decodeBody[struct {
		Sessions []progress.ExerciseSession `json:"sessions"`
	}](t, resp)
	if len(listing.Sessions) != 0 {
		t.Errorf("after clear, %d sessions remain", len(listing.Sessions))
	}
}

func TestAddSessionRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/sessions", map[string]any{
		"exercise_type": "interpretive-dance",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// ---------------------------------------------------------------------------
// Progress and goals
// ---------------------------------------------------------------------------

func TestProgressEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodPost, "/v1/sessions", progress.SessionDraft{
			ExerciseType: types.ExercisePacing,
			Duration:     10 * time.Minute,
			FluencyScore: 70,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed session: status %d", resp.StatusCode)
		}
	}

	resp := env.do(t, http.MethodGet, "/v1/progress/daily", nil)
	daily := decodeBody[progress.DailyProgress](t, resp)
	if daily.Sessions != 2 {
		t.Errorf("daily sessions = %d, want 2", daily.Sessions)
	}
	if !daily.StreakDay {
		t.Error("20 minutes of practice should mark a streak day")
	}

	resp = env.do(t, http.MethodGet, "/v1/progress/daily?date=1999-01-01", nil)
	daily = decodeBody[progress.DailyProgress](t, resp)
	if daily.Sessions != 0 {
		t.Errorf("sessions on 1999-01-01 = %d, want 0", daily.Sessions)
	}

	resp = env.do(t, http.MethodGet, "/v1/progress/weekly?weeks=2", nil)
	weekly := decodeBody[struct {
		Weeks []progress.WeeklyProgress `json:"weeks"`
	}](t, resp)
	if len(weekly.Weeks) != 2 {
		t.Fatalf("got %d weeks, want 2", len(weekly.Weeks))
	}

	resp = env.do(t, http.MethodGet, "/v1/progress/streak", nil)
	streak := decodeBody[progress.StreakData](t, resp)
	if streak.Current != 1 {
		t.Errorf("current streak = %d, want 1", streak.Current)
	}

	resp = env.do(t, http.MethodGet, "/v1/progress/stats", nil)
	stats := decodeBody[progress.Stats](t, resp)
	if stats.TotalSessions != 2 {
		t.Errorf("total sessions = %d, want 2", stats.TotalSessions)
	}
	if stats.FavoriteType != types.ExercisePacing {
		t.Errorf("favorite type = %q, want pacing", stats.FavoriteType)
	}
}

func TestProgressRejectsBadQuery(t *testing.T) {
	env := newTestEnv(t)

	if resp := env.do(t, http.MethodGet, "/v1/progress/daily?date=tomorrow", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad date: status = %d, want 400", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/v1/progress/weekly?weeks=0", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("weeks=0: status = %d, want 400", resp.StatusCode)
	}
}

func TestGoalsUpdateMerges(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/v1/goals", nil)
	goals := decodeBody[progress.Goals](t, resp)
	if goals != progress.DefaultGoals() {
		t.Fatalf("fresh goals = %+v, want defaults", goals)
	}

	resp = env.do(t, http.MethodPut, "/v1/goals", map[string]any{
		"weekly_sessions": 10,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", resp.StatusCode)
	}
	goals = decodeBody[progress.Goals](t, resp)
	if goals.WeeklySessions != 10 {
		t.Errorf("WeeklySessions = %d, want 10", goals.WeeklySessions)
	}
	if goals.TargetFluency != progress.DefaultGoals().TargetFluency {
		t.Errorf("TargetFluency = %v, want untouched default", goals.TargetFluency)
	}
}

// ---------------------------------------------------------------------------
// Export / import
// ---------------------------------------------------------------------------

func TestExportImportRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/v1/sessions", progress.SessionDraft{
		ExerciseType: types.ExerciseFluency,
		Duration:     5 * time.Minute,
		FluencyScore: 81,
	})

	resp := env.do(t, http.MethodGet, "/v1/export", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d, want 200", resp.StatusCode)
	}
	doc := decodeBody[json.RawMessage](t, resp)

	if resp := env.do(t, http.MethodDelete, "/v1/sessions", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/v1/import", bytes.NewReader(doc))
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNoContent {
		t.Fatalf("import status = %d, want 204", resp2.StatusCode)
	}

	sessions, err := env.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 || sessions[0].FluencyScore != 81 {
		t.Fatalf("after import: %+v, want the original session back", sessions)
	}
}

func TestImportRejectsBadDocument(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/import", map[string]any{
		"version": "9.9",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

// ---------------------------------------------------------------------------
// Live stream
// ---------------------------------------------------------------------------

func TestLiveStreamsSnapshots(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/v1/live"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	send := func(text string, final bool) {
		t.Helper()
		data, _ := json.Marshal(types.RecognitionEvent{Text: text, IsFinal: final})
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			t.Fatalf("write event: %v", err)
		}
	}

	send("hello there", true)
	send("general", false)
	send("general kenobi", true)

	// Snapshots arrive on every tick; wait for one that has counted all
	// four final words.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read snapshot: %v", err)
		}
		var snap live.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			t.Fatalf("unmarshal snapshot: %v", err)
		}
		if snap.WordCount == 4 {
			if !snap.IsSpeaking {
				t.Error("IsSpeaking = false right after final events")
			}
			break
		}
	}
}

func TestLiveIgnoresMalformedEvents(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/v1/live"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	data, _ := json.Marshal(types.RecognitionEvent{Text: "still here", IsFinal: true})
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write event: %v", err)
	}

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read snapshot: %v", err)
		}
		var snap live.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			t.Fatalf("unmarshal snapshot: %v", err)
		}
		if snap.WordCount == 2 {
			break
		}
	}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealthEndpointsRegistered(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := env.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}
