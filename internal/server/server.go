// Package server exposes the Orato HTTP API: one-shot speech analysis,
// session recording, progress queries, goals, data export/import, and the
// live metrics WebSocket stream.
//
// All handlers speak JSON. Routes are registered with method-qualified
// patterns on a plain [http.ServeMux]; wrap the result of Routes with
// observe.Middleware for tracing and request metrics.
package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/anneliv/orato/internal/coach"
	"github.com/anneliv/orato/internal/fluency"
	"github.com/anneliv/orato/internal/health"
	"github.com/anneliv/orato/internal/live"
	"github.com/anneliv/orato/internal/observe"
	"github.com/anneliv/orato/internal/progress"
	"github.com/anneliv/orato/pkg/provider/transcriber"
	"github.com/anneliv/orato/pkg/types"
)

// Config carries the collaborators a Server needs. Store, Calculator and
// Coach are required; Transcriber may be nil, in which case /v1/analyze
// accepts only pre-transcribed input.
type Config struct {
	Store       progress.Store
	Calculator  *fluency.Calculator
	Coach       *coach.Generator
	Transcriber transcriber.Provider

	// TranscriberName labels transcriber metrics. Empty means "none".
	TranscriberName string

	// DefaultLanguage is the recognition hint used when a request does not
	// carry one.
	DefaultLanguage string

	// Live configures per-connection trackers for /v1/live.
	Live live.Config

	// StreakMinimum is the daily practice floor for streak days. Zero
	// keeps the aggregator default.
	StreakMinimum time.Duration

	// Metrics defaults to observe.DefaultMetrics when nil.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
}

// Server is the HTTP API for a running Orato instance.
type Server struct {
	store       progress.Store
	agg         *progress.Aggregator
	exporter    *progress.Exporter
	calc        *fluency.Calculator
	coach       *coach.Generator
	transcriber transcriber.Provider
	transName   string
	defaultLang string
	liveCfg     live.Config
	metrics     *observe.Metrics
	log         *slog.Logger
}

// New wires a Server from its collaborators.
func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var aggOpts []progress.AggregatorOption
	if cfg.StreakMinimum > 0 {
		aggOpts = append(aggOpts, progress.WithStreakMinimum(cfg.StreakMinimum))
	}

	return &Server{
		store:       cfg.Store,
		agg:         progress.NewAggregator(cfg.Store, aggOpts...),
		exporter:    progress.NewExporter(cfg.Store),
		calc:        cfg.Calculator,
		coach:       cfg.Coach,
		transcriber: cfg.Transcriber,
		transName:   cfg.TranscriberName,
		defaultLang: cfg.DefaultLanguage,
		liveCfg:     cfg.Live,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
	}
}

// Routes builds the full route table, including health endpoints and the
// Prometheus scrape handler.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /v1/sessions", s.handleAddSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("DELETE /v1/sessions", s.handleClearSessions)

	mux.HandleFunc("GET /v1/progress/daily", s.handleDaily)
	mux.HandleFunc("GET /v1/progress/weekly", s.handleWeekly)
	mux.HandleFunc("GET /v1/progress/streak", s.handleStreak)
	mux.HandleFunc("GET /v1/progress/stats", s.handleStats)

	mux.HandleFunc("GET /v1/goals", s.handleGetGoals)
	mux.HandleFunc("PUT /v1/goals", s.handleUpdateGoals)

	mux.HandleFunc("GET /v1/export", s.handleExport)
	mux.HandleFunc("POST /v1/import", s.handleImport)

	mux.HandleFunc("GET /v1/live", s.handleLive)

	checkers := []health.Checker{health.StoreChecker(s.store)}
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// ─── Analysis ────────────────────────────────────────────────────────────────

// analyzeRequest is the /v1/analyze input. Exactly one of Transcription or
// AudioBase64 must be set; audio input requires a configured transcriber.
type analyzeRequest struct {
	UserID       string `json:"user_id"`
	ExerciseID   string `json:"exercise_id"`
	ExerciseType string `json:"exercise_type"`
	Difficulty   int    `json:"difficulty,omitempty"`

	Transcription *types.TranscriptionResult `json:"transcription,omitempty"`

	AudioBase64 string `json:"audio_base64,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Language    string `json:"language,omitempty"`
	Prompt      string `json:"prompt,omitempty"`

	// Record stores the analysis outcome as a completed exercise session.
	Record bool `json:"record,omitempty"`
}

type analyzeResponse struct {
	Metrics  fluency.Metrics `json:"metrics"`
	Coaching coach.Session   `json:"coaching"`

	// NoSpeech is set when the transcriber found no speech; metrics are
	// zero-valued but the session is still recorded when requested.
	NoSpeech bool `json:"no_speech,omitempty"`

	// RecordID is the stored session ID when Record was requested.
	RecordID string `json:"record_id,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.error(w, http.StatusBadRequest, err.Error())
		return
	}

	exType := types.ExerciseType(req.ExerciseType)
	if !exType.IsValid() {
		s.error(w, http.StatusBadRequest, fmt.Sprintf("unknown exercise_type %q", req.ExerciseType))
		return
	}

	ctx, span := observe.StartSpan(r.Context(), "analyze")
	defer span.End()

	var (
		result   types.TranscriptionResult
		noSpeech bool
	)
	switch {
	case req.Transcription != nil:
		result = *req.Transcription
	case req.AudioBase64 != "":
		var err error
		result, noSpeech, err = s.transcribe(ctx, req)
		if err != nil {
			s.error(w, http.StatusBadGateway, err.Error())
			return
		}
	default:
		s.error(w, http.StatusBadRequest, "either transcription or audio_base64 is required")
		return
	}

	start := time.Now()
	var metrics fluency.Metrics
	if !noSpeech {
		metrics = s.calc.Compute(result)
	}
	s.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())

	feedbackStart := time.Now()
	ex := coach.Exercise{ID: req.ExerciseID, Type: exType, Difficulty: req.Difficulty}
	coaching := s.coach.Generate(req.UserID, ex, metrics, nil)
	s.metrics.FeedbackDuration.Record(ctx, time.Since(feedbackStart).Seconds())

	resp := analyzeResponse{Metrics: metrics, Coaching: coaching, NoSpeech: noSpeech}

	if req.Record {
		stored, err := s.store.Add(ctx, progress.SessionDraft{
			ExerciseID:      req.ExerciseID,
			ExerciseType:    exType,
			Duration:        time.Duration(metrics.Duration * float64(time.Second)),
			FluencyScore:    metrics.FluencyScore,
			ClarityScore:    metrics.ClarityScore,
			ConfidenceScore: metrics.ConfidenceScore,
			WordsPerMinute:  metrics.WordsPerMinute,
			TotalWords:      metrics.TotalWords,
			RepetitionCount: len(metrics.Repetitions),
			PauseCount:      len(metrics.Pauses),
		})
		if err != nil {
			s.error(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.metrics.RecordSessionRecorded(ctx, string(exType))
		resp.RecordID = stored.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

// transcribe decodes the audio payload and runs it through the configured
// transcriber. A no-speech outcome is not an error: the caller records a
// zero-metric session instead.
func (s *Server) transcribe(ctx context.Context, req analyzeRequest) (types.TranscriptionResult, bool, error) {
	if s.transcriber == nil {
		return types.TranscriptionResult{}, false, errors.New("no transcriber configured, send a transcription instead")
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		return types.TranscriptionResult{}, false, fmt.Errorf("decode audio_base64: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = s.defaultLang
	}

	start := time.Now()
	result, err := s.transcriber.Transcribe(ctx, transcriber.Request{
		Audio:    bytes.NewReader(audio),
		Filename: req.Filename,
		Language: lang,
		Prompt:   req.Prompt,
	})
	s.metrics.TranscribeDuration.Record(ctx, time.Since(start).Seconds(),
		metricAttr("provider", s.transName))

	switch {
	case errors.Is(err, transcriber.ErrNoSpeech):
		s.metrics.RecordTranscriberRequest(ctx, s.transName, "no_speech")
		return types.TranscriptionResult{}, true, nil
	case err != nil:
		s.metrics.RecordTranscriberError(ctx, s.transName)
		return types.TranscriptionResult{}, false, fmt.Errorf("transcribe: %w", err)
	}

	s.metrics.RecordTranscriberRequest(ctx, s.transName, "ok")
	return result, false, nil
}

// ─── Sessions ────────────────────────────────────────────────────────────────

func (s *Server) handleAddSession(w http.ResponseWriter, r *http.Request) {
	var draft progress.SessionDraft
	if err := decodeJSON(r, &draft); err != nil {
		s.error(w, http.StatusBadRequest, err.Error())
		return
	}
	if !draft.ExerciseType.IsValid() {
		s.error(w, http.StatusBadRequest, fmt.Sprintf("unknown exercise_type %q", draft.ExerciseType))
		return
	}

	stored, err := s.store.Add(r.Context(), draft)
	if err != nil {
		s.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.RecordSessionRecorded(r.Context(), string(stored.ExerciseType))
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.List(r.Context())
	if err != nil {
		s.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("store cleared")
	w.WriteHeader(http.StatusNoContent)
}

// ─── Progress ────────────────────────────────────────────────────────────────

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	day := time.Now()
	if q := r.URL.Query().Get("date"); q != "" {
		parsed, err := time.ParseInLocation("2006-01-02", q, time.Local)
		if err != nil {
			s.error(w, http.StatusBadRequest, fmt.Sprintf("bad date %q, want YYYY-MM-DD", q))
			return
		}
		day = parsed
	}

	daily, err := s.agg.DailyProgress(r.Context(), day)
	if err != nil {
		s.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, daily)
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	weeks := 4
	if q := r.URL.Query().Get("weeks"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 52 {
			s.error(w, http.StatusBadRequest, fmt.Sprintf("bad weeks %q, want 1-52", q))
			return
		}
		weeks = n
	}

	weekly, err := s.agg.WeeklyProgress(r.Context(), weeks)
	if err != nil {
		s.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"weeks": weekly})
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	streak, err := s.agg.StreakData(r.Context())
	if err != nil {
		s.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, streak)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.agg.Stats(r.Context())
	if err != nil {
		s.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ─── Goals ───────────────────────────────────────────────────────────────────

func (s *Server) handleGetGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.store.Goals(r.Context())
	if err != nil {
		s.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) handleUpdateGoals(w http.ResponseWriter, r *http.Request) {
	var update progress.GoalsUpdate
	if err := decodeJSON(r, &update); err != nil {
		s.error(w, http.StatusBadRequest, err.Error())
		return
	}

	goals, err := s.store.UpdateGoals(r.Context(), update)
	if err != nil {
		s.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

// ─── Export / import ─────────────────────────────────────────────────────────

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.exporter.Export(r.Context())
	if err != nil {
		s.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="orato-export.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r, maxImportBytes)
	if err != nil {
		s.error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.exporter.Import(r.Context(), data); err != nil {
		if errors.Is(err, progress.ErrBadExport) {
			s.error(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("import applied", "bytes", len(data))
	w.WriteHeader(http.StatusNoContent)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

const (
	// maxBodyBytes bounds regular JSON request bodies.
	maxBodyBytes = 10 << 20

	// maxImportBytes bounds import documents, which can carry years of
	// sessions.
	maxImportBytes = 64 << 20
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) error(w http.ResponseWriter, status int, msg string) {
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "err", msg)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func metricAttr(key, value string) metric.RecordOption {
	return metric.WithAttributes(observe.Attr(key, value))
}
