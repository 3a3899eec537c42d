// Package api exposes the extraction pipeline and the exercise store over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/atena-edu/enem-helper/internal/exercise"
	"github.com/atena-edu/enem-helper/internal/export"
	"github.com/atena-edu/enem-helper/internal/pipeline"
	"github.com/atena-edu/enem-helper/internal/store"
)

// maxBodyBytes bounds extraction requests.
const maxBodyBytes = 8 << 20

// Checker reports whether a dependency is reachable.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds what the server needs. Store, Events and Cache are optional.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Runner   pipeline.RunnerConfig
	Store    store.ExerciseStore
	Events   store.EventLogger
	Cache    pipeline.ResultCache
	Checks   map[string]Checker
	Logger   *slog.Logger
}

// Server serves the HTTP API.
type Server struct {
	deps   Deps
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates the server and registers its routes.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Pipeline == nil {
		deps.Pipeline = pipeline.New(pipeline.Config{Logger: deps.Logger})
	}
	if deps.Store == nil {
		deps.Store = store.NewMemoryStore()
	}
	if deps.Events == nil {
		deps.Events = store.NopEventLogger{}
	}

	s := &Server{deps: deps, logger: deps.Logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.HandleFunc("POST /v1/extract", s.handleExtract)
	s.mux.HandleFunc("GET /v1/exercises", s.handleListExercises)
	s.mux.HandleFunc("GET /v1/exercises/export.json", s.handleExportJSON)
	s.mux.HandleFunc("GET /v1/exercises/export.xlsx", s.handleExportXLSX)
	s.mux.HandleFunc("GET /v1/exercises/{id}", s.handleGetExercise)
	s.mux.HandleFunc("GET /v1/runs/{id}/events", s.handleRunEvents)
	s.mux.HandleFunc("GET /v1/ws/extract", s.handleExtractStream)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, c := range s.deps.Checks {
		if err := c.HealthCheck(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", "checks", failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// extractRequest carries one document's pages, in order.
type extractRequest struct {
	Source string   `json:"source"`
	Year   int      `json:"year"`
	Day    int      `json:"day,omitempty"`
	Pages  []string `json:"pages"`
}

func (req extractRequest) validate() error {
	switch {
	case req.Source == "":
		return errors.New("source is required")
	case req.Year <= 0:
		return errors.New("year is required")
	case len(req.Pages) == 0:
		return errors.New("at least one page is required")
	}
	return nil
}

func (req extractRequest) rawPages() []exercise.RawPage {
	pages := make([]exercise.RawPage, 0, len(req.Pages))
	for i, text := range req.Pages {
		pages = append(pages, exercise.RawPage{
			Source: req.Source,
			Year:   req.Year,
			Day:    req.Day,
			Page:   i + 1,
			Text:   text,
		})
	}
	return pages
}

// extractResponse is the result of a single-document extraction.
type extractResponse struct {
	RunID string `json:"run_id"`
	pipeline.Result
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		res    pipeline.Result
		report pipeline.DocumentReport
	)
	runner := pipeline.NewRunner(s.deps.Pipeline,
		inlineExtractor{req.Source: req.rawPages()},
		s.deps.Runner,
		s.runnerOptions(
			pipeline.WithResults(func(_ pipeline.DocumentRef, got pipeline.Result) { res = got }),
			pipeline.WithProgress(func(rep pipeline.DocumentReport) { report = rep }),
		)...,
	)
	sum, err := runner.Run(r.Context(), []pipeline.DocumentRef{{Source: req.Source, Year: req.Year, Day: req.Day}})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	switch report.Failed {
	case "":
	case exercise.ReasonTimeout:
		writeError(w, http.StatusGatewayTimeout, "extraction timed out")
		return
	case exercise.ReasonPersistFailed:
		writeError(w, http.StatusInternalServerError, "failed to persist exercises")
		return
	default:
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("extraction failed: %s", report.Failed))
		return
	}
	if res.Accepted == nil {
		res.Accepted = []exercise.Exercise{}
	}
	writeJSON(w, http.StatusOK, extractResponse{RunID: sum.RunID, Result: res})
}

// runnerOptions returns the options every request-scoped Runner shares,
// followed by extra.
func (s *Server) runnerOptions(extra ...pipeline.RunnerOption) []pipeline.RunnerOption {
	opts := []pipeline.RunnerOption{
		pipeline.WithStore(s.deps.Store),
		pipeline.WithEvents(s.deps.Events),
		pipeline.WithLogger(s.logger),
	}
	if s.deps.Cache != nil {
		opts = append(opts, pipeline.WithCache(s.deps.Cache))
	}
	return append(opts, extra...)
}

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	exs, err := s.deps.Store.ListExercises(r.Context(), f)
	if err != nil {
		s.logger.Error("failed to list exercises", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list exercises")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exercises": exs, "count": len(exs)})
}

func (s *Server) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	ex, err := s.deps.Store.GetExercise(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to get exercise", "id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get exercise")
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	reader, ok := s.deps.Events.(store.EventReader)
	if !ok {
		writeError(w, http.StatusNotImplemented, "event history is not recorded")
		return
	}
	events, err := reader.RunEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("failed to read run events", "run_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read run events")
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": r.PathValue("id"), "events": events})
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	exs, ok := s.exportSet(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="exercicios.json"`)
	if err := export.WriteJSON(w, exs); err != nil {
		s.logger.Error("json export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
	}
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	exs, ok := s.exportSet(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="exercicios.xlsx"`)
	if err := export.WriteXLSX(w, exs); err != nil {
		s.logger.Error("xlsx export failed", "error", err)
	}
}

func (s *Server) exportSet(w http.ResponseWriter, r *http.Request) ([]exercise.Exercise, bool) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	exs, err := s.deps.Store.ListExercises(r.Context(), f)
	if err != nil {
		s.logger.Error("failed to list exercises", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list exercises")
		return nil, false
	}
	return exs, true
}

func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		Area:   exercise.SubjectArea(q.Get("area")),
		Source: q.Get("source"),
	}
	if t := q.Get("topic"); t != "" {
		topic, err := exercise.ParseTopic(t)
		if err != nil {
			return f, err
		}
		f.Topic = topic
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"year", &f.Year},
		{"min_score", &f.MinScore},
		{"limit", &f.Limit},
	}
	for _, p := range ints {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%s must be a non-negative integer", p.name)
		}
		*p.dst = n
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
