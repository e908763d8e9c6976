package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/clipsmith/clipsmith/internal/agent"
	"github.com/clipsmith/clipsmith/internal/content"
	"github.com/clipsmith/clipsmith/internal/events"
	"github.com/clipsmith/clipsmith/internal/llm"
	"github.com/clipsmith/clipsmith/internal/pipeline"
	"github.com/clipsmith/clipsmith/internal/schema"
	"github.com/clipsmith/clipsmith/internal/store"
	"github.com/clipsmith/clipsmith/internal/style"
	"github.com/clipsmith/clipsmith/internal/transcript"
)

// defaultSingleShotCount is the batch size for /generate when the
// request doesn't ask for one. The critique pipeline uses the per-format
// defaults instead.
const defaultSingleShotCount = 3

const maxRequestBytes = 1 << 20

// Store is the persistence surface the server uses. Nil means no
// database is configured; persistence-backed endpoints return 503.
type Store interface {
	SaveGeneration(ctx context.Context, format content.Format, tone, purpose string, result content.GenerationResult) (uuid.UUID, error)
	RecentGenerations(ctx context.Context, limit int) ([]store.GenerationRow, error)
	SaveStyleProfile(ctx context.Context, name string, profile content.StyleProfile, examples []string) (uuid.UUID, error)
	ListStyleProfiles(ctx context.Context, limit int) ([]store.StyleRow, error)
}

// Publisher is the events surface the server uses; nil skips publishing.
type Publisher interface {
	Publish(subject string, data any) error
}

type Deps struct {
	Pipeline *pipeline.Orchestrator
	Analyzer *style.Analyzer
	Agent    *agent.Loop
	Store    Store
	Events   Publisher
	Logger   *slog.Logger
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	logger *slog.Logger
}

func NewServer(port int, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
		logger: deps.Logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/clipsmith/status", s.status)
	router.Post("/api/v1/generate", s.generate)
	router.Post("/api/v1/generate/critique", s.generateCritique)
	router.Post("/api/v1/style/analyze", s.analyzeStyle)
	router.Post("/api/v1/agent", s.agentTurn)
	router.Get("/api/v1/generations/recent", s.recentGenerations)
	router.Get("/api/v1/styles", s.listStyles)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "clipsmith",
		"status":      "ok",
		"persistence": s.deps.Store != nil,
		"events":      s.deps.Events != nil,
	})
}

type generateRequest struct {
	Transcript    string                `json:"transcript"`
	TranscriptURL string                `json:"transcriptUrl"`
	Segments      []content.Segment     `json:"segments"`
	Format        content.Format        `json:"format"`
	Tone          string                `json:"tone"`
	Count         int                   `json:"count"`
	Purpose       string                `json:"purpose"`
	Style         *content.StyleProfile `json:"style"`
}

func (req generateRequest) pipelineRequest() pipeline.Request {
	return pipeline.Request{
		Transcript:    req.Transcript,
		TranscriptURL: req.TranscriptURL,
		Segments:      req.Segments,
		Format:        req.Format,
		Tone:          req.Tone,
		Count:         req.Count,
		Style:         req.Style,
		Purpose:       req.Purpose,
	}
}

// generate is the single-shot path: one model call, no critique.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}
	if req.Count <= 0 {
		req.Count = defaultSingleShotCount
	}

	result, err := s.deps.Pipeline.GenerateOnce(r.Context(), req.pipelineRequest())
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}

	s.persistGeneration(r.Context(), req, result)
	writeJSON(w, http.StatusOK, result)
}

// generateCritique runs the full generate, critique, refine pipeline.
func (s *Server) generateCritique(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	result, err := s.deps.Pipeline.Run(r.Context(), req.pipelineRequest())
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}

	s.persistGeneration(r.Context(), req, result)
	writeJSON(w, http.StatusOK, result)
}

func decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (generateRequest, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return generateRequest{}, false
	}

	res := schema.Validate[generateRequest](schema.GenerateRequest, body)
	if !res.OK {
		writeError(w, http.StatusBadRequest, res.Err.Error())
		return generateRequest{}, false
	}
	return res.Parsed, true
}

func (s *Server) writeGenerationError(w http.ResponseWriter, err error) {
	if errors.Is(err, transcript.ErrMissing) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("generation failed", "error", err)
	writeError(w, http.StatusBadGateway, "generation failed")
}

func (s *Server) persistGeneration(ctx context.Context, req generateRequest, result content.GenerationResult) {
	var generationID uuid.UUID
	if s.deps.Store != nil {
		id, err := s.deps.Store.SaveGeneration(ctx, req.Format, req.Tone, req.Purpose, result)
		if err != nil {
			s.logger.Error("persist generation failed", "error", err)
		} else {
			generationID = id
		}
	}
	if s.deps.Events != nil {
		if err := s.deps.Events.Publish(events.SubjectGenerationCompleted, events.GenerationCompletedEvent{
			GenerationID: generationID.String(),
			Format:       string(req.Format),
			ItemCount:    len(result.Items),
			Passes:       result.PassMeta.Passes,
		}); err != nil {
			s.logger.Error("publish generation event failed", "error", err)
		}
	}
}

type styleRequest struct {
	Name     string   `json:"name"`
	Examples []string `json:"examples"`
}

func (s *Server) analyzeStyle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}

	res := schema.Validate[styleRequest](schema.StyleRequest, body)
	if !res.OK {
		writeError(w, http.StatusBadRequest, res.Err.Error())
		return
	}
	req := res.Parsed

	profile, err := s.deps.Analyzer.Analyze(r.Context(), req.Examples)
	if err != nil {
		if style.IsInputError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("style analysis failed", "error", err)
		writeError(w, http.StatusBadGateway, "style analysis failed")
		return
	}

	var profileID uuid.UUID
	if s.deps.Store != nil {
		id, err := s.deps.Store.SaveStyleProfile(r.Context(), req.Name, profile, req.Examples)
		if err != nil {
			s.logger.Error("persist style profile failed", "error", err)
		} else {
			profileID = id
		}
	}
	if s.deps.Events != nil {
		if err := s.deps.Events.Publish(events.SubjectStyleAnalyzed, events.StyleAnalyzedEvent{
			ProfileID: profileID.String(),
			Name:      req.Name,
			Degraded:  style.IsDegraded(profile),
		}); err != nil {
			s.logger.Error("publish style event failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, profile)
}

type agentRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Context string                `json:"context"`
	Purpose string                `json:"purpose"`
	Style   *content.StyleProfile `json:"style"`
}

// sseSink streams agent events to the client as they happen.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(ev agent.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Server) agentTurn(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}

	res := schema.Validate[agentRequest](schema.AgentRequest, body)
	if !res.OK {
		writeError(w, http.StatusBadRequest, res.Err.Error())
		return
	}
	req := res.Parsed

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	messages := make([]llm.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = llm.Message{Role: m.Role, Content: m.Content}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher}
	if err := s.deps.Agent.Run(r.Context(), agent.TurnRequest{
		Messages:   messages,
		Transcript: req.Context,
		Style:      req.Style,
		Purpose:    req.Purpose,
	}, sink); err != nil {
		// Headers are sent; the only channel left is an error event.
		s.logger.Error("agent turn failed", "error", err)
		_ = sink.Send(agent.Event{Type: "error", Text: "agent turn failed"})
	}
}

func (s *Server) recentGenerations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}

	rows, err := s.deps.Store.RecentGenerations(r.Context(), queryLimit(r))
	if err != nil {
		s.logger.Error("list generations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list generations failed")
		return
	}
	if rows == nil {
		rows = []store.GenerationRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"generations": rows})
}

func (s *Server) listStyles(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}

	rows, err := s.deps.Store.ListStyleProfiles(r.Context(), queryLimit(r))
	if err != nil {
		s.logger.Error("list styles failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list styles failed")
		return
	}
	if rows == nil {
		rows = []store.StyleRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"styles": rows})
}

func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
