package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"github.com/segscope/backend/internal/config"
	"github.com/segscope/backend/internal/engine"
	"github.com/segscope/backend/internal/metrics"
	"github.com/segscope/backend/internal/search"
	"github.com/segscope/backend/internal/segment"
	"github.com/segscope/backend/internal/storage"
)

const previewLen = 200

type Server struct {
	Engine *engine.Engine
	Logger *logrus.Entry
	Router chi.Router

	httpServer *http.Server
	mu         sync.Mutex
	drained    chan struct{}
	drainOnce  sync.Once
}

func NewServer(eng *engine.Engine, logger *logrus.Entry) *Server {
	s := &Server{
		Engine:  eng,
		Logger:  logger,
		Router:  chi.NewRouter(),
		drained: make(chan struct{}),
	}
	s.httpServer = &http.Server{Handler: s.Router}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(metrics.Middleware)

	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Get("/projects", s.handleListProjects)
		r.Put("/project", s.handlePutProject)
		r.Post("/project/open", s.handleOpenProject)
		r.Get("/segments/{idx}", s.handleGetSegment)
		r.Post("/segments/{idx}/similar", s.handleComputeSimilar)
		r.Get("/similar", s.handleGetSimilar)
		r.Get("/status", s.handleStatus)
	})
	s.Router.Handle("/metrics", promhttp.Handler())
}

// Start listens on cfg.Addr and serves until Shutdown is called.
// At most cfg.MaxConnections connections are accepted at once.
func (s *Server) Start(cfg config.ServerConfig) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}

	s.mu.Lock()
	s.httpServer.ReadTimeout = cfg.ReadTimeout
	s.httpServer.WriteTimeout = cfg.WriteTimeout
	s.mu.Unlock()

	s.Logger.WithFields(logrus.Fields{
		"addr":            ln.Addr().String(),
		"max_connections": cfg.MaxConnections,
	}).Info("Starting API Server")

	return s.Serve(ln)
}

// Serve accepts connections on ln. After Shutdown begins it returns only
// once Shutdown has finished draining in-flight requests.
func (s *Server) Serve(ln net.Listener) error {
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-s.drained
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	err := srv.Shutdown(ctx)
	s.drainOnce.Do(func() { close(s.drained) })
	return err
}

// Responses
type ErrorResponse struct {
	Error string `json:"error"`
}

type ProjectsResponse struct {
	Projects []string `json:"projects"`
	Active   string   `json:"active,omitempty"`
}

type ProjectResponse struct {
	Name     string `json:"name"`
	Segments int    `json:"segments"`
}

type SegmentResponse struct {
	Index  int    `json:"index"`
	Tokens int    `json:"tokens"`
	Text   string `json:"text"`
}

type SimilarResponse struct {
	QueryID    string          `json:"query_id"`
	Project    string          `json:"project"`
	Target     int             `json:"target"`
	ComputedAt time.Time       `json:"computed_at"`
	Results    []CandidateView `json:"results"`
}

type CandidateView struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
	Text  string  `json:"snippet"`
}

type StatusResponse struct {
	Project       string `json:"project,omitempty"`
	Segments      int    `json:"segments"`
	QueriesRun    int64  `json:"queries_run"`
	QueriesFailed int64  `json:"queries_failed"`
	LastError     string `json:"last_error,omitempty"`
	HasResult     bool   `json:"has_result"`
	Uptime        string `json:"uptime"`
}

// Handlers

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	names, err := s.Engine.Storage.List()
	if err != nil {
		s.Logger.WithError(err).Error("Failed to list projects")
		jsonResponse(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := ProjectsResponse{Projects: names}
	if p := s.Engine.Project(); p != nil {
		resp.Active = p.Name
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handlePutProject(w http.ResponseWriter, r *http.Request) {
	var project segment.Project
	if err := json.NewDecoder(r.Body).Decode(&project); err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return
	}

	if project.Name == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Project name is required"})
		return
	}

	if err := s.Engine.SetProject(&project); err != nil {
		s.Logger.WithError(err).Error("Failed to install project")
		jsonResponse(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	jsonResponse(w, http.StatusOK, ProjectResponse{Name: project.Name, Segments: len(project.Segments)})
}

func (s *Server) handleOpenProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return
	}

	if req.Name == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Project name is required"})
		return
	}

	if err := s.Engine.OpenProject(req.Name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrProjectNotFound) {
			status = http.StatusNotFound
		}
		jsonResponse(w, status, ErrorResponse{Error: err.Error()})
		return
	}

	p := s.Engine.Project()
	jsonResponse(w, http.StatusOK, ProjectResponse{Name: p.Name, Segments: len(p.Segments)})
}

func (s *Server) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	idx, ok := parseIndex(w, r)
	if !ok {
		return
	}

	seg, err := s.Engine.Segment(idx)
	if err != nil {
		jsonResponse(w, statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	jsonResponse(w, http.StatusOK, SegmentResponse{
		Index:  idx,
		Tokens: len(seg.Tokens),
		Text:   seg.Text(),
	})
}

func (s *Server) handleComputeSimilar(w http.ResponseWriter, r *http.Request) {
	idx, ok := parseIndex(w, r)
	if !ok {
		return
	}

	result, err := s.Engine.ComputeSimilarSegments(idx)
	if err != nil {
		jsonResponse(w, statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	jsonResponse(w, http.StatusOK, s.similarView(result))
}

func (s *Server) handleGetSimilar(w http.ResponseWriter, r *http.Request) {
	result, ok := s.Engine.Result()
	if !ok {
		jsonResponse(w, http.StatusNotFound, ErrorResponse{Error: "No similarity result yet"})
		return
	}

	jsonResponse(w, http.StatusOK, s.similarView(result))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.Engine.Snapshot()
	_, hasResult := s.Engine.Result()

	resp := StatusResponse{
		QueriesRun:    stats.QueriesRun,
		QueriesFailed: stats.QueriesFailed,
		LastError:     stats.LastError,
		HasResult:     hasResult,
		Uptime:        time.Since(stats.StartTime).Round(time.Second).String(),
	}
	if p := s.Engine.Project(); p != nil {
		resp.Project = p.Name
		resp.Segments = len(p.Segments)
	}

	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) similarView(result *search.SimilarityResult) SimilarResponse {
	response := SimilarResponse{
		QueryID:    result.QueryID,
		Project:    result.Project,
		Target:     result.Target,
		ComputedAt: result.ComputedAt,
		Results:    make([]CandidateView, len(result.Candidates)),
	}

	// Previews only make sense against the project the query ran on
	active := s.Engine.Project()
	sameProject := active != nil && active.Name == result.Project

	for i, c := range result.Candidates {
		var txt string
		if sameProject && c.Index < len(active.Segments) {
			txt = active.Segments[c.Index].Text()
		}
		response.Results[i] = CandidateView{
			Index: c.Index,
			Score: c.Score,
			Text:  preview(txt),
		}
	}

	return response
}

// preview cuts txt to at most previewLen bytes without splitting a rune
func preview(txt string) string {
	if len(txt) <= previewLen {
		return txt
	}
	n := previewLen
	for n > 0 && !utf8.RuneStart(txt[n]) {
		n--
	}
	return txt[:n] + "..."
}

func parseIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil || idx < 0 {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Segment index must be a non-negative integer"})
		return 0, false
	}
	return idx, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrInvalidIndex):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNoProject):
		return http.StatusConflict
	case errors.Is(err, search.ErrVectorization):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
