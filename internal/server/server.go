// Package server exposes generation, checking and search sessions over HTTP.
// Streaming endpoints answer with server-sent events, one JSON-encoded
// search.Event per "data:" frame, always terminated by a done event.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/benithors/domhaul/internal/domain"
	"github.com/benithors/domhaul/internal/gate"
	"github.com/benithors/domhaul/internal/generate"
	"github.com/benithors/domhaul/internal/logger"
	"github.com/benithors/domhaul/internal/search"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultMaxCheck = 100

type Options struct {
	Generator generate.Generator
	Checker   search.Checker
	Search    *search.Orchestrator

	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer

	// MaxCheck caps the domains accepted by /api/check.
	MaxCheck int
	// MaxStreams caps concurrent streaming requests; 0 means unlimited.
	MaxStreams int
	// StreamWait is how long a request may queue for a stream slot.
	StreamWait time.Duration

	Logger *slog.Logger
}

type Server struct {
	Router *mux.Router

	opts Options
	log  *slog.Logger
}

func New(opts Options) *Server {
	if opts.MaxCheck <= 0 {
		opts.MaxCheck = DefaultMaxCheck
	}
	if opts.StreamWait <= 0 {
		opts.StreamWait = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	s := &Server{Router: mux.NewRouter(), opts: opts, log: opts.Logger.With("component", "http")}

	s.Router.Use(logging(s.log))

	api := s.Router.PathPrefix("/api").Subrouter()
	if opts.MaxStreams > 0 {
		api.Use(limitStreams(gate.New(opts.MaxStreams), opts.StreamWait, s.log))
	}
	api.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/check", s.handleCheck).Methods(http.MethodPost)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)

	s.Router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		s.Router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.Router.ServeHTTP(w, r) }

type generateRequest struct {
	Description string `json:"description"`
	Count       int    `json:"count"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		http.Error(w, "Description is required", http.StatusBadRequest)
		return
	}
	if s.opts.Generator == nil {
		http.Error(w, "generation is not configured", http.StatusServiceUnavailable)
		return
	}

	sse, ok := newSSE(w, s.log)
	if !ok {
		return
	}
	defer sse.send(search.Done())

	sse.send(search.PhaseChanged(search.PhaseGenerating))
	emitted := 0
	for name, err := range s.opts.Generator.Generate(r.Context(), req.Description, generate.ClampCount(req.Count)) {
		if err != nil {
			if r.Context().Err() == nil {
				sse.send(search.Error(err.Error()))
			}
			return
		}
		sse.send(search.Candidate(name))
		emitted++
	}
	if emitted == 0 {
		sse.send(search.Error(search.ErrNoNames.Error()))
	}
}

type checkRequest struct {
	Domains []string `json:"domains"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decode(w, r, &req) {
		return
	}
	domains := domain.ParseList(req.Domains)
	if len(domains) == 0 {
		http.Error(w, "No valid domains provided", http.StatusBadRequest)
		return
	}
	if len(domains) > s.opts.MaxCheck {
		http.Error(w, "Too many domains in one request", http.StatusBadRequest)
		return
	}
	if s.opts.Checker == nil {
		http.Error(w, "checking is not configured", http.StatusServiceUnavailable)
		return
	}

	sse, ok := newSSE(w, s.log)
	if !ok {
		return
	}
	defer sse.send(search.Done())

	sse.send(search.PhaseChanged(search.PhaseChecking))
	results, err := s.opts.Checker.Check(r.Context(), domains)
	if err != nil {
		sse.send(search.Error(err.Error()))
		return
	}
	for res := range results {
		sse.send(search.ResultReady(res))
	}
}

type searchRequest struct {
	Description     string   `json:"description"`
	Suffixes        []string `json:"suffixes"`
	Count           int      `json:"count"`
	AvailableTarget int      `json:"availableTarget"`
	MaxRounds       int      `json:"maxRounds"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		http.Error(w, "Description is required", http.StatusBadRequest)
		return
	}
	if req.AvailableTarget < 0 || req.MaxRounds < 0 {
		http.Error(w, "availableTarget and maxRounds must not be negative", http.StatusBadRequest)
		return
	}
	if s.opts.Search == nil {
		http.Error(w, "search is not configured", http.StatusServiceUnavailable)
		return
	}

	sse, ok := newSSE(w, s.log)
	if !ok {
		return
	}
	s.opts.Search.Run(r.Context(), search.Request{
		Description:     req.Description,
		Suffixes:        req.Suffixes,
		NamesPerRound:   generate.ClampCount(req.Count),
		AvailableTarget: req.AvailableTarget,
		MaxRounds:       req.MaxRounds,
	}, sse.send)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}
