// Package monikertest provides an in-process fake resolution service for
// tests. Configure it with Add* methods, point a client at URL(), and
// assert on the recorded call log.
package monikertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/oklog/ulid/v2"

	"github.com/moniker-data/moniker-go/pkg/moniker"
)

// Call is one recorded request to the fake resolver.
type Call struct {
	ID      string
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
}

type fetchFailure struct {
	status int
	detail string
}

// Server is a fake resolution service backed by httptest.
type Server struct {
	mu          sync.Mutex
	resolutions map[string]*moniker.ResolvedSource
	children    map[string][]string
	describes   map[string]map[string]any
	metadata    map[string]map[string]any
	samples     map[string]map[string]any
	fetches     map[string]map[string]any
	fetchFails  map[string]fetchFailure
	lineages    map[string]map[string]any
	trees       map[string]map[string]any
	stats       map[string]any
	entries     []map[string]any
	telemetry   []map[string]any
	calls       []Call

	failRemaining int
	failStatus    int
	latency       time.Duration
	rateLimit     int

	srv *httptest.Server
}

// Option configures a Server at construction.
type Option func(*Server)

// WithFailures makes the next n resolution requests fail with the given
// status before normal handling resumes.
func WithFailures(n, status int) Option {
	return func(s *Server) {
		s.failRemaining = n
		s.failStatus = status
	}
}

// WithLatency delays every response by d.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// WithRateLimit caps requests per second per client IP; excess requests
// receive 429.
func WithRateLimit(perSecond int) Option {
	return func(s *Server) { s.rateLimit = perSecond }
}

// NewServer starts a fake resolver. The caller must Close it.
func NewServer(opts ...Option) *Server {
	s := &Server{
		resolutions: map[string]*moniker.ResolvedSource{},
		children:    map[string][]string{},
		describes:   map[string]map[string]any{},
		metadata:    map[string]map[string]any{},
		samples:     map[string]map[string]any{},
		fetches:     map[string]map[string]any{},
		fetchFails:  map[string]fetchFailure{},
		lineages:    map[string]map[string]any{},
		trees:       map[string]map[string]any{},
		stats:       map[string]any{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(s.router())
	return s
}

// NewTestServer is NewServer wired to the test lifecycle.
func NewTestServer(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := NewServer(opts...)
	t.Cleanup(s.Close)
	return s
}

// URL returns the base URL to point a client at.
func (s *Server) URL() string { return s.srv.URL }

// Close shuts the underlying HTTP server down.
func (s *Server) Close() { s.srv.Close() }

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))
	if s.rateLimit > 0 {
		r.Use(httprate.LimitByIP(s.rateLimit, time.Second))
	}
	r.Use(s.record)

	r.Post("/resolve/batch", s.handleBatchResolve)
	r.Get("/resolve/*", s.handleResolve)
	r.Get("/describe/*", s.handleDescribe)
	r.Get("/list", s.handleList)
	r.Get("/list/*", s.handleList)
	r.Get("/lineage/*", s.handleLineage)
	r.Get("/metadata/*", s.handleMetadata)
	r.Get("/sample/*", s.handleSample)
	r.Get("/fetch/*", s.handleFetch)
	r.Get("/tree", s.handleTree)
	r.Get("/tree/*", s.handleTree)
	r.Get("/catalog/search", s.handleSearch)
	r.Get("/catalog/stats", s.handleStats)
	r.Post("/telemetry/access", s.handleTelemetry)
	r.Get("/health", s.handleHealth)
	return r
}

// record logs every request and applies the configured latency.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{
			ID:      ulid.Make().String(),
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.Query(),
			Headers: r.Header.Clone(),
		})
		delay := s.latency
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		next.ServeHTTP(w, r)
	})
}

func pathParam(r *http.Request, prefix string) string {
	p := strings.TrimPrefix(r.URL.Path, prefix)
	return strings.Trim(p, "/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) takeFailure() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRemaining <= 0 {
		return 0, false
	}
	s.failRemaining--
	return s.failStatus, true
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if status, failing := s.takeFailure(); failing {
		writeJSON(w, status, map[string]any{"detail": "injected failure"})
		return
	}
	path := pathParam(r, "/resolve")
	s.mu.Lock()
	rs, ok := s.resolutions[path]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "No source binding for: " + path})
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleBatchResolve(w http.ResponseWriter, r *http.Request) {
	if status, failing := s.takeFailure(); failing {
		writeJSON(w, status, map[string]any{"detail": "injected failure"})
		return
	}
	var body struct {
		Monikers []string `json:"monikers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": err.Error()})
		return
	}
	results := make([]*moniker.ResolvedSource, 0, len(body.Monikers))
	s.mu.Lock()
	for _, m := range body.Monikers {
		path := strings.Trim(strings.TrimPrefix(m, moniker.Scheme), "/")
		if rs, ok := s.resolutions[path]; ok {
			results = append(results, rs)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "/describe")
	s.mu.Lock()
	doc, ok := s.describes[path]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Path not found: " + path})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleList returns an empty child list for unknown paths, mirroring the
// real service.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "/list")
	s.mu.Lock()
	names := s.children[path]
	s.mu.Unlock()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "children": names})
}

func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "/lineage")
	s.mu.Lock()
	doc, ok := s.lineages[path]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Path not found: " + path})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "/metadata")
	s.mu.Lock()
	doc, ok := s.metadata[path]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Path not found: " + path})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "/sample")
	s.mu.Lock()
	doc, ok := s.samples[path]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Path not found: " + path})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "/fetch")
	s.mu.Lock()
	fail, failing := s.fetchFails[path]
	doc, ok := s.fetches[path]
	s.mu.Unlock()
	if failing {
		writeJSON(w, fail.status, map[string]any{"detail": fail.detail})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Path not found: " + path})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleTree serves configured subtrees; unknown paths yield an empty node
// rather than an error.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "/tree")
	s.mu.Lock()
	doc, ok := s.trees[path]
	s.mu.Unlock()
	if !ok {
		name := path
		if idx := strings.LastIndex(path, "/"); idx >= 0 {
			name = path[idx+1:]
		}
		doc = map[string]any{"path": path, "name": name, "children": []any{}}
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("q"))
	status := r.URL.Query().Get("status")
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}

	s.mu.Lock()
	matched := make([]map[string]any, 0, len(s.entries))
	for _, e := range s.entries {
		if status != "" {
			if st, _ := e["status"].(string); st != status {
				continue
			}
		}
		if q != "" && !entryMatches(e, q) {
			continue
		}
		matched = append(matched, e)
		if len(matched) >= limit {
			break
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"results":       matched,
		"total_results": len(matched),
	})
}

func entryMatches(e map[string]any, q string) bool {
	for _, key := range []string{"path", "name", "description"} {
		if v, _ := e[key].(string); v != "" && strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	if tags, ok := e["tags"].([]any); ok {
		for _, t := range tags {
			if ts, _ := t.(string); strings.Contains(strings.ToLower(ts), q) {
				return true
			}
		}
	}
	return false
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	doc := s.stats
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, doc)
}

// handleTelemetry accepts every event unconditionally, as the real sink
// does.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var ev map[string]any
	if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
		s.mu.Lock()
		s.telemetry = append(s.telemetry, ev)
		s.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sources := len(s.resolutions)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "sources": sources})
}
