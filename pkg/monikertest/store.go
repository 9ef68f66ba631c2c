package monikertest

import (
	"strings"

	"github.com/moniker-data/moniker-go/pkg/moniker"
)

func normalize(path string) string {
	return strings.Trim(strings.TrimPrefix(path, moniker.Scheme), "/")
}

// AddSource registers a resolution for path. Empty Moniker/Path fields on
// rs are filled in from path.
func (s *Server) AddSource(path string, rs *moniker.ResolvedSource) {
	path = normalize(path)
	if rs.Path == "" {
		rs.Path = path
	}
	if rs.Moniker == "" {
		rs.Moniker = moniker.Scheme + rs.Path
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolutions[path] = rs
}

// AddChildren registers the child names listed under path.
func (s *Server) AddChildren(path string, names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children[normalize(path)] = names
}

// AddDescription registers the describe document for path.
func (s *Server) AddDescription(path string, doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.describes[normalize(path)] = doc
}

// AddMetadata registers the metadata document for path.
func (s *Server) AddMetadata(path string, doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[normalize(path)] = doc
}

// AddSample registers the sample payload for path.
func (s *Server) AddSample(path string, doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[normalize(path)] = doc
}

// AddFetch registers the server-side fetch payload for path.
func (s *Server) AddFetch(path string, doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[normalize(path)] = doc
}

// FailFetch makes fetches of path fail with the given status and detail.
func (s *Server) FailFetch(path string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchFails[normalize(path)] = fetchFailure{status: status, detail: detail}
}

// AddLineage registers the lineage document for path.
func (s *Server) AddLineage(path string, doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lineages[normalize(path)] = doc
}

// AddTree registers the subtree document rooted at path. Use "" for the
// full tree.
func (s *Server) AddTree(path string, doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trees[normalize(path)] = doc
}

// SetStats sets the catalog statistics payload.
func (s *Server) SetStats(doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = doc
}

// AddSearchEntry registers a catalog entry returned by search. Recognized
// keys: path, name, description, status, tags.
func (s *Server) AddSearchEntry(entry map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// FailNext makes the next n resolution requests fail with status.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRemaining = n
	s.failStatus = status
}

// Calls returns recorded calls whose path contains substr; pass "" for
// all calls.
func (s *Server) Calls(substr string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, 0, len(s.calls))
	for _, c := range s.calls {
		if substr == "" || strings.Contains(c.Path, substr) {
			out = append(out, c)
		}
	}
	return out
}

// TelemetryEvents returns the access events posted so far.
func (s *Server) TelemetryEvents() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.telemetry))
	copy(out, s.telemetry)
	return out
}

// Reset clears every store and the call log. Injected failures and
// latency are kept.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolutions = map[string]*moniker.ResolvedSource{}
	s.children = map[string][]string{}
	s.describes = map[string]map[string]any{}
	s.metadata = map[string]map[string]any{}
	s.samples = map[string]map[string]any{}
	s.fetches = map[string]map[string]any{}
	s.fetchFails = map[string]fetchFailure{}
	s.lineages = map[string]map[string]any{}
	s.trees = map[string]map[string]any{}
	s.stats = map[string]any{}
	s.entries = nil
	s.telemetry = nil
	s.calls = nil
}
