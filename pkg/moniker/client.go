package moniker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/moniker-data/moniker-go/internal/auth"
	"github.com/moniker-data/moniker-go/internal/observability"
	"github.com/moniker-data/moniker-go/internal/resilience"
)

// Client resolves monikers against the resolution service and reads data
// through registered source adapters. A Client is safe for concurrent use;
// construct one per process and share it.
type Client struct {
	cfg     ClientConfig
	hc      *http.Client
	thc     *http.Client
	auth    auth.HeaderProvider
	cache   *resolutionCache
	breaker *resilience.Breaker
	policy  resilience.Policy
	tracer  trace.Tracer
	wg      sync.WaitGroup
}

// NewClient builds a client from discovered configuration (config files and
// MONIKER_* environment variables) adjusted by opts.
func NewClient(opts ...Option) (*Client, error) {
	return NewClientFromFile("", opts...)
}

// MustNewClient is NewClient, panicking on error. Intended for program
// initialization where a missing resolver configuration is fatal anyway.
func MustNewClient(opts ...Option) *Client {
	c, err := NewClient(opts...)
	if err != nil {
		panic(fmt.Sprintf("moniker: %v", err))
	}
	return c
}

// NewClientFromFile is NewClient with an explicit config file layered above
// the discovered files.
func NewClientFromFile(configFile string, opts ...Option) (*Client, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewClientWithConfig(cfg)
}

// NewClientWithConfig builds a client from a fully-specified configuration,
// skipping file and environment discovery.
func NewClientWithConfig(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	provider, err := authProvider(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:    cfg,
		hc:     newHTTPClient(cfg.RequestTimeout()),
		thc:    newHTTPClient(telemetryTimeout),
		auth:   provider,
		cache:  newResolutionCache(cfg.ResolutionTTL()),
		policy: resilience.DefaultPolicy(),
		tracer: otel.Tracer("moniker"),
	}
	c.breaker = resilience.NewBreaker("resolver",
		resilience.WithStateChange(func(from, to resilience.CircuitState) {
			observability.BreakerState.Set(float64(to))
			observability.BreakerTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
		}))
	return c, nil
}

func authProvider(cfg ClientConfig) (auth.HeaderProvider, error) {
	switch cfg.AuthMethod {
	case "", "none":
		return auth.None(), nil
	case "jwt":
		return auth.JWT(cfg.JWTToken, cfg.JWTTokenEnv, cfg.JWTTokenFile), nil
	case "kerberos":
		return auth.SPNEGO(cfg.KerberosServicePrincipal), nil
	default:
		return nil, fmt.Errorf("unknown auth method %q: %w", cfg.AuthMethod, ErrConfiguration)
	}
}

// Config returns a copy of the client's effective configuration.
func (c *Client) Config() ClientConfig { return c.cfg }

// Close waits for in-flight telemetry and releases pooled source
// connections held by registered adapters.
func (c *Client) Close() error {
	c.wg.Wait()
	c.hc.CloseIdleConnections()
	c.thc.CloseIdleConnections()

	var errs []error
	adaptersMu.RLock()
	for tag, a := range adapters {
		if closer, ok := a.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close adapter %s: %w", tag, err))
			}
		}
	}
	adaptersMu.RUnlock()
	return errors.Join(errs...)
}

// Resolve returns the source binding for a moniker path, consulting the
// resolution cache first. Bindings returned from the cache are shared; treat
// them as read-only.
func (c *Client) Resolve(ctx context.Context, path string) (*ResolvedSource, error) {
	m := New(path)
	if rs, ok := c.cache.get(m.URI()); ok {
		observability.CacheHitsTotal.Inc()
		return rs, nil
	}
	observability.CacheMissesTotal.Inc()
	return c.resolveRemote(ctx, m)
}

func (c *Client) resolveRemote(ctx context.Context, m Moniker) (*ResolvedSource, error) {
	if err := c.breaker.Allow(); err != nil {
		var oe *resilience.OpenError
		if errors.As(err, &oe) {
			return nil, &BreakerOpenError{Remaining: oe.Remaining}
		}
		return nil, err
	}

	var resolved ResolvedSource
	op := func() error {
		req, err := c.newRequest(ctx, http.MethodGet, "/resolve/"+escapePath(m.Path()), nil, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.do("resolve", c.hc, req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(&NotFoundError{Path: m.Path()})
		}
		if resp.StatusCode != http.StatusOK {
			return &resilience.StatusError{Code: resp.StatusCode, Body: bodySnippet(resp.Body)}
		}
		return decodeInto(resp, &resolved)
	}

	if err := resilience.Do(ctx, c.policy, "resolve", op); err != nil {
		// A 404 is a definitive answer, not a resolver failure.
		if errors.Is(err, ErrNotFound) {
			observability.ResolutionsTotal.WithLabelValues(outcomeNotFound).Inc()
			return nil, err
		}
		c.breaker.RecordFailure()
		observability.ResolutionsTotal.WithLabelValues(outcomeError).Inc()
		return nil, c.mapResolveError(m.Path(), err)
	}

	c.breaker.RecordSuccess()
	observability.ResolutionsTotal.WithLabelValues(outcomeSuccess).Inc()
	c.warnDeprecated(&resolved)
	c.cache.put(m.URI(), &resolved)
	return &resolved, nil
}

// mapResolveError folds retry-engine and transport errors into the client's
// error taxonomy.
func (c *Client) mapResolveError(path string, err error) error {
	var ex *resilience.ExhaustedError
	if errors.As(err, &ex) {
		return &RetriesExhaustedError{Attempts: ex.Attempts, Last: c.mapResolveError(path, ex.Last)}
	}
	var se *resilience.StatusError
	if errors.As(err, &se) {
		return &ResolutionError{Path: path, Status: se.Code, Body: se.Body}
	}
	switch {
	case resilience.IsTimeout(err):
		return fmt.Errorf("op=resolve path=%s: %w: %v", path, ErrTimeout, err)
	case resilience.IsConnection(err):
		return fmt.Errorf("op=resolve url=%s: %w: %v", c.cfg.ServiceURL, ErrConnectionRefused, err)
	}
	return err
}

func (c *Client) warnDeprecated(rs *ResolvedSource) {
	if !c.cfg.DeprecationEnabled || !c.cfg.WarnOnDeprecated || !rs.IsDeprecated() {
		return
	}
	msg := fmt.Sprintf("Moniker '%s' is deprecated.", rs.Path)
	if rs.DeprecationMessage != "" {
		msg += " " + rs.DeprecationMessage
	}
	if rs.Successor != "" {
		msg += " Successor: " + rs.Successor
	}
	slog.Warn(msg,
		slog.String("path", rs.Path),
		slog.String("successor", rs.Successor),
		slog.String("sunset_deadline", rs.SunsetDeadline))
	observability.DeprecationWarningsTotal.Inc()
	if cb := c.cfg.DeprecationCallback; cb != nil {
		cb(rs.Path, rs.DeprecationMessage, rs.Successor)
	}
}

// BatchResolve resolves many monikers in one resolver call, consulting the
// cache per path first. The result maps normalized path to binding; paths
// the resolver does not know are absent from the map.
func (c *Client) BatchResolve(ctx context.Context, paths []string) (map[string]*ResolvedSource, error) {
	results := make(map[string]*ResolvedSource, len(paths))
	var uncached []Moniker
	for _, p := range paths {
		m := New(p)
		if rs, ok := c.cache.get(m.URI()); ok {
			observability.CacheHitsTotal.Inc()
			results[m.Path()] = rs
			continue
		}
		observability.CacheMissesTotal.Inc()
		uncached = append(uncached, m)
	}
	if len(uncached) == 0 {
		return results, nil
	}

	if err := c.breaker.Allow(); err != nil {
		var oe *resilience.OpenError
		if errors.As(err, &oe) {
			return nil, &BreakerOpenError{Remaining: oe.Remaining}
		}
		return nil, err
	}

	uris := make([]string, len(uncached))
	for i, m := range uncached {
		uris[i] = m.URI()
	}
	var payload struct {
		Results []*ResolvedSource `json:"results"`
	}
	op := func() error {
		req, err := c.newRequest(ctx, http.MethodPost, "/resolve/batch", nil,
			map[string]any{"monikers": uris})
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.do("resolve_batch", c.hc, req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return &resilience.StatusError{Code: resp.StatusCode, Body: bodySnippet(resp.Body)}
		}
		payload.Results = payload.Results[:0]
		return decodeInto(resp, &payload)
	}
	if err := resilience.Do(ctx, c.policy, "resolve_batch", op); err != nil {
		c.breaker.RecordFailure()
		observability.ResolutionsTotal.WithLabelValues(outcomeError).Inc()
		return nil, c.mapResolveError("batch", err)
	}
	c.breaker.RecordSuccess()

	for _, rs := range payload.Results {
		if rs == nil {
			continue
		}
		observability.ResolutionsTotal.WithLabelValues(outcomeSuccess).Inc()
		c.warnDeprecated(rs)
		c.cache.put(Scheme+rs.Path, rs)
		results[rs.Path] = rs
	}
	return results, nil
}

// ReadOption adjusts a single read's adapter fetch.
type ReadOption func(*FetchOptions)

// WithParam adds one request-time adapter parameter.
func WithParam(key string, value any) ReadOption {
	return func(o *FetchOptions) {
		if o.Params == nil {
			o.Params = map[string]any{}
		}
		o.Params[key] = value
	}
}

// WithParams merges request-time adapter parameters.
func WithParams(params map[string]any) ReadOption {
	return func(o *FetchOptions) {
		if o.Params == nil {
			o.Params = make(map[string]any, len(params))
		}
		for k, v := range params {
			o.Params[k] = v
		}
	}
}

// Read resolves path and fetches its data directly from the underlying
// source through the registered adapter.
func (c *Client) Read(ctx context.Context, path string, opts ...ReadOption) (any, error) {
	res, err := c.ReadResult(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// ReadResult is Read returning the full adapter result with execution
// metadata. Access telemetry is reported in the background regardless of
// outcome.
func (c *Client) ReadResult(ctx context.Context, path string, opts ...ReadOption) (*AdapterResult, error) {
	m := New(path)
	ctx, span := c.tracer.Start(ctx, "Client.Read")
	span.SetAttributes(attribute.String("moniker.path", m.URI()))

	start := time.Now()
	ev := accessEvent{Moniker: m.URI(), Outcome: outcomeSuccess}
	defer func() {
		ev.LatencyMS = float64(time.Since(start)) / float64(time.Millisecond)
		if ev.Outcome == outcomeSuccess {
			span.SetStatus(codes.Ok, ev.Outcome)
		} else {
			span.SetStatus(codes.Error, ev.Outcome)
		}
		span.End()
		c.reportAccess(ev)
	}()

	resolved, err := c.Resolve(ctx, path)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrNotFound) {
			ev.Outcome = outcomeNotFound
		} else {
			ev.Outcome = outcomeError
			ev.ErrorMessage = err.Error()
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("moniker.source_type", resolved.SourceType))
	ev.SourceType = resolved.SourceType
	ev.Deprecated = resolved.IsDeprecated()
	ev.Successor = resolved.Successor

	adapter, err := AdapterFor(resolved.SourceType)
	if err != nil {
		span.RecordError(err)
		ev.Outcome = outcomeError
		ev.ErrorMessage = err.Error()
		return nil, &FetchError{Moniker: m.URI(), Cause: err}
	}

	var fo FetchOptions
	for _, opt := range opts {
		opt(&fo)
	}

	fetchStart := time.Now()
	result, err := adapter.Fetch(ctx, resolved, &c.cfg, fo)
	observability.AdapterFetchDuration.WithLabelValues(resolved.SourceType).
		Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		span.RecordError(err)
		observability.AdapterFetchesTotal.WithLabelValues(resolved.SourceType, outcomeError).Inc()
		ev.Outcome = outcomeError
		ev.ErrorMessage = err.Error()
		return nil, &FetchError{Moniker: m.URI(), Cause: err}
	}
	observability.AdapterFetchesTotal.WithLabelValues(resolved.SourceType, outcomeSuccess).Inc()

	if result == nil {
		result = &AdapterResult{SourceType: resolved.SourceType}
	}
	if result.RowCount == 0 {
		result.RowCount = CountRows(result.Data)
	}
	rows := result.RowCount
	ev.RowCount = &rows
	return result, nil
}

// BatchItem is the per-moniker outcome of a BatchRead: Data on success or
// Err on failure, never both.
type BatchItem struct {
	Data any
	Err  error
}

// BatchRead resolves all paths in one batch call, then fetches each binding
// through its adapter. Per-item failures are recorded in the result, not
// raised; the returned error covers only the batch resolution itself.
func (c *Client) BatchRead(ctx context.Context, paths []string, opts ...ReadOption) (map[string]BatchItem, error) {
	resolvedMap, err := c.BatchResolve(ctx, paths)
	if err != nil {
		return nil, err
	}
	var fo FetchOptions
	for _, opt := range opts {
		opt(&fo)
	}
	results := make(map[string]BatchItem, len(resolvedMap))
	for path, resolved := range resolvedMap {
		adapter, err := AdapterFor(resolved.SourceType)
		if err != nil {
			results[path] = BatchItem{Err: err}
			continue
		}
		res, err := adapter.Fetch(ctx, resolved, &c.cfg, fo)
		if err != nil {
			observability.AdapterFetchesTotal.WithLabelValues(resolved.SourceType, outcomeError).Inc()
			results[path] = BatchItem{Err: &FetchError{Moniker: Scheme + path, Cause: err}}
			continue
		}
		observability.AdapterFetchesTotal.WithLabelValues(resolved.SourceType, outcomeSuccess).Inc()
		if res == nil {
			res = &AdapterResult{}
		}
		results[path] = BatchItem{Data: res.Data}
	}
	return results, nil
}

// FetchOption adds query parameters to a server-side fetch.
type FetchOption func(url.Values)

// WithLimit caps the number of rows returned by a server-side fetch.
func WithLimit(n int) FetchOption {
	return func(q url.Values) { q.Set("limit", strconv.Itoa(n)) }
}

// WithFetchParam adds one query parameter to a server-side fetch.
func WithFetchParam(key, value string) FetchOption {
	return func(q url.Values) { q.Set(key, value) }
}

// Fetch executes the bound query server-side and returns the structured
// result. Use it when the process has no direct source access or when
// server-side execution metadata matters.
func (c *Client) Fetch(ctx context.Context, path string, opts ...FetchOption) (*FetchResult, error) {
	m := New(path)
	ctx, span := c.tracer.Start(ctx, "Client.Fetch")
	span.SetAttributes(attribute.String("moniker.path", m.URI()))
	defer span.End()

	q := url.Values{}
	for _, opt := range opts {
		opt(q)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/fetch/"+escapePath(m.Path()), q, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do("fetch", c.hc, req)
	if err != nil {
		span.RecordError(err)
		return nil, c.mapTransportError("fetch", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, &NotFoundError{Path: m.Path()}
	case http.StatusForbidden:
		var denied struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&denied)
		return nil, &AccessDeniedError{Path: m.Path(), Detail: denied.Detail}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ResolutionError{Path: m.Path(), Status: resp.StatusCode, Body: bodySnippet(resp.Body)}
	}
	var out FetchResult
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Describe returns the resolver's descriptive document for a path.
func (c *Client) Describe(ctx context.Context, path string) (map[string]any, error) {
	m := New(path)
	var out map[string]any
	err := c.getJSON(ctx, "describe", "/describe/"+escapePath(m.Path()), m.Path(), nil, true, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Metadata returns the catalog's rich metadata record for a path.
func (c *Client) Metadata(ctx context.Context, path string) (*MetadataResult, error) {
	m := New(path)
	var out MetadataResult
	err := c.getJSON(ctx, "metadata", "/metadata/"+escapePath(m.Path()), m.Path(), nil, true, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Sample returns up to limit preview rows for a path; limit defaults to 5.
func (c *Client) Sample(ctx context.Context, path string, limit int) (*SampleResult, error) {
	if limit <= 0 {
		limit = 5
	}
	m := New(path)
	q := url.Values{"limit": []string{strconv.Itoa(limit)}}
	var out SampleResult
	err := c.getJSON(ctx, "sample", "/sample/"+escapePath(m.Path()), m.Path(), q, true, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Lineage returns the ownership lineage document for a path.
func (c *Client) Lineage(ctx context.Context, path string) (map[string]any, error) {
	m := New(path)
	var out map[string]any
	err := c.getJSON(ctx, "lineage", "/lineage/"+escapePath(m.Path()), m.Path(), nil, true, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListChildren names the catalog entries one level below a path; an empty
// path lists the roots.
func (c *Client) ListChildren(ctx context.Context, path string) ([]string, error) {
	m := New(path)
	endpoint := "/list"
	if !m.IsRoot() {
		endpoint = "/list/" + escapePath(m.Path())
	}
	var payload struct {
		Children []string `json:"children"`
	}
	err := c.getJSON(ctx, "list", endpoint, m.Path(), nil, false, &payload)
	if err != nil {
		return nil, err
	}
	return payload.Children, nil
}

// Tree returns the namespace hierarchy rooted at path; depth <= 0 means
// unlimited.
func (c *Client) Tree(ctx context.Context, path string, depth int) (*TreeNode, error) {
	m := New(path)
	endpoint := "/tree"
	if !m.IsRoot() {
		endpoint += "/" + escapePath(m.Path())
	}
	var q url.Values
	if depth > 0 {
		q = url.Values{"depth": []string{strconv.Itoa(depth)}}
	}
	var root TreeNode
	if err := c.getJSON(ctx, "tree", endpoint, m.Path(), q, false, &root); err != nil {
		return nil, err
	}
	return &root, nil
}

// Search queries the catalog. status filters by lifecycle state when
// non-empty; limit defaults to 50.
func (c *Client) Search(ctx context.Context, query, status string, limit int) (*SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{"q": []string{query}, "limit": []string{strconv.Itoa(limit)}}
	if status != "" {
		q.Set("status", status)
	}
	var payload struct {
		TotalResults *int             `json:"total_results"`
		Results      []map[string]any `json:"results"`
	}
	if err := c.getJSON(ctx, "search", "/catalog/search", "", q, false, &payload); err != nil {
		return nil, err
	}
	total := len(payload.Results)
	if payload.TotalResults != nil {
		total = *payload.TotalResults
	}
	return &SearchResult{Query: query, TotalResults: total, Results: payload.Results}, nil
}

// CatalogStats returns aggregate counts and coverage metrics for the
// catalog.
func (c *Client) CatalogStats(ctx context.Context) (*CatalogStats, error) {
	var out CatalogStats
	if err := c.getJSON(ctx, "stats", "/catalog/stats", "", nil, false, &out); err != nil {
		return nil, err
	}
	if out.ByStatus == nil {
		out.ByStatus = map[string]int{}
	}
	if out.BySourceType == nil {
		out.BySourceType = map[string]int{}
	}
	if out.ByClassification == nil {
		out.ByClassification = map[string]int{}
	}
	return &out, nil
}

// Schema derives the column-level schema for a path from catalog metadata.
func (c *Client) Schema(ctx context.Context, path string) (*SchemaInfo, error) {
	meta, err := c.Metadata(ctx, path)
	if err != nil {
		return nil, err
	}
	info := &SchemaInfo{
		Moniker:      meta.Moniker,
		Path:         meta.Path,
		Description:  meta.Description,
		SemanticTags: meta.SemanticTags,
	}
	if cols, ok := meta.Schema["columns"].([]any); ok {
		for _, col := range cols {
			if cm, ok := col.(map[string]any); ok {
				info.Columns = append(info.Columns, cm)
			}
		}
	}
	if pk, ok := meta.Schema["primary_key"].([]any); ok {
		for _, k := range pk {
			if s, ok := k.(string); ok {
				info.PrimaryKey = append(info.PrimaryKey, s)
			}
		}
	}
	if g, ok := meta.Schema["granularity"].(string); ok {
		info.Granularity = g
	}
	if rel, ok := meta.Relationships["related"].([]any); ok {
		for _, r := range rel {
			if rm, ok := r.(map[string]any); ok {
				if mk, ok := rm["moniker"].(string); ok && mk != "" {
					info.RelatedMonikers = append(info.RelatedMonikers, mk)
				}
			}
		}
	}
	return info, nil
}

// Health resolves path and probes connectivity to its underlying source
// through the registered adapter.
func (c *Client) Health(ctx context.Context, path string) (HealthStatus, error) {
	resolved, err := c.Resolve(ctx, path)
	if err != nil {
		return HealthStatus{Healthy: false, Message: err.Error()}, err
	}
	adapter, err := AdapterFor(resolved.SourceType)
	if err != nil {
		return HealthStatus{Healthy: false, Message: err.Error()}, err
	}
	return adapter.HealthCheck(ctx, resolved, &c.cfg), nil
}
