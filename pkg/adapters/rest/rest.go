// Package rest reads HTTP-bound monikers by calling the bound endpoint
// directly. The binding's query string is a URL reference resolved against
// the connection's base_url; request parameters control method, query
// values, auth, response extraction, and validation.
package rest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/moniker-data/moniker-go/internal/resilience"
	"github.com/moniker-data/moniker-go/pkg/moniker"
)

// SourceType is the registry tag this adapter serves.
const SourceType = "rest"

// healthProbeCap bounds health probes regardless of the configured request
// timeout.
const healthProbeCap = 10 * time.Second

func init() {
	moniker.RegisterAdapter(SourceType, New())
}

// Adapter calls HTTP sources directly. The shared client carries no timeout;
// each attempt gets its own context deadline.
type Adapter struct {
	hc *http.Client
}

// New returns a REST adapter with a traced HTTP transport.
func New() *Adapter {
	return &Adapter{
		hc: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// joinURL resolves ref against base the way RFC 3986 prescribes.
func joinURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("rest base_url %q: %w: %v", base, moniker.ErrConfiguration, err)
	}
	if ref == "" {
		return b.String(), nil
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("rest query %q is not a URL reference: %w: %v", ref, moniker.ErrConfiguration, err)
	}
	return b.ResolveReference(r).String(), nil
}

// buildHeaders copies the connection record's static headers.
func buildHeaders(conn map[string]any) http.Header {
	h := http.Header{}
	switch raw := conn["headers"].(type) {
	case map[string]any:
		for k, v := range raw {
			if s, ok := v.(string); ok {
				h.Set(k, s)
			}
		}
	case map[string]string:
		for k, v := range raw {
			h.Set(k, v)
		}
	}
	return h
}

// applyAuth attaches source authentication per the connection's auth_type.
// Request parameters beat configured credentials.
func applyAuth(h http.Header, conn map[string]any, params map[string]any, cfg *moniker.ClientConfig) {
	authType, _ := conn["auth_type"].(string)
	switch authType {
	case "bearer":
		token, _ := params["bearer_token"].(string)
		if token == "" {
			token = cfg.Credential(SourceType, "bearer_token")
		}
		if token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
	case "api_key":
		key, _ := params["api_key"].(string)
		if key == "" {
			key = cfg.Credential(SourceType, "api_key")
		}
		header, _ := conn["api_key_header"].(string)
		if header == "" {
			header = "X-API-Key"
		}
		if key != "" {
			h.Set(header, key)
		}
	case "basic":
		username, _ := params["username"].(string)
		if username == "" {
			username = cfg.Credential(SourceType, "username")
		}
		password, _ := params["password"].(string)
		if password == "" {
			password = cfg.Credential(SourceType, "password")
		}
		creds := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		h.Set("Authorization", "Basic "+creds)
	}
}

// queryValues merges moniker_params (legacy) with query_params (preferred,
// wins on conflict) into URL query values.
func queryValues(params map[string]any) url.Values {
	q := url.Values{}
	for _, key := range []string{"moniker_params", "query_params"} {
		m, ok := params[key].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range m {
			if v == nil {
				continue
			}
			q.Set(k, queryValue(v))
		}
	}
	return q
}

func queryValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Fetch calls the bound endpoint with retry for transient failures, then
// applies response_path extraction and response_schema validation.
func (a *Adapter) Fetch(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig, opts moniker.FetchOptions) (*moniker.AdapterResult, error) {
	start := time.Now()
	params := opts.EffectiveParams(binding)

	baseURL, _ := binding.Connection["base_url"].(string)
	if baseURL == "" {
		return nil, fmt.Errorf("base_url required for rest source %s: %w", binding.Path, moniker.ErrConfiguration)
	}
	target, err := joinURL(baseURL, binding.Query)
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	if m, ok := params["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	headers := buildHeaders(binding.Connection)
	applyAuth(headers, binding.Connection, params, cfg)

	data, err := a.requestWithRetry(ctx, method, target, headers, queryValues(params), cfg)
	if err != nil {
		return nil, err
	}

	if path, ok := params["response_path"].(string); ok && path != "" {
		data = extractPath(data, path)
	}
	if schema, ok := params["response_schema"].(map[string]any); ok {
		if err := validateResponse(data, schema); err != nil {
			return nil, err
		}
	}

	rowCount := 1
	if list, ok := data.([]any); ok {
		rowCount = len(list)
	}
	return &moniker.AdapterResult{
		Data:            data,
		RowCount:        rowCount,
		ExecutionTimeMS: float64(time.Since(start)) / float64(time.Millisecond),
		SourceType:      SourceType,
	}, nil
}

// requestWithRetry performs the call with the adapter-local retry policy:
// configured status codes plus timeout and connection errors retry with
// exponential backoff; 404 is terminal; other statuses fail immediately.
func (a *Adapter) requestWithRetry(ctx context.Context, method, target string, headers http.Header, q url.Values, cfg *moniker.ClientConfig) (any, error) {
	attempts := cfg.RetryMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := make(map[int]struct{}, len(cfg.RetryStatusCodes))
	for _, code := range cfg.RetryStatusCodes {
		retryable[code] = struct{}{}
	}

	for attempt := 0; ; attempt++ {
		status, data, err := a.once(ctx, method, target, headers, q, cfg.RequestTimeout())
		switch {
		case err == nil:
			if _, retry := retryable[status]; retry && attempt < attempts-1 {
				if err := sleepBackoff(ctx, cfg.RetryBackoffFactor, attempt); err != nil {
					return nil, err
				}
				continue
			}
			if status == http.StatusNotFound {
				return nil, fmt.Errorf("resource not found: %s: %w", target, moniker.ErrNotFound)
			}
			if status >= 400 {
				return nil, fmt.Errorf("rest request to %s failed: status %d", target, status)
			}
			return data, nil

		case resilience.IsTimeout(err):
			if attempt < attempts-1 {
				if err := sleepBackoff(ctx, cfg.RetryBackoffFactor, attempt); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("rest request to %s timed out after %d attempts: %w: %v",
				target, attempts, moniker.ErrTimeout, err)

		case resilience.IsConnection(err):
			if attempt < attempts-1 {
				if err := sleepBackoff(ctx, cfg.RetryBackoffFactor, attempt); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("rest connection to %s failed after %d attempts: %w: %v",
				target, attempts, moniker.ErrConnectionRefused, err)

		default:
			return nil, err
		}
	}
}

// once performs a single attempt under its own deadline and decodes the body.
func (a *Adapter) once(ctx context.Context, method, target string, headers http.Header, q url.Values, timeout time.Duration) (int, any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("rest request: %w", err)
	}
	for k, vs := range headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	if len(q) > 0 {
		merged := req.URL.Query()
		for k, vs := range q {
			for _, v := range vs {
				merged.Set(k, v)
			}
		}
		req.URL.RawQuery = merged.Encode()
	}

	resp, err := a.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, decodeBody(resp.Header.Get("Content-Type"), body), nil
}

// decodeBody parses JSON payloads; anything else comes back as raw text.
func decodeBody(contentType string, body []byte) any {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") || json.Valid(body) {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			return v
		}
	}
	return string(body)
}

func sleepBackoff(ctx context.Context, factor float64, attempt int) error {
	d := time.Duration(factor * math.Pow(2, float64(attempt)) * float64(time.Second))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// extractPath descends into decoded JSON by dot notation. Numeric segments
// index into arrays; a missing segment yields nil.
func extractPath(data any, path string) any {
	for _, key := range strings.Split(path, ".") {
		switch v := data.(type) {
		case map[string]any:
			data = v[key]
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil
			}
			data = v[idx]
		default:
			return nil
		}
	}
	return data
}

// validateResponse checks decoded data against an inline JSON schema.
func validateResponse(data any, schema map[string]any) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return &moniker.ValidationError{Detail: "invalid response_schema: " + err.Error()}
	}
	compiled, err := jsonschema.CompileString("response_schema.json", string(raw))
	if err != nil {
		return &moniker.ValidationError{Detail: "invalid response_schema: " + err.Error()}
	}
	if err := compiled.Validate(data); err != nil {
		return &moniker.ValidationError{Detail: err.Error()}
	}
	return nil
}

// ListChildren calls the connection's children_endpoint and normalizes the
// response into child names. Missing endpoint or any failure yields an empty
// list.
func (a *Adapter) ListChildren(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) ([]string, error) {
	conn := binding.Connection
	endpoint, _ := conn["children_endpoint"].(string)
	baseURL, _ := conn["base_url"].(string)
	if endpoint == "" || baseURL == "" {
		return []string{}, nil
	}
	target, err := joinURL(baseURL, endpoint)
	if err != nil {
		return []string{}, nil
	}

	params := moniker.FetchOptions{}.EffectiveParams(binding)
	headers := buildHeaders(conn)
	applyAuth(headers, conn, params, cfg)

	status, data, err := a.once(ctx, http.MethodGet, target, headers, nil, cfg.RequestTimeout())
	if err != nil || status >= 400 {
		return []string{}, nil
	}

	switch v := data.(type) {
	case []any:
		return childNames(v), nil
	case map[string]any:
		for _, key := range []string{"children", "items", "results", "data"} {
			if list, ok := v[key].([]any); ok {
				return childNames(list), nil
			}
		}
	}
	return []string{}, nil
}

// childNames extracts names from a list of strings or objects keyed by
// name, id, or path in that precedence.
func childNames(items []any) []string {
	names := []string{}
	for _, item := range items {
		switch v := item.(type) {
		case string:
			names = append(names, v)
		case map[string]any:
			for _, key := range []string{"name", "id", "path"} {
				if name, ok := v[key]; ok && name != nil {
					names = append(names, queryValue(name))
					break
				}
			}
		}
	}
	return names
}

// HealthCheck probes the connection's health_endpoint (base_url when unset).
// A status under 400 is healthy. The probe is capped at ten seconds.
func (a *Adapter) HealthCheck(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) moniker.HealthStatus {
	conn := binding.Connection
	baseURL, _ := conn["base_url"].(string)
	if baseURL == "" {
		return moniker.HealthStatus{Healthy: false, Message: "base_url not configured"}
	}
	endpoint, _ := conn["health_endpoint"].(string)
	target, err := joinURL(baseURL, endpoint)
	if err != nil {
		return moniker.HealthStatus{Healthy: false, Message: err.Error()}
	}

	params := moniker.FetchOptions{}.EffectiveParams(binding)
	headers := buildHeaders(conn)
	applyAuth(headers, conn, params, cfg)

	timeout := cfg.RequestTimeout()
	if timeout <= 0 || timeout > healthProbeCap {
		timeout = healthProbeCap
	}

	start := time.Now()
	latency := func() float64 { return float64(time.Since(start)) / float64(time.Millisecond) }

	status, _, err := a.once(ctx, http.MethodGet, target, headers, nil, timeout)
	switch {
	case resilience.IsTimeout(err):
		return moniker.HealthStatus{Healthy: false, Message: "health check timed out", LatencyMS: latency()}
	case resilience.IsConnection(err):
		return moniker.HealthStatus{Healthy: false, Message: "connection failed: " + err.Error(), LatencyMS: latency()}
	case err != nil:
		return moniker.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency()}
	case status >= 400:
		return moniker.HealthStatus{
			Healthy:   false,
			Message:   fmt.Sprintf("unhealthy (status %d)", status),
			LatencyMS: latency(),
			Details:   map[string]any{"url": target},
		}
	default:
		return moniker.HealthStatus{
			Healthy:   true,
			LatencyMS: latency(),
			Details:   map[string]any{"url": target, "status": status},
		}
	}
}
