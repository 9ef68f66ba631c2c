package moniker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/moniker-data/moniker-go/internal/observability"
	"github.com/moniker-data/moniker-go/internal/resilience"
	"github.com/moniker-data/moniker-go/pkg/textx"
)

// telemetryTimeout bounds telemetry posts independently of the request
// timeout so a slow telemetry sink cannot stall shutdown.
const telemetryTimeout = 5 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// escapePath escapes each segment of a moniker path while preserving the
// separators, so the path can be appended to a resolver endpoint.
func escapePath(p string) string {
	if p == "" {
		return ""
	}
	segs := strings.Split(p, pathSep)
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, pathSep)
}

// newRequest builds a resolver request with identity, tracing, and auth
// headers attached. endpoint must start with "/".
func (c *Client) newRequest(ctx context.Context, method, endpoint string, q url.Values, body any) (*http.Request, error) {
	u := strings.TrimRight(c.cfg.ServiceURL, "/") + endpoint
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("op=transport.newRequest: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("op=transport.newRequest: %w", err)
	}
	if len(q) > 0 {
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.AppID != "" {
		req.Header.Set("X-App-ID", c.cfg.AppID)
	}
	if c.cfg.Team != "" {
		req.Header.Set("X-Team", c.cfg.Team)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if err := c.auth.Apply(req); err != nil {
		return nil, fmt.Errorf("op=transport.newRequest: %w", err)
	}
	return req, nil
}

// do sends the request, recording the per-endpoint duration. Transport
// errors return unclassified so retry classification sees the raw error.
func (c *Client) do(op string, hc *http.Client, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	observability.ResolverRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return resp, err
}

// getJSON performs a single resolver GET and decodes a 2xx JSON body into
// out. A 404 maps to NotFoundError when mapNotFound is set; any other
// non-2xx becomes a ResolutionError for path.
func (c *Client) getJSON(ctx context.Context, op, endpoint, path string, q url.Values, mapNotFound bool, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, q, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(op, c.hc, req)
	if err != nil {
		return c.mapTransportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound && mapNotFound {
		return &NotFoundError{Path: path}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ResolutionError{Path: path, Status: resp.StatusCode, Body: bodySnippet(resp.Body)}
	}
	return decodeInto(resp, out)
}

func decodeInto(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode resolver response: %w", err)
	}
	return nil
}

// bodySnippet reads a bounded prefix of an error body for diagnostics,
// stripped of control characters.
func bodySnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return textx.SanitizeText(string(b))
}

// mapTransportError folds raw transport failures into the client's error
// taxonomy.
func (c *Client) mapTransportError(op string, err error) error {
	switch {
	case resilience.IsTimeout(err):
		return fmt.Errorf("op=%s url=%s: %w: %v", op, c.cfg.ServiceURL, ErrTimeout, err)
	case resilience.IsConnection(err):
		return fmt.Errorf("op=%s url=%s: %w: %v", op, c.cfg.ServiceURL, ErrConnectionRefused, err)
	default:
		return fmt.Errorf("op=%s: %w", op, err)
	}
}
