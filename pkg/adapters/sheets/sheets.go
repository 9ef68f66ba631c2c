// Package sheets reads spreadsheet-bound monikers from an HTTP sheet store.
// Values come back as JSON, CSV, or TSV; tabular bodies are keyed by their
// header row.
package sheets

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/moniker-data/moniker-go/internal/resilience"
	"github.com/moniker-data/moniker-go/internal/sqlrewrite"
	"github.com/moniker-data/moniker-go/pkg/moniker"
)

// SourceType is the registry tag this adapter serves.
const SourceType = "sheets"

func init() {
	moniker.RegisterAdapter(SourceType, New())
}

// Adapter reads sheet values over HTTP.
type Adapter struct {
	hc *http.Client
}

// New returns a sheets adapter with a traced HTTP transport.
func New() *Adapter {
	return &Adapter{
		hc: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// valuesURL builds the sheet-values endpoint. A bound query is resolved
// against base_url directly; otherwise the URL is assembled from the
// connection's workbook and sheet.
func valuesURL(conn map[string]any, query string, params map[string]any) (string, error) {
	base, _ := conn["base_url"].(string)
	if base == "" {
		return "", fmt.Errorf("base_url required for sheets source: %w", moniker.ErrConfiguration)
	}
	if query != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("sheets base_url %q: %w: %v", base, moniker.ErrConfiguration, err)
		}
		r, err := url.Parse(query)
		if err != nil {
			return "", fmt.Errorf("sheets query %q: %w: %v", query, moniker.ErrConfiguration, err)
		}
		return b.ResolveReference(r).String(), nil
	}

	workbook, _ := conn["workbook"].(string)
	if workbook == "" {
		return "", fmt.Errorf("workbook required for sheets source: %w", moniker.ErrConfiguration)
	}
	sheet, _ := params["sheet"].(string)
	if sheet == "" {
		sheet, _ = conn["sheet"].(string)
	}
	if sheet == "" {
		sheet = "Sheet1"
	}
	return fmt.Sprintf("%s/workbooks/%s/sheets/%s/values",
		strings.TrimRight(base, "/"), url.PathEscape(workbook), url.PathEscape(sheet)), nil
}

// Fetch downloads the sheet values, parses them into rows, and applies the
// client-side limit.
func (a *Adapter) Fetch(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig, opts moniker.FetchOptions) (*moniker.AdapterResult, error) {
	start := time.Now()
	params := opts.EffectiveParams(binding)

	target, err := valuesURL(binding.Connection, binding.Query, params)
	if err != nil {
		return nil, err
	}
	contentType, body, err := a.get(ctx, target, cfg.RequestTimeout())
	if err != nil {
		return nil, err
	}

	rows, columns, err := parseTable(contentType, body)
	if err != nil {
		return nil, err
	}
	if n, ok := sqlrewrite.Limit(params); ok && n < len(rows) {
		rows = rows[:n]
	}

	return &moniker.AdapterResult{
		Data:            rows,
		RowCount:        len(rows),
		Columns:         columns,
		ExecutionTimeMS: float64(time.Since(start)) / float64(time.Millisecond),
		SourceType:      SourceType,
	}, nil
}

// get performs one GET under its own deadline, mapping transport and status
// failures onto the client error taxonomy.
func (a *Adapter) get(ctx context.Context, target string, timeout time.Duration) (string, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, fmt.Errorf("sheets request: %w", err)
	}
	resp, err := a.hc.Do(req)
	switch {
	case resilience.IsTimeout(err):
		return "", nil, fmt.Errorf("sheets request to %s: %w: %v", target, moniker.ErrTimeout, err)
	case resilience.IsConnection(err):
		return "", nil, fmt.Errorf("sheets request to %s: %w: %v", target, moniker.ErrConnectionRefused, err)
	case err != nil:
		return "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil, fmt.Errorf("sheet not found: %s: %w", target, moniker.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("sheets request to %s failed: status %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, err
	}
	return resp.Header.Get("Content-Type"), body, nil
}

// parseTable turns a response body into rows. JSON bodies may be arrays of
// objects or arrays of arrays (header first); CSV and TSV bodies are keyed
// by their header row. Unknown content types fall back to sniffing.
func parseTable(contentType string, body []byte) ([]map[string]any, []string, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		return parseJSON(body)
	case strings.Contains(ct, "tab-separated"):
		return parseDelimited(body, '\t')
	case strings.Contains(ct, "csv"):
		return parseDelimited(body, ',')
	}

	switch mt := mimetype.Detect(body); {
	case mt.Is("application/json"):
		return parseJSON(body)
	case mt.Is("text/tab-separated-values"):
		return parseDelimited(body, '\t')
	case mt.Is("text/csv"):
		return parseDelimited(body, ',')
	default:
		return nil, nil, fmt.Errorf("unsupported sheet content type %q (detected %s)", contentType, mt.String())
	}
}

func parseJSON(body []byte) ([]map[string]any, []string, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, nil, fmt.Errorf("sheets response is not valid JSON: %w", err)
	}
	list, ok := decoded.([]any)
	if !ok {
		// Some stores wrap the grid in a values field.
		if m, isMap := decoded.(map[string]any); isMap {
			list, ok = m["values"].([]any)
		}
		if !ok {
			return nil, nil, fmt.Errorf("sheets response is not a row list")
		}
	}
	if len(list) == 0 {
		return []map[string]any{}, nil, nil
	}

	// Array of arrays: first row is the header.
	if _, grid := list[0].([]any); grid {
		header, _ := list[0].([]any)
		columns := make([]string, len(header))
		for i, h := range header {
			columns[i] = fmt.Sprintf("%v", h)
		}
		rows := make([]map[string]any, 0, len(list)-1)
		for _, raw := range list[1:] {
			cells, ok := raw.([]any)
			if !ok {
				continue
			}
			row := make(map[string]any, len(columns))
			for i, col := range columns {
				if i < len(cells) {
					row[col] = cells[i]
				}
			}
			rows = append(rows, row)
		}
		return rows, columns, nil
	}

	// Array of objects.
	rows := make([]map[string]any, 0, len(list))
	for _, raw := range list {
		if m, ok := raw.(map[string]any); ok {
			rows = append(rows, m)
		}
	}
	var columns []string
	if len(rows) > 0 {
		for col := range rows[0] {
			columns = append(columns, col)
		}
		sort.Strings(columns)
	}
	return rows, columns, nil
}

func parseDelimited(body []byte, comma rune) ([]map[string]any, []string, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.Comma = comma
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("sheets response is not valid delimited text: %w", err)
	}
	if len(records) == 0 {
		return []map[string]any{}, nil, nil
	}
	columns := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, cells := range records[1:] {
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(cells) {
				row[col] = cells[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, columns, nil
}

// ListChildren names the sheets of the bound workbook. Probe failures yield
// an empty list.
func (a *Adapter) ListChildren(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) ([]string, error) {
	conn := binding.Connection
	base, _ := conn["base_url"].(string)
	workbook, _ := conn["workbook"].(string)
	if base == "" || workbook == "" {
		return []string{}, nil
	}
	target := fmt.Sprintf("%s/workbooks/%s/sheets", strings.TrimRight(base, "/"), url.PathEscape(workbook))

	_, body, err := a.get(ctx, target, cfg.RequestTimeout())
	if err != nil {
		return []string{}, nil
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return []string{}, nil
	}

	names := []string{}
	list, ok := decoded.([]any)
	if !ok {
		if m, isMap := decoded.(map[string]any); isMap {
			list, _ = m["sheets"].([]any)
		}
	}
	for _, item := range list {
		switch v := item.(type) {
		case string:
			names = append(names, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// HealthCheck probes the sheet store's base URL.
func (a *Adapter) HealthCheck(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) moniker.HealthStatus {
	base, _ := binding.Connection["base_url"].(string)
	if base == "" {
		return moniker.HealthStatus{Healthy: false, Message: "base_url not configured"}
	}

	start := time.Now()
	latency := func() float64 { return float64(time.Since(start)) / float64(time.Millisecond) }

	if _, _, err := a.get(ctx, base, cfg.RequestTimeout()); err != nil {
		return moniker.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency()}
	}
	return moniker.HealthStatus{Healthy: true, LatencyMS: latency(), Details: map[string]any{"url": base}}
}
