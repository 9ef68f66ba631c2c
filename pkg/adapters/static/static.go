// Package static serves moniker data embedded in the binding itself. It
// backs examples and tests with an in-process source that needs no external
// system.
package static

import (
	"context"
	"reflect"
	"sort"
	"time"

	"github.com/moniker-data/moniker-go/internal/sqlrewrite"
	"github.com/moniker-data/moniker-go/pkg/moniker"
)

// SourceType is the registry tag this adapter serves.
const SourceType = "static"

func init() {
	moniker.RegisterAdapter(SourceType, New())
}

// Adapter serves rows from the binding's connection record.
type Adapter struct{}

// New returns a static adapter.
func New() *Adapter {
	return &Adapter{}
}

// Rows extracts the embedded dataset from a connection record: the data
// field wins, then rows. Non-map elements are dropped.
func Rows(conn map[string]any) []map[string]any {
	raw, ok := conn["data"]
	if !ok {
		raw = conn["rows"]
	}
	switch v := raw.(type) {
	case []map[string]any:
		return v
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, m)
			}
		}
		return rows
	default:
		return []map[string]any{}
	}
}

// Fetch filters and pages the embedded rows. Request parameters become
// equality filters against row keys; limit and offset page the result.
func (a *Adapter) Fetch(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig, opts moniker.FetchOptions) (*moniker.AdapterResult, error) {
	start := time.Now()
	params := opts.EffectiveParams(binding)

	rows := Rows(binding.Connection)
	for _, f := range sqlrewrite.ExtractFilters(params) {
		rows = filterRows(rows, f)
	}
	if off := intParam(params, "offset"); off > 0 {
		if off >= len(rows) {
			rows = []map[string]any{}
		} else {
			rows = rows[off:]
		}
	}
	if n, ok := sqlrewrite.Limit(params); ok && n < len(rows) {
		rows = rows[:n]
	}

	var columns []string
	if len(rows) > 0 {
		columns = make([]string, 0, len(rows[0]))
		for col := range rows[0] {
			columns = append(columns, col)
		}
		sort.Strings(columns)
	}

	return &moniker.AdapterResult{
		Data:            rows,
		RowCount:        len(rows),
		Columns:         columns,
		ExecutionTimeMS: float64(time.Since(start)) / float64(time.Millisecond),
		SourceType:      SourceType,
	}, nil
}

func filterRows(rows []map[string]any, f sqlrewrite.Filter) []map[string]any {
	out := rows[:0:0]
	for _, row := range rows {
		got, ok := row[f.Column]
		if !ok {
			continue
		}
		if matches(got, f.Value) {
			out = append(out, row)
		}
	}
	return out
}

// matches reports value equality; a slice filter matches any of its
// elements. Numbers compare across int and float encodings.
func matches(got, want any) bool {
	switch wv := want.(type) {
	case []any:
		for _, item := range wv {
			if valueEqual(got, item) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range wv {
			if valueEqual(got, item) {
				return true
			}
		}
		return false
	default:
		return valueEqual(got, want)
	}
}

func valueEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func intParam(params map[string]any, key string) int {
	switch n := params[key].(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// ListChildren reads child names from the connection's children field.
func (a *Adapter) ListChildren(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) ([]string, error) {
	switch v := binding.Connection["children"].(type) {
	case []string:
		return v, nil
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return names, nil
	default:
		return []string{}, nil
	}
}

// HealthCheck always reports healthy; the embedded row count rides along in
// the details.
func (a *Adapter) HealthCheck(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) moniker.HealthStatus {
	return moniker.HealthStatus{
		Healthy: true,
		Details: map[string]any{"rows": len(Rows(binding.Connection))},
	}
}
