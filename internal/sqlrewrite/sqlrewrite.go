// Package sqlrewrite rewrites bound SQL text before execution: temporal
// clauses, equality/membership filters derived from request parameters, and
// row limits in the dialect of the target engine.
//
// The rewrites are conservative string transforms. They never parse the full
// statement; each pass scans for the few keywords it needs and leaves the
// query untouched when the clause it would add is already present.
package sqlrewrite

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// LimitStyle selects the row-limit clause dialect.
type LimitStyle int

const (
	// LimitFetchFirst appends "FETCH FIRST n ROWS ONLY" (Oracle 12c+).
	LimitFetchFirst LimitStyle = iota
	// LimitKeyword appends "LIMIT n" (Snowflake, PostgreSQL).
	LimitKeyword
	// LimitOffsetFetch appends "OFFSET 0 ROWS FETCH NEXT n ROWS ONLY",
	// adding an ORDER BY (SELECT NULL) anchor when the query has none
	// (T-SQL requires ORDER BY for OFFSET).
	LimitOffsetFetch
)

// Filter is a single column constraint extracted from request parameters.
// Value is a scalar for equality or a slice for membership.
type Filter struct {
	Column string
	Value  any
}

// reservedParams are request parameters with protocol meaning; they are
// never turned into SQL filters.
var reservedParams = map[string]struct{}{
	"moniker_version":  {},
	"moniker_revision": {},
	"as_of":            {},
	"limit":            {},
	"offset":           {},
	"order_by":         {},
	"method":           {},
	"response_path":    {},
	"query_params":     {},
	"moniker_params":   {},
}

// clause boundaries after which a flashback clause may not be inserted.
var clauseKeywords = []string{" WHERE ", " GROUP BY ", " ORDER BY ", " HAVING ", " UNION ", ";"}

// AsOf returns the temporal pin from params: "as_of" wins, then
// "moniker_version". Empty when neither is present.
func AsOf(params map[string]any) string {
	for _, key := range []string{"as_of", "moniker_version"} {
		if v, ok := params[key]; ok && v != nil {
			return formatScalar(v)
		}
	}
	return ""
}

// Limit returns the row limit from params. The second return is false when
// no usable limit is present.
func Limit(params map[string]any) (int, bool) {
	v, ok := params["limit"]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, n > 0
	case int64:
		return int(n), n > 0
	case float64:
		return int(n), n > 0
	case string:
		p, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return p, p > 0
	default:
		return 0, false
	}
}

// ExtractFilters collects column filters from request parameters. Keys under
// the nested "moniker_params" map are taken first, then top-level keys;
// top-level wins on conflict. Reserved protocol keys, nil values, and nested
// maps are skipped. The result is sorted by column name so generated SQL is
// deterministic.
func ExtractFilters(params map[string]any) []Filter {
	byCol := make(map[string]any)
	if nested, ok := params["moniker_params"].(map[string]any); ok {
		for k, v := range nested {
			if v == nil {
				continue
			}
			byCol[k] = v
		}
	}
	for k, v := range params {
		if _, reserved := reservedParams[k]; reserved {
			continue
		}
		if v == nil {
			continue
		}
		if _, isMap := v.(map[string]any); isMap {
			continue
		}
		byCol[k] = v
	}
	cols := make([]string, 0, len(byCol))
	for k := range byCol {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	filters := make([]Filter, 0, len(cols))
	for _, c := range cols {
		filters = append(filters, Filter{Column: c, Value: byCol[c]})
	}
	return filters
}

// Flashback injects an Oracle flashback clause after the FROM-clause content.
// An all-digit pin becomes "AS OF SCN n"; anything else is treated as a
// timestamp literal. The query is returned unchanged when it already carries
// an AS OF clause or has no FROM.
func Flashback(query, asOf string) string {
	if asOf == "" {
		return query
	}
	upper := strings.ToUpper(query)
	if strings.Contains(upper, " AS OF ") {
		return query
	}
	fromIdx := strings.Index(upper, " FROM ")
	if fromIdx < 0 {
		return query
	}
	var clause string
	if isAllDigits(asOf) {
		clause = fmt.Sprintf(" AS OF SCN %s", asOf)
	} else {
		clause = fmt.Sprintf(" AS OF TIMESTAMP TO_TIMESTAMP('%s', 'YYYY-MM-DD HH24:MI:SS')", escapeLiteral(asOf))
	}
	insertAt := len(query)
	for _, kw := range clauseKeywords {
		if idx := strings.Index(upper[fromIdx:], kw); idx >= 0 && fromIdx+idx < insertAt {
			insertAt = fromIdx + idx
		}
	}
	return query[:insertAt] + clause + query[insertAt:]
}

// ApplyFilters injects equality/membership conditions into the query. With an
// existing WHERE the new conditions are prepended: WHERE <new> AND (<old>).
// Scalar values become "col = literal", slices become "col IN (...)", and an
// empty slice is dropped entirely. Conditions already present verbatim in the
// query are not added again.
func ApplyFilters(query string, filters []Filter) string {
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		cond, ok := condition(f)
		if !ok {
			continue
		}
		if strings.Contains(query, cond) {
			continue
		}
		conds = append(conds, cond)
	}
	if len(conds) == 0 {
		return query
	}
	joined := strings.Join(conds, " AND ")
	upper := strings.ToUpper(query)
	whereIdx := strings.Index(upper, " WHERE ")
	if whereIdx < 0 {
		insertAt := len(query)
		for _, kw := range []string{" GROUP BY ", " ORDER BY ", " HAVING ", " FETCH ", " OFFSET ", " LIMIT ", ";"} {
			if idx := strings.Index(upper, kw); idx >= 0 && idx < insertAt {
				insertAt = idx
			}
		}
		return query[:insertAt] + " WHERE " + joined + query[insertAt:]
	}
	// Existing WHERE: new conditions go first so engine-side pruning sees
	// the selective ones early.
	rest := query[whereIdx+len(" WHERE "):]
	return query[:whereIdx] + " WHERE " + joined + " AND (" + rest + ")"
}

// ApplyLimit appends a row-limit clause in the given dialect. Queries that
// already carry a FETCH/LIMIT clause are returned unchanged. A trailing
// semicolon is stripped before appending.
func ApplyLimit(query string, limit int, style LimitStyle) string {
	if limit <= 0 {
		return query
	}
	trimmed := strings.TrimRight(strings.TrimSpace(query), ";")
	upper := strings.ToUpper(trimmed)
	switch style {
	case LimitKeyword:
		if strings.Contains(upper, " LIMIT ") {
			return query
		}
		return fmt.Sprintf("%s LIMIT %d", trimmed, limit)
	case LimitOffsetFetch:
		if strings.Contains(upper, " FETCH ") || strings.Contains(upper, " OFFSET ") {
			return query
		}
		if !strings.Contains(upper, " ORDER BY ") {
			trimmed += " ORDER BY (SELECT NULL)"
		}
		return fmt.Sprintf("%s OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", trimmed, limit)
	default:
		if strings.Contains(upper, " FETCH ") {
			return query
		}
		return fmt.Sprintf("%s FETCH FIRST %d ROWS ONLY", trimmed, limit)
	}
}

// Build runs the filter and limit passes over a bound query. Temporal
// rewrites are Oracle-specific and applied separately via Flashback.
func Build(query string, params map[string]any, style LimitStyle) string {
	out := ApplyFilters(query, ExtractFilters(params))
	if n, ok := Limit(params); ok {
		out = ApplyLimit(out, n, style)
	}
	return out
}

func condition(f Filter) (string, bool) {
	switch v := f.Value.(type) {
	case []any:
		if len(v) == 0 {
			return "", false
		}
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = literal(item)
		}
		return fmt.Sprintf("%s IN (%s)", f.Column, strings.Join(parts, ", ")), true
	case []string:
		if len(v) == 0 {
			return "", false
		}
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = literal(item)
		}
		return fmt.Sprintf("%s IN (%s)", f.Column, strings.Join(parts, ", ")), true
	default:
		return fmt.Sprintf("%s = %s", f.Column, literal(v)), true
	}
}

// literal renders a Go value as a SQL literal. Strings are single-quoted with
// embedded quotes doubled; numbers and booleans render bare.
func literal(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + escapeLiteral(t) + "'"
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return "'" + escapeLiteral(fmt.Sprintf("%v", t)) + "'"
	}
}

func formatScalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
