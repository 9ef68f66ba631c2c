package sqlrewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlashback(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		query string
		asOf  string
		want  string
	}{
		{
			name:  "scn pin",
			query: "SELECT * FROM employees",
			asOf:  "12345",
			want:  "SELECT * FROM employees AS OF SCN 12345",
		},
		{
			name:  "timestamp pin",
			query: "SELECT * FROM employees",
			asOf:  "2024-01-15 10:30:00",
			want:  "SELECT * FROM employees AS OF TIMESTAMP TO_TIMESTAMP('2024-01-15 10:30:00', 'YYYY-MM-DD HH24:MI:SS')",
		},
		{
			name:  "inserted before where",
			query: "SELECT * FROM employees WHERE active = 1",
			asOf:  "12345",
			want:  "SELECT * FROM employees AS OF SCN 12345 WHERE active = 1",
		},
		{
			name:  "inserted before order by",
			query: "SELECT * FROM employees ORDER BY id",
			asOf:  "12345",
			want:  "SELECT * FROM employees AS OF SCN 12345 ORDER BY id",
		},
		{
			name:  "existing as of untouched",
			query: "SELECT * FROM employees AS OF SCN 99",
			asOf:  "12345",
			want:  "SELECT * FROM employees AS OF SCN 99",
		},
		{
			name:  "no from clause untouched",
			query: "SELECT 1",
			asOf:  "12345",
			want:  "SELECT 1",
		},
		{
			name:  "empty pin untouched",
			query: "SELECT * FROM employees",
			asOf:  "",
			want:  "SELECT * FROM employees",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Flashback(tt.query, tt.asOf))
		})
	}
}

func TestApplyFilters(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		query   string
		filters []Filter
		want    string
	}{
		{
			name:    "string equality",
			query:   "SELECT * FROM employees",
			filters: []Filter{{Column: "dept", Value: "ENG"}},
			want:    "SELECT * FROM employees WHERE dept = 'ENG'",
		},
		{
			name:    "numeric equality",
			query:   "SELECT * FROM employees",
			filters: []Filter{{Column: "dept_id", Value: float64(10)}},
			want:    "SELECT * FROM employees WHERE dept_id = 10",
		},
		{
			name:    "membership list",
			query:   "SELECT * FROM employees",
			filters: []Filter{{Column: "region", Value: []any{"EU", "US"}}},
			want:    "SELECT * FROM employees WHERE region IN ('EU', 'US')",
		},
		{
			name:    "numeric membership",
			query:   "SELECT * FROM employees",
			filters: []Filter{{Column: "grade", Value: []any{float64(1), float64(2)}}},
			want:    "SELECT * FROM employees WHERE grade IN (1, 2)",
		},
		{
			name:    "empty list dropped",
			query:   "SELECT * FROM employees",
			filters: []Filter{{Column: "region", Value: []any{}}},
			want:    "SELECT * FROM employees",
		},
		{
			name:    "existing where wrapped",
			query:   "SELECT * FROM employees WHERE active = 1",
			filters: []Filter{{Column: "dept", Value: "ENG"}},
			want:    "SELECT * FROM employees WHERE dept = 'ENG' AND (active = 1)",
		},
		{
			name:    "inserted before order by",
			query:   "SELECT * FROM employees ORDER BY id",
			filters: []Filter{{Column: "dept", Value: "ENG"}},
			want:    "SELECT * FROM employees WHERE dept = 'ENG' ORDER BY id",
		},
		{
			name:    "quote escaped",
			query:   "SELECT * FROM employees",
			filters: []Filter{{Column: "name", Value: "O'Brien"}},
			want:    "SELECT * FROM employees WHERE name = 'O''Brien'",
		},
		{
			name:    "condition already present",
			query:   "SELECT * FROM employees WHERE dept = 'ENG'",
			filters: []Filter{{Column: "dept", Value: "ENG"}},
			want:    "SELECT * FROM employees WHERE dept = 'ENG'",
		},
		{
			name:    "no filters",
			query:   "SELECT * FROM employees",
			filters: nil,
			want:    "SELECT * FROM employees",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ApplyFilters(tt.query, tt.filters))
		})
	}
}

func TestApplyLimit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		query string
		limit int
		style LimitStyle
		want  string
	}{
		{
			name:  "fetch first",
			query: "SELECT * FROM employees",
			limit: 100,
			style: LimitFetchFirst,
			want:  "SELECT * FROM employees FETCH FIRST 100 ROWS ONLY",
		},
		{
			name:  "trailing semicolon stripped",
			query: "SELECT * FROM employees;",
			limit: 10,
			style: LimitFetchFirst,
			want:  "SELECT * FROM employees FETCH FIRST 10 ROWS ONLY",
		},
		{
			name:  "existing fetch untouched",
			query: "SELECT * FROM employees FETCH FIRST 5 ROWS ONLY",
			limit: 10,
			style: LimitFetchFirst,
			want:  "SELECT * FROM employees FETCH FIRST 5 ROWS ONLY",
		},
		{
			name:  "limit keyword",
			query: "SELECT * FROM events",
			limit: 50,
			style: LimitKeyword,
			want:  "SELECT * FROM events LIMIT 50",
		},
		{
			name:  "existing limit untouched",
			query: "SELECT * FROM events LIMIT 5",
			limit: 50,
			style: LimitKeyword,
			want:  "SELECT * FROM events LIMIT 5",
		},
		{
			name:  "offset fetch without order by",
			query: "SELECT * FROM dbo.orders",
			limit: 25,
			style: LimitOffsetFetch,
			want:  "SELECT * FROM dbo.orders ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 25 ROWS ONLY",
		},
		{
			name:  "offset fetch with order by",
			query: "SELECT * FROM dbo.orders ORDER BY id",
			limit: 25,
			style: LimitOffsetFetch,
			want:  "SELECT * FROM dbo.orders ORDER BY id OFFSET 0 ROWS FETCH NEXT 25 ROWS ONLY",
		},
		{
			name:  "zero limit untouched",
			query: "SELECT * FROM employees",
			limit: 0,
			style: LimitFetchFirst,
			want:  "SELECT * FROM employees",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ApplyLimit(tt.query, tt.limit, tt.style))
		})
	}
}

func TestExtractFilters(t *testing.T) {
	t.Parallel()

	t.Run("reserved keys skipped", func(t *testing.T) {
		t.Parallel()
		got := ExtractFilters(map[string]any{
			"as_of":    "2024-01-01",
			"limit":    float64(10),
			"order_by": "id",
			"dept_id":  float64(7),
		})
		require.Len(t, got, 1)
		assert.Equal(t, "dept_id", got[0].Column)
	})

	t.Run("nested moniker_params merged", func(t *testing.T) {
		t.Parallel()
		got := ExtractFilters(map[string]any{
			"moniker_params": map[string]any{"region": "EU", "dept": "SALES"},
			"dept":           "ENG",
		})
		require.Len(t, got, 2)
		assert.Equal(t, Filter{Column: "dept", Value: "ENG"}, got[0])
		assert.Equal(t, Filter{Column: "region", Value: "EU"}, got[1])
	})

	t.Run("nil values and maps skipped", func(t *testing.T) {
		t.Parallel()
		got := ExtractFilters(map[string]any{
			"a": nil,
			"b": map[string]any{"x": 1},
		})
		assert.Empty(t, got)
	})

	t.Run("deterministic ordering", func(t *testing.T) {
		t.Parallel()
		got := ExtractFilters(map[string]any{"z": "1", "a": "2", "m": "3"})
		require.Len(t, got, 3)
		assert.Equal(t, "a", got[0].Column)
		assert.Equal(t, "m", got[1].Column)
		assert.Equal(t, "z", got[2].Column)
	})
}

func TestAsOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "2024-01-15", AsOf(map[string]any{"as_of": "2024-01-15"}))
	assert.Equal(t, "12345", AsOf(map[string]any{"moniker_version": float64(12345)}))
	assert.Equal(t, "v1", AsOf(map[string]any{"as_of": "v1", "moniker_version": "v2"}))
	assert.Equal(t, "", AsOf(map[string]any{}))
}

func TestLimit(t *testing.T) {
	t.Parallel()
	n, ok := Limit(map[string]any{"limit": float64(100)})
	assert.True(t, ok)
	assert.Equal(t, 100, n)

	n, ok = Limit(map[string]any{"limit": "25"})
	assert.True(t, ok)
	assert.Equal(t, 25, n)

	_, ok = Limit(map[string]any{})
	assert.False(t, ok)

	_, ok = Limit(map[string]any{"limit": "abc"})
	assert.False(t, ok)
}

func TestBuild(t *testing.T) {
	t.Parallel()
	got := Build("SELECT * FROM employees", map[string]any{
		"dept_id": float64(10),
		"limit":   float64(100),
	}, LimitFetchFirst)
	assert.Equal(t, "SELECT * FROM employees WHERE dept_id = 10 FETCH FIRST 100 ROWS ONLY", got)
}
