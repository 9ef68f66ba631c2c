package moniker

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Dataset lifecycle states reported by the resolver.
const (
	StatusActive     = "active"
	StatusDeprecated = "deprecated"
	StatusRetired    = "retired"
)

// ResolvedSource is the binding the resolver returns for one dataset path:
// which engine holds the data, how to connect, and the bound query or
// location. The catalog may also attach lifecycle and migration fields.
type ResolvedSource struct {
	Moniker     string         `json:"moniker"`
	Path        string         `json:"path"`
	SourceType  string         `json:"source_type"`
	Connection  map[string]any `json:"connection"`
	Query       string         `json:"query,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	SchemaInfo  map[string]any `json:"schema_info,omitempty"`
	ReadOnly    bool           `json:"read_only"`
	Ownership   map[string]any `json:"ownership,omitempty"`
	BindingPath string         `json:"binding_path,omitempty"`
	SubPath     string         `json:"sub_path,omitempty"`

	// Deprecation and migration fields.
	Status             string `json:"status,omitempty"`
	DeprecationMessage string `json:"deprecation_message,omitempty"`
	Successor          string `json:"successor,omitempty"`
	SunsetDeadline     string `json:"sunset_deadline,omitempty"`
	MigrationGuideURL  string `json:"migration_guide_url,omitempty"`
	RedirectedFrom     string `json:"redirected_from,omitempty"`
}

// IsDeprecated reports whether the binding's dataset is marked deprecated.
func (s *ResolvedSource) IsDeprecated() bool { return s != nil && s.Status == StatusDeprecated }

// UnmarshalJSON decodes a resolver payload, defaulting read_only to true
// when the field is absent.
func (s *ResolvedSource) UnmarshalJSON(b []byte) error {
	type alias ResolvedSource
	aux := alias{ReadOnly: true}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*s = ResolvedSource(aux)
	return nil
}

// ConnString returns a string-typed connection field, or the fallback when
// the key is absent or not a string.
func (s *ResolvedSource) ConnString(key, fallback string) string {
	if v, ok := s.Connection[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// AdapterResult is what a source adapter returns from a fetch: the data plus
// execution metadata.
type AdapterResult struct {
	Data            any      `json:"data"`
	RowCount        int      `json:"row_count"`
	Columns         []string `json:"columns,omitempty"`
	ExecutionTimeMS float64  `json:"execution_time_ms,omitempty"`
	SourceType      string   `json:"source_type,omitempty"`
	QueryExecuted   string   `json:"query_executed,omitempty"`
	Truncated       bool     `json:"truncated,omitempty"`
}

// FetchResult is the structured payload from a server-side fetch.
type FetchResult struct {
	Moniker         string           `json:"moniker"`
	Path            string           `json:"path"`
	SourceType      string           `json:"source_type"`
	RowCount        int              `json:"row_count"`
	Columns         []string         `json:"columns"`
	Data            []map[string]any `json:"data"`
	Truncated       bool             `json:"truncated,omitempty"`
	QueryExecuted   string           `json:"query_executed,omitempty"`
	ExecutionTimeMS float64          `json:"execution_time_ms,omitempty"`
}

// MetadataResult carries the catalog's rich descriptive metadata for a
// dataset, intended for discovery tooling and agents.
type MetadataResult struct {
	Moniker          string           `json:"moniker"`
	Path             string           `json:"path"`
	DisplayName      string           `json:"display_name,omitempty"`
	Description      string           `json:"description,omitempty"`
	DataProfile      map[string]any   `json:"data_profile,omitempty"`
	TemporalCoverage map[string]any   `json:"temporal_coverage,omitempty"`
	Relationships    map[string]any   `json:"relationships,omitempty"`
	SampleData       []map[string]any `json:"sample_data,omitempty"`
	Schema           map[string]any   `json:"schema,omitempty"`
	SemanticTags     []string         `json:"semantic_tags,omitempty"`
	DataQuality      map[string]any   `json:"data_quality,omitempty"`
	Ownership        map[string]any   `json:"ownership,omitempty"`
	Documentation    map[string]any   `json:"documentation,omitempty"`
	QueryPatterns    map[string]any   `json:"query_patterns,omitempty"`
	CostIndicators   map[string]any   `json:"cost_indicators,omitempty"`
	NLDescription    string           `json:"nl_description,omitempty"`
	UseCases         []string         `json:"use_cases,omitempty"`
}

// SampleResult is a small preview of a dataset's rows.
type SampleResult struct {
	Moniker    string           `json:"moniker"`
	Path       string           `json:"path"`
	SourceType string           `json:"source_type"`
	RowCount   int              `json:"row_count"`
	Columns    []string         `json:"columns"`
	Data       []map[string]any `json:"data"`
}

// SchemaInfo is the column-level schema of a dataset, derived from catalog
// metadata.
type SchemaInfo struct {
	Moniker         string           `json:"moniker"`
	Path            string           `json:"path"`
	Columns         []map[string]any `json:"columns"`
	PrimaryKey      []string         `json:"primary_key,omitempty"`
	Description     string           `json:"description,omitempty"`
	Granularity     string           `json:"granularity,omitempty"`
	SemanticTags    []string         `json:"semantic_tags,omitempty"`
	RelatedMonikers []string         `json:"related_monikers,omitempty"`
}

// SearchResult is a page of catalog search hits.
type SearchResult struct {
	Query        string           `json:"query"`
	TotalResults int              `json:"total_results"`
	Results      []map[string]any `json:"results"`
}

// CatalogStats summarizes the catalog's contents.
type CatalogStats struct {
	TotalMonikers     int            `json:"total_monikers"`
	ByStatus          map[string]int `json:"by_status"`
	BySourceType      map[string]int `json:"by_source_type"`
	ByClassification  map[string]int `json:"by_classification"`
	OwnershipCoverage float64        `json:"ownership_coverage"`
}

// HealthStatus is the outcome of an adapter connectivity probe.
type HealthStatus struct {
	Healthy   bool           `json:"healthy"`
	LatencyMS float64        `json:"latency_ms"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// TreeNode is one node of the dataset namespace hierarchy.
type TreeNode struct {
	Path             string         `json:"path"`
	Name             string         `json:"name"`
	Children         []*TreeNode    `json:"children,omitempty"`
	Ownership        map[string]any `json:"ownership,omitempty"`
	SourceType       string         `json:"source_type,omitempty"`
	HasSourceBinding bool           `json:"has_source_binding,omitempty"`
	Description      string         `json:"description,omitempty"`
}

// RenderOptions control tree rendering annotations.
type RenderOptions struct {
	ShowOwnership bool
	ShowSource    bool
}

// Render returns a box-drawing representation of the subtree rooted at n,
// one node per line, annotated with owner and source type.
func (n *TreeNode) Render() string {
	return n.RenderWith(RenderOptions{ShowOwnership: true, ShowSource: true})
}

// RenderWith is Render with explicit annotation options.
func (n *TreeNode) RenderWith(opts RenderOptions) string {
	var b strings.Builder
	n.render(&b, "", true, true, opts)
	return b.String()
}

func (n *TreeNode) render(b *strings.Builder, indent string, isLast, isRoot bool, opts RenderOptions) {
	connector := ""
	if !isRoot {
		connector = "├── "
		if isLast {
			connector = "└── "
		}
	}

	var notes []string
	if opts.ShowOwnership && n.Ownership != nil {
		owner, _ := n.Ownership["accountable_owner"].(string)
		if owner == "" {
			owner, _ = n.Ownership["adop"].(string)
		}
		if owner != "" {
			notes = append(notes, "owner: "+owner)
		}
	}
	if opts.ShowSource && n.SourceType != "" {
		notes = append(notes, "source: "+n.SourceType)
	}
	annotation := ""
	if len(notes) > 0 {
		annotation = "  [" + strings.Join(notes, ", ") + "]"
	}

	fmt.Fprintf(b, "%s%s%s/%s", indent, connector, n.Name, annotation)

	childIndent := ""
	if !isRoot {
		childIndent = indent + "│   "
		if isLast {
			childIndent = indent + "    "
		}
	}
	for i, child := range n.Children {
		b.WriteByte('\n')
		child.render(b, childIndent, i == len(n.Children)-1, false, opts)
	}
}

// String renders the tree with default options.
func (n *TreeNode) String() string { return n.Render() }

// CountRows reports how many rows or items a fetched payload holds. Lists
// count their elements, maps their keys, nil counts zero, and any other
// scalar counts one.
func CountRows(data any) int {
	switch v := data.(type) {
	case nil:
		return 0
	case []map[string]any:
		return len(v)
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	default:
		return 1
	}
}
