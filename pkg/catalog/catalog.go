// Package catalog provides a discovery facade over the moniker client:
// searching, browsing domains, filtering by lifecycle status or tag, and
// inspecting schemas without touching source data.
package catalog

import (
	"context"

	"github.com/moniker-data/moniker-go/pkg/moniker"
)

// byStatusLimit caps status and tag scans; catalogs larger than this page
// should be queried directly.
const byStatusLimit = 500

// defaultSearchLimit matches the resolver's own search page size.
const defaultSearchLimit = 50

// Reflector composes over a client for catalog discovery and introspection.
// It holds no state of its own; the zero value uses the process default
// client.
type Reflector struct {
	c *moniker.Client
}

// New returns a reflector over the given client. A nil client selects the
// process default client lazily on first use.
func New(c *moniker.Client) *Reflector {
	return &Reflector{c: c}
}

func (r *Reflector) client() *moniker.Client {
	if r.c != nil {
		return r.c
	}
	return moniker.Default()
}

// SearchOptions narrow a catalog search.
type SearchOptions struct {
	// Status filters server-side by lifecycle status.
	Status string
	// SourceType post-filters results by source type tag.
	SourceType string
	// Limit caps the result page; zero means the resolver default.
	Limit int
}

// Search finds catalog entries matching a query. The source type filter is
// applied client-side after the search returns.
func (r *Reflector) Search(ctx context.Context, query string, opts SearchOptions) (*moniker.SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	result, err := r.client().Search(ctx, query, opts.Status, limit)
	if err != nil {
		return nil, err
	}
	if opts.SourceType == "" {
		return result, nil
	}

	filtered := make([]map[string]any, 0, len(result.Results))
	for _, entry := range result.Results {
		if st, _ := entry["source_type"].(string); st == opts.SourceType {
			filtered = append(filtered, entry)
		}
	}
	return &moniker.SearchResult{
		Query:        result.Query,
		TotalResults: len(filtered),
		Results:      filtered,
	}, nil
}

// Stats returns aggregate catalog statistics.
func (r *Reflector) Stats(ctx context.Context) (*moniker.CatalogStats, error) {
	return r.client().CatalogStats(ctx)
}

// Schema returns the column-level schema for a moniker path.
func (r *Reflector) Schema(ctx context.Context, path string) (*moniker.SchemaInfo, error) {
	return r.client().Schema(ctx, path)
}

// Sources returns the count of catalog entries per source type.
func (r *Reflector) Sources(ctx context.Context) (map[string]int, error) {
	stats, err := r.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(stats.BySourceType))
	for k, v := range stats.BySourceType {
		out[k] = v
	}
	return out, nil
}

// Domain summarizes one top-level branch of the catalog tree.
type Domain struct {
	Path             string `json:"path"`
	Name             string `json:"name"`
	SourceType       string `json:"source_type,omitempty"`
	HasSourceBinding bool   `json:"has_source_binding,omitempty"`
	Description      string `json:"description,omitempty"`
	ChildrenCount    int    `json:"children_count"`
}

// Domains lists the catalog's top-level branches.
func (r *Reflector) Domains(ctx context.Context) ([]Domain, error) {
	tree, err := r.client().Tree(ctx, "", 1)
	if err != nil {
		return nil, err
	}
	domains := make([]Domain, 0, len(tree.Children))
	for _, child := range tree.Children {
		domains = append(domains, Domain{
			Path:             child.Path,
			Name:             child.Name,
			SourceType:       child.SourceType,
			HasSourceBinding: child.HasSourceBinding,
			Description:      child.Description,
			ChildrenCount:    len(child.Children),
		})
	}
	return domains, nil
}

// Deprecated finds catalog entries marked deprecated.
func (r *Reflector) Deprecated(ctx context.Context) ([]map[string]any, error) {
	return r.ByStatus(ctx, moniker.StatusDeprecated)
}

// ByStatus finds catalog entries in a lifecycle status.
func (r *Reflector) ByStatus(ctx context.Context, status string) ([]map[string]any, error) {
	result, err := r.client().Search(ctx, "", status, byStatusLimit)
	if err != nil {
		return nil, err
	}
	return result.Results, nil
}

// ByTag finds catalog entries carrying a tag. The search matches the tag
// text; results are then filtered to entries whose tag list contains it
// exactly.
func (r *Reflector) ByTag(ctx context.Context, tag string) ([]map[string]any, error) {
	result, err := r.client().Search(ctx, tag, "", byStatusLimit)
	if err != nil {
		return nil, err
	}
	matched := make([]map[string]any, 0, len(result.Results))
	for _, entry := range result.Results {
		if hasTag(entry, tag) {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func hasTag(entry map[string]any, tag string) bool {
	switch tags := entry["tags"].(type) {
	case []any:
		for _, t := range tags {
			if s, ok := t.(string); ok && s == tag {
				return true
			}
		}
	case []string:
		for _, t := range tags {
			if t == tag {
				return true
			}
		}
	}
	return false
}
