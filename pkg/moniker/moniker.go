// Package moniker is the client runtime of the moniker data-federation
// service. A moniker is a logical, location-independent path naming a
// dataset; the client resolves monikers against a central resolution
// service and reads data either server-side or directly from the
// underlying source through registered adapters.
package moniker

import (
	"context"
	"strings"
)

// Scheme is the URI scheme recognized and emitted on moniker strings.
const Scheme = "moniker://"

const pathSep = "/"

// Moniker is an immutable, normalized dataset path. The zero value is the
// root moniker. Monikers compare equal iff their normalized paths are equal.
type Moniker struct {
	path   string
	client *Client
}

// MonikerOption configures a Moniker at construction.
type MonikerOption func(*Moniker)

// WithClient binds the moniker to a specific client instead of the process
// default. The binding is a lookup reference only; the moniker's lifetime is
// independent of the client's.
func WithClient(c *Client) MonikerOption {
	return func(m *Moniker) { m.client = c }
}

// New constructs a Moniker from any string form. The optional moniker://
// scheme prefix is stripped and leading/trailing separators are trimmed.
func New(s string, opts ...MonikerOption) Moniker {
	m := Moniker{path: normalizePath(s)}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func normalizePath(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, Scheme)
	return strings.Trim(s, pathSep)
}

// Path returns the normalized path (no scheme, no leading or trailing
// separator).
func (m Moniker) Path() string { return m.path }

// URI returns the scheme-prefixed form.
func (m Moniker) URI() string { return Scheme + m.path }

// String implements fmt.Stringer; the string form is the URI.
func (m Moniker) String() string { return m.URI() }

// IsRoot reports whether the moniker is the empty root path.
func (m Moniker) IsRoot() bool { return m.path == "" }

// Child returns a new moniker with sub appended below this path. The child
// sub-path is separator-trimmed before concatenation; an empty sub returns
// the receiver unchanged.
func (m Moniker) Child(sub string) Moniker {
	sub = strings.Trim(strings.TrimSpace(sub), pathSep)
	if sub == "" {
		return m
	}
	if m.path == "" {
		return Moniker{path: sub, client: m.client}
	}
	return Moniker{path: m.path + pathSep + sub, client: m.client}
}

// Parent returns the moniker one level up and true, or the zero moniker and
// false when the receiver is the root.
func (m Moniker) Parent() (Moniker, bool) {
	if m.path == "" {
		return Moniker{}, false
	}
	idx := strings.LastIndex(m.path, pathSep)
	if idx < 0 {
		return Moniker{path: "", client: m.client}, true
	}
	return Moniker{path: m.path[:idx], client: m.client}, true
}

// Equal reports path equality; the bound client does not participate.
func (m Moniker) Equal(o Moniker) bool { return m.path == o.path }

// Segments returns the path split on the separator; the root yields nil.
func (m Moniker) Segments() []string {
	if m.path == "" {
		return nil
	}
	return strings.Split(m.path, pathSep)
}

func (m Moniker) boundClient() *Client {
	if m.client != nil {
		return m.client
	}
	return Default()
}

// Resolve resolves the moniker into its source binding.
func (m Moniker) Resolve(ctx context.Context) (*ResolvedSource, error) {
	return m.boundClient().Resolve(ctx, m.path)
}

// Read resolves the moniker and fetches its data through the registered
// adapter for the binding's source type.
func (m Moniker) Read(ctx context.Context, opts ...ReadOption) (any, error) {
	return m.boundClient().Read(ctx, m.path, opts...)
}

// Fetch retrieves data server-side through the resolver's fetch surface.
func (m Moniker) Fetch(ctx context.Context, opts ...FetchOption) (*FetchResult, error) {
	return m.boundClient().Fetch(ctx, m.path, opts...)
}

// Describe returns the resolver's metadata object for the moniker.
func (m Moniker) Describe(ctx context.Context) (map[string]any, error) {
	return m.boundClient().Describe(ctx, m.path)
}

// Metadata returns the typed metadata record for the moniker.
func (m Moniker) Metadata(ctx context.Context) (*MetadataResult, error) {
	return m.boundClient().Metadata(ctx, m.path)
}

// Sample returns up to limit sample rows for the moniker.
func (m Moniker) Sample(ctx context.Context, limit int) (*SampleResult, error) {
	return m.boundClient().Sample(ctx, m.path, limit)
}

// Lineage returns the ownership lineage for the moniker.
func (m Moniker) Lineage(ctx context.Context) (map[string]any, error) {
	return m.boundClient().Lineage(ctx, m.path)
}

// Children lists the direct child names below the moniker.
func (m Moniker) Children(ctx context.Context) ([]string, error) {
	return m.boundClient().ListChildren(ctx, m.path)
}

// Tree returns the subtree rooted at the moniker down to depth levels.
func (m Moniker) Tree(ctx context.Context, depth int) (*TreeNode, error) {
	return m.boundClient().Tree(ctx, m.path, depth)
}

// Schema returns the column-level schema derived from catalog metadata.
func (m Moniker) Schema(ctx context.Context) (*SchemaInfo, error) {
	return m.boundClient().Schema(ctx, m.path)
}
