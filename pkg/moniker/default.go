package moniker

import (
	"context"
	"log/slog"
	"sync"
)

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Default returns the process-wide default client, constructing it lazily
// from discovered configuration on first use. When discovery fails the
// failure is logged and a client with built-in defaults is installed, so
// Default never returns nil.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		c, err := NewClient()
		if err != nil {
			slog.Error("moniker config discovery failed; falling back to defaults",
				slog.Any("error", err))
			c, _ = NewClientWithConfig(DefaultConfig())
		}
		defaultClient = c
	}
	return defaultClient
}

// SetDefault installs c as the process-wide default client and returns the
// previous one (nil if none had been constructed yet).
func SetDefault(c *Client) *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultClient
	defaultClient = c
	return prev
}

// Read fetches a dataset through the default client.
func Read(ctx context.Context, path string, opts ...ReadOption) (any, error) {
	return Default().Read(ctx, path, opts...)
}

// Resolve returns the source binding for a path via the default client.
func Resolve(ctx context.Context, path string) (*ResolvedSource, error) {
	return Default().Resolve(ctx, path)
}

// Describe returns the resolver's descriptive document for a path via the
// default client.
func Describe(ctx context.Context, path string) (map[string]any, error) {
	return Default().Describe(ctx, path)
}

// ListChildren names the catalog entries below a path via the default
// client.
func ListChildren(ctx context.Context, path string) ([]string, error) {
	return Default().ListChildren(ctx, path)
}

// Lineage returns the ownership lineage for a path via the default client.
func Lineage(ctx context.Context, path string) (map[string]any, error) {
	return Default().Lineage(ctx, path)
}

// Fetch executes a server-side fetch via the default client.
func Fetch(ctx context.Context, path string, opts ...FetchOption) (*FetchResult, error) {
	return Default().Fetch(ctx, path, opts...)
}

// Metadata returns the catalog metadata record for a path via the default
// client.
func Metadata(ctx context.Context, path string) (*MetadataResult, error) {
	return Default().Metadata(ctx, path)
}

// Sample returns preview rows for a path via the default client.
func Sample(ctx context.Context, path string, limit int) (*SampleResult, error) {
	return Default().Sample(ctx, path, limit)
}

// Tree returns the namespace hierarchy rooted at path via the default
// client.
func Tree(ctx context.Context, path string, depth int) (*TreeNode, error) {
	return Default().Tree(ctx, path, depth)
}

// PrintTree renders the namespace hierarchy rooted at path as text.
func PrintTree(ctx context.Context, path string, depth int, opts RenderOptions) (string, error) {
	t, err := Default().Tree(ctx, path, depth)
	if err != nil {
		return "", err
	}
	return t.RenderWith(opts), nil
}

// Search queries the catalog via the default client.
func Search(ctx context.Context, query, status string, limit int) (*SearchResult, error) {
	return Default().Search(ctx, query, status, limit)
}

// Stats returns catalog statistics via the default client.
func Stats(ctx context.Context) (*CatalogStats, error) {
	return Default().CatalogStats(ctx)
}

// Schema derives the column-level schema for a path via the default client.
func Schema(ctx context.Context, path string) (*SchemaInfo, error) {
	return Default().Schema(ctx, path)
}
