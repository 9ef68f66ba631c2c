package moniker

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ReservedParams are request parameter keys with protocol-level meaning.
// Adapters must never turn them into data filters.
var ReservedParams = map[string]struct{}{
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

// IsReservedParam reports whether key carries protocol meaning.
func IsReservedParam(key string) bool {
	_, ok := ReservedParams[key]
	return ok
}

// FetchOptions carry request-time parameters for a single fetch. Params are
// overlaid on the binding's own params before query transformation; reserved
// keys keep their protocol meaning.
type FetchOptions struct {
	Params map[string]any
}

// EffectiveParams merges the binding's params with the request-time overlay;
// request-time values win.
func (o FetchOptions) EffectiveParams(binding *ResolvedSource) map[string]any {
	var bound map[string]any
	if binding != nil {
		bound = binding.Params
	}
	merged := make(map[string]any, len(bound)+len(o.Params))
	for k, v := range bound {
		merged[k] = v
	}
	for k, v := range o.Params {
		merged[k] = v
	}
	return merged
}

// Adapter reads data directly from an underlying source described by a
// resolved binding. Implementations register themselves by source type tag
// and must be safe for concurrent use.
type Adapter interface {
	// Fetch retrieves the dataset the binding describes.
	Fetch(ctx context.Context, binding *ResolvedSource, cfg *ClientConfig, opts FetchOptions) (*AdapterResult, error)
	// ListChildren names the datasets one level below the binding.
	// Probe failures yield an empty list, not an error.
	ListChildren(ctx context.Context, binding *ResolvedSource, cfg *ClientConfig) ([]string, error)
	// HealthCheck probes connectivity to the underlying source.
	HealthCheck(ctx context.Context, binding *ResolvedSource, cfg *ClientConfig) HealthStatus
}

var (
	adaptersMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// RegisterAdapter makes an adapter available under a source type tag. It is
// expected to be called from adapter package init functions. Registering a
// nil adapter or the same tag twice panics.
func RegisterAdapter(sourceType string, a Adapter) {
	adaptersMu.Lock()
	defer adaptersMu.Unlock()
	if a == nil {
		panic("moniker: RegisterAdapter adapter is nil")
	}
	if _, dup := adapters[sourceType]; dup {
		panic("moniker: RegisterAdapter called twice for source type " + sourceType)
	}
	adapters[sourceType] = a
}

// AdapterFor returns the adapter registered for a source type.
func AdapterFor(sourceType string) (Adapter, error) {
	adaptersMu.RLock()
	a, ok := adapters[sourceType]
	adaptersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source type %q (forgotten import of pkg/adapters?): %w",
			sourceType, ErrConfiguration)
	}
	return a, nil
}

// RegisteredAdapters lists the registered source type tags, sorted.
func RegisteredAdapters() []string {
	adaptersMu.RLock()
	defer adaptersMu.RUnlock()
	tags := make([]string, 0, len(adapters))
	for t := range adapters {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
