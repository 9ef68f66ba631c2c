//go:build e2e
// +build e2e

// Package e2e_test exercises the whole client surface end to end: the mock
// resolution service on one side, real registered adapters on the other.
// The suite needs no external infrastructure and is safe to run repeatedly.
package e2e_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moniker-data/moniker-go/pkg/moniker"
	"github.com/moniker-data/moniker-go/pkg/monikertest"

	// Register every bundled source adapter.
	_ "github.com/moniker-data/moniker-go/pkg/adapters/hub"
)

// orderRows is the dataset behind sales/orders, served by the static
// adapter so reads run fully in-process.
var orderRows = []any{
	map[string]any{"id": 1, "region": "emea", "amount": 120.5},
	map[string]any{"id": 2, "region": "amer", "amount": 80.0},
	map[string]any{"id": 3, "region": "emea", "amount": 64.25},
	map[string]any{"id": 4, "region": "apac", "amount": 230.0},
}

// newSeededServer builds a resolver double with a small but complete
// catalog: an active static source, a deprecated predecessor, descriptive
// documents, and search entries.
func newSeededServer(t *testing.T) *monikertest.Server {
	t.Helper()
	srv := monikertest.NewTestServer(t)

	srv.AddSource("sales/orders", &moniker.ResolvedSource{
		SourceType: "static",
		Connection: map[string]any{
			"data":     orderRows,
			"children": []any{"2024", "2025"},
		},
		Status: moniker.StatusActive,
	})
	srv.AddSource("sales/orders_v1", &moniker.ResolvedSource{
		SourceType:         "static",
		Connection:         map[string]any{"data": orderRows[:2]},
		Status:             moniker.StatusDeprecated,
		DeprecationMessage: "superseded by the v2 feed",
		Successor:          "sales/orders",
	})

	srv.AddChildren("sales", "orders", "orders_v1")
	srv.AddDescription("sales/orders", map[string]any{
		"path":        "sales/orders",
		"name":        "orders",
		"description": "Order lines by region",
		"status":      "active",
	})
	srv.AddMetadata("sales/orders", map[string]any{
		"path":   "sales/orders",
		"schema": map[string]any{"columns": []any{map[string]any{"name": "id", "type": "int"}}},
	})
	srv.AddSample("sales/orders", map[string]any{
		"moniker":     "moniker://sales/orders",
		"path":        "sales/orders",
		"source_type": "static",
		"row_count":   2,
		"columns":     []any{"id", "region"},
		"data":        []any{map[string]any{"id": 1, "region": "emea"}},
	})
	srv.AddLineage("sales/orders", map[string]any{
		"path":  "sales/orders",
		"chain": []any{map[string]any{"path": "sales", "owner": "sales-eng"}},
	})
	srv.AddTree("", map[string]any{
		"path": "",
		"name": "",
		"children": []any{
			map[string]any{
				"path":        "sales",
				"name":        "sales",
				"source_type": "static",
				"children": []any{
					map[string]any{"path": "sales/orders", "name": "orders"},
					map[string]any{"path": "sales/orders_v1", "name": "orders_v1"},
				},
			},
		},
	})
	srv.SetStats(map[string]any{
		"total_monikers": 2,
		"by_status":      map[string]any{"active": 1, "deprecated": 1},
		"by_source_type": map[string]any{"static": 2},
	})
	srv.AddSearchEntry(map[string]any{
		"path":        "sales/orders",
		"name":        "orders",
		"status":      "active",
		"source_type": "static",
		"tags":        []any{"finance"},
	})
	srv.AddSearchEntry(map[string]any{
		"path":        "sales/orders_v1",
		"name":        "orders_v1",
		"status":      "deprecated",
		"source_type": "static",
	})
	return srv
}

func newE2EClient(t *testing.T, srv *monikertest.Server, opts ...moniker.Option) *moniker.Client {
	t.Helper()
	cfg := moniker.DefaultConfig()
	cfg.ServiceURL = srv.URL()
	cfg.AppID = "e2e-suite"
	cfg.Team = "data-platform"
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := moniker.NewClientWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}
