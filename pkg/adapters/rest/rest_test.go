package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moniker-data/moniker-go/pkg/moniker"
)

func testConfig() moniker.ClientConfig {
	cfg := moniker.DefaultConfig()
	cfg.RetryBackoffFactor = 0 // no sleeping between attempts in tests
	return cfg
}

func binding(baseURL, query string, params map[string]any) *moniker.ResolvedSource {
	return &moniker.ResolvedSource{
		Moniker:    "mnk://api/things",
		Path:       "api/things",
		SourceType: SourceType,
		Connection: map[string]any{"base_url": baseURL},
		Query:      query,
		Params:     params,
	}
}

func TestFetchDecodesJSON(t *testing.T) {
	t.Parallel()

	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 1}, {"id": 2}, {"id": 3}})
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	a := New()
	res, err := a.Fetch(context.Background(), binding(srv.URL+"/v1/", "things", map[string]any{
		"query_params":   map[string]any{"page": float64(2)},
		"moniker_params": map[string]any{"page": float64(9), "size": float64(10)},
	}), &cfg, moniker.FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, "/v1/things", gotPath)
	assert.Contains(t, gotQuery, "page=2", "query_params beats moniker_params")
	assert.Contains(t, gotQuery, "size=10")
	assert.Equal(t, 3, res.RowCount)
	assert.Equal(t, SourceType, res.SourceType)

	list, ok := res.Data.([]any)
	require.True(t, ok)
	assert.Len(t, list, 3)
}

func TestFetchRequiresBaseURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	a := New()
	b := binding("", "things", nil)
	b.Connection = map[string]any{}
	_, err := a.Fetch(context.Background(), b, &cfg, moniker.FetchOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, moniker.ErrConfiguration)
}

func TestFetchMethodParam(t *testing.T) {
	t.Parallel()

	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	a := New()
	_, err := a.Fetch(context.Background(),
		binding(srv.URL, "submit", map[string]any{"method": "post"}), &cfg, moniker.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	a := New()
	res, err := a.Fetch(context.Background(), binding(srv.URL, "things", nil), &cfg, moniker.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
	assert.EqualValues(t, 2, calls.Load())
}

func TestFetchRetriesExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	a := New()
	_, err := a.Fetch(context.Background(), binding(srv.URL, "things", nil), &cfg, moniker.FetchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.EqualValues(t, cfg.RetryMaxAttempts, calls.Load())
}

func TestFetchNotFoundIsTerminal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	a := New()
	_, err := a.Fetch(context.Background(), binding(srv.URL, "missing", nil), &cfg, moniker.FetchOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, moniker.ErrNotFound)
	assert.EqualValues(t, 1, calls.Load(), "404 must not retry")
}

func TestFetchConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens any more

	cfg := testConfig()
	cfg.RetryMaxAttempts = 2
	a := New()
	_, err := a.Fetch(context.Background(), binding(srv.URL, "things", nil), &cfg, moniker.FetchOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, moniker.ErrConnectionRefused)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestFetchAuthHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		conn       map[string]any
		params     map[string]any
		cfg        func(*moniker.ClientConfig)
		wantHeader string
		wantValue  string
	}{
		{
			name:       "bearer from params",
			conn:       map[string]any{"auth_type": "bearer"},
			params:     map[string]any{"bearer_token": "tok-1"},
			wantHeader: "Authorization",
			wantValue:  "Bearer tok-1",
		},
		{
			name: "bearer from config",
			conn: map[string]any{"auth_type": "bearer"},
			cfg: func(c *moniker.ClientConfig) {
				c.Credentials["rest_bearer_token"] = "tok-2"
			},
			wantHeader: "Authorization",
			wantValue:  "Bearer tok-2",
		},
		{
			name:       "api key custom header",
			conn:       map[string]any{"auth_type": "api_key", "api_key_header": "X-Service-Key"},
			params:     map[string]any{"api_key": "k-1"},
			wantHeader: "X-Service-Key",
			wantValue:  "k-1",
		},
		{
			name:       "basic",
			conn:       map[string]any{"auth_type": "basic"},
			params:     map[string]any{"username": "u", "password": "p"},
			wantHeader: "Authorization",
			wantValue:  "Basic dTpw", // base64("u:p")
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get(tt.wantHeader)
				_, _ = w.Write([]byte(`[]`))
			}))
			t.Cleanup(srv.Close)

			cfg := testConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			b := binding(srv.URL, "things", tt.params)
			for k, v := range tt.conn {
				b.Connection[k] = v
			}
			a := New()
			_, err := a.Fetch(context.Background(), b, &cfg, moniker.FetchOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, got)
		})
	}
}

func TestFetchResponsePath(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payload":{"items":[{"id":1},{"id":2}]}}`))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	a := New()
	res, err := a.Fetch(context.Background(), binding(srv.URL, "things", map[string]any{
		"response_path": "payload.items",
	}), &cfg, moniker.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)

	list, ok := res.Data.([]any)
	require.True(t, ok)
	assert.Len(t, list, 2)
}

func TestFetchSchemaValidation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":"not-a-number"}`))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	a := New()
	_, err := a.Fetch(context.Background(), binding(srv.URL, "things", map[string]any{
		"response_schema": map[string]any{
			"type":       "object",
			"properties": map[string]any{"count": map[string]any{"type": "number"}},
		},
	}), &cfg, moniker.FetchOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, moniker.ErrValidation)

	var verr *moniker.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestExtractPath(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"results": []any{
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		},
	}

	assert.Equal(t, "second", extractPath(data, "results.1.name"))
	assert.Nil(t, extractPath(data, "results.9.name"), "index out of range")
	assert.Nil(t, extractPath(data, "missing.key"))
	assert.Nil(t, extractPath("scalar", "anything"))
}

func TestListChildrenFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "array of strings",
			body: `["a","b"]`,
			want: []string{"a", "b"},
		},
		{
			name: "array of objects with name precedence",
			body: `[{"name":"n1"},{"id":"i2"},{"path":"p3"},{"other":"x"}]`,
			want: []string{"n1", "i2", "p3"},
		},
		{
			name: "object with items list",
			body: `{"items":["x","y"]}`,
			want: []string{"x", "y"},
		},
		{
			name: "object without any list",
			body: `{"total": 3}`,
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			cfg := testConfig()
			b := binding(srv.URL, "", nil)
			b.Connection["children_endpoint"] = "children"
			a := New()
			got, err := a.ListChildren(context.Background(), b, &cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListChildrenWithoutEndpoint(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	a := New()
	got, err := a.ListChildren(context.Background(), binding("http://unused.invalid", "", nil), &cfg)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	a := New()

	b := binding(srv.URL, "", nil)
	b.Connection["health_endpoint"] = "/status"
	hs := a.HealthCheck(context.Background(), b, &cfg)
	assert.True(t, hs.Healthy)
	assert.GreaterOrEqual(t, hs.LatencyMS, 0.0)

	hs = a.HealthCheck(context.Background(), binding(srv.URL, "", nil), &cfg)
	assert.False(t, hs.Healthy)
	assert.Contains(t, hs.Message, "status 500")

	hs = a.HealthCheck(context.Background(), &moniker.ResolvedSource{Connection: map[string]any{}}, &cfg)
	assert.False(t, hs.Healthy)
	assert.Contains(t, hs.Message, "base_url not configured")
}
