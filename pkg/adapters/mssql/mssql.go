// Package mssql reads SQL Server-bound monikers over a direct connection.
// Connections are opened per call; SQL Server's own pooling makes a local
// cache unnecessary.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/moniker-data/moniker-go/internal/rowscan"
	"github.com/moniker-data/moniker-go/internal/sqlrewrite"
	"github.com/moniker-data/moniker-go/pkg/moniker"
)

// SourceType is the registry tag this adapter serves.
const SourceType = "mssql"

func init() {
	moniker.RegisterAdapter(SourceType, New())
}

// Adapter connects to SQL Server per call. It holds no state.
type Adapter struct{}

// New returns a stateless SQL Server adapter.
func New() *Adapter {
	return &Adapter{}
}

// credentials resolves the SQL Server login: binding params first, then
// client configuration.
func credentials(params map[string]any, cfg *moniker.ClientConfig) (string, string, error) {
	user, _ := params["mssql_user"].(string)
	if user == "" {
		user = cfg.Credential(SourceType, "user")
	}
	password, _ := params["mssql_password"].(string)
	if password == "" {
		password = cfg.Credential(SourceType, "password")
	}
	if user == "" || password == "" {
		return "", "", fmt.Errorf(
			"mssql credentials not configured, set MSSQL_USER and MSSQL_PASSWORD: %w",
			moniker.ErrConfiguration)
	}
	return user, password, nil
}

// BuildDSN assembles a sqlserver:// connection URL from the binding's
// connection record (server defaults to localhost, port to 1433).
func BuildDSN(conn map[string]any, user, password string) string {
	server, _ := conn["server"].(string)
	if server == "" {
		server = "localhost"
	}
	port := 1433
	switch p := conn["port"].(type) {
	case int:
		port = p
	case float64:
		port = int(p)
	}

	q := url.Values{}
	if database, _ := conn["database"].(string); database != "" {
		q.Set("database", database)
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(user, password),
		Host:     fmt.Sprintf("%s:%d", server, port),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// BuildQuery applies the filter and limit rewrites in the OFFSET/FETCH
// dialect T-SQL requires.
func BuildQuery(query string, params map[string]any) string {
	return sqlrewrite.Build(query, params, sqlrewrite.LimitOffsetFetch)
}

// translateError maps login rejections onto the client error taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "login failed") {
		return fmt.Errorf("sql server rejected the login: %w: %v", moniker.ErrAuthentication, err)
	}
	return err
}

// Fetch opens a connection, runs the rewritten bound query, and closes the
// connection before returning.
func (a *Adapter) Fetch(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig, opts moniker.FetchOptions) (*moniker.AdapterResult, error) {
	start := time.Now()
	params := opts.EffectiveParams(binding)

	user, password, err := credentials(params, cfg)
	if err != nil {
		return nil, err
	}
	if binding.Query == "" {
		return nil, fmt.Errorf("no query bound for mssql source %s: %w", binding.Path, moniker.ErrConfiguration)
	}
	query := BuildQuery(binding.Query, params)

	db, err := sql.Open("sqlserver", BuildDSN(binding.Connection, user, password))
	if err != nil {
		return nil, translateError(err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, translateError(err)
	}
	defer func() { _ = rows.Close() }()

	data, columns, err := rowscan.Maps(rows)
	if err != nil {
		return nil, translateError(err)
	}
	return &moniker.AdapterResult{
		Data:            data,
		RowCount:        len(data),
		Columns:         columns,
		ExecutionTimeMS: float64(time.Since(start)) / float64(time.Millisecond),
		SourceType:      SourceType,
		QueryExecuted:   query,
	}, nil
}

// ListChildren names the base tables in the bound database. Probe failures
// yield an empty list.
func (a *Adapter) ListChildren(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) ([]string, error) {
	params := moniker.FetchOptions{}.EffectiveParams(binding)
	user, password, err := credentials(params, cfg)
	if err != nil {
		return []string{}, nil
	}
	db, err := sql.Open("sqlserver", BuildDSN(binding.Connection, user, password))
	if err != nil {
		return []string{}, nil
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx,
		"SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME")
	if err != nil {
		return []string{}, nil
	}
	defer func() { _ = rows.Close() }()

	names, err := rowscan.FirstColumn(rows)
	if err != nil {
		return []string{}, nil
	}
	return names, nil
}

// HealthCheck probes the server with SELECT 1.
func (a *Adapter) HealthCheck(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) moniker.HealthStatus {
	params := moniker.FetchOptions{}.EffectiveParams(binding)
	user, password, err := credentials(params, cfg)
	if err != nil {
		return moniker.HealthStatus{Healthy: false, Message: "mssql credentials not configured"}
	}

	start := time.Now()
	latency := func() float64 { return float64(time.Since(start)) / float64(time.Millisecond) }

	db, err := sql.Open("sqlserver", BuildDSN(binding.Connection, user, password))
	if err != nil {
		return moniker.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency()}
	}
	defer func() { _ = db.Close() }()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return moniker.HealthStatus{Healthy: false, Message: translateError(err).Error(), LatencyMS: latency()}
	}
	return moniker.HealthStatus{Healthy: true, LatencyMS: latency()}
}
