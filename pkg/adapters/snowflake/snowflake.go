// Package snowflake reads warehouse-bound monikers through the Snowflake
// SQL driver. Connections are opened per call and closed on every exit path;
// the warehouse handles pooling on its side.
package snowflake

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/snowflakedb/gosnowflake"

	"github.com/moniker-data/moniker-go/internal/rowscan"
	"github.com/moniker-data/moniker-go/internal/sqlrewrite"
	"github.com/moniker-data/moniker-go/pkg/moniker"
)

// SourceType is the registry tag this adapter serves.
const SourceType = "snowflake"

func init() {
	moniker.RegisterAdapter(SourceType, New())
}

// Adapter connects to Snowflake per call. It holds no state.
type Adapter struct{}

// New returns a stateless Snowflake adapter.
func New() *Adapter {
	return &Adapter{}
}

// connValue reads a connection-record field, falling back to client
// configuration under the snowflake credential namespace.
func connValue(conn map[string]any, cfg *moniker.ClientConfig, key string) string {
	if v, ok := conn[key].(string); ok && v != "" {
		return v
	}
	return cfg.Credential(SourceType, key)
}

// BuildDSN assembles the Snowflake DSN from the binding's connection record
// and client configuration. With a private key file configured the password
// is omitted and key-pair (JWT) authentication is used instead.
func BuildDSN(conn map[string]any, cfg *moniker.ClientConfig) (string, error) {
	account := connValue(conn, cfg, "account")
	user := connValue(conn, cfg, "user")
	if account == "" || user == "" {
		return "", fmt.Errorf(
			"snowflake account and user required, set SNOWFLAKE_ACCOUNT and SNOWFLAKE_USER: %w",
			moniker.ErrConfiguration)
	}
	schema := connValue(conn, cfg, "schema")
	if schema == "" {
		schema = "PUBLIC"
	}
	sc := &gosnowflake.Config{
		Account:   account,
		User:      user,
		Database:  connValue(conn, cfg, "database"),
		Schema:    schema,
		Warehouse: connValue(conn, cfg, "warehouse"),
		Role:      connValue(conn, cfg, "role"),
	}

	if keyPath := connValue(conn, cfg, "private_key_path"); keyPath != "" {
		key, err := loadPrivateKey(keyPath)
		if err != nil {
			return "", err
		}
		sc.Authenticator = gosnowflake.AuthTypeJwt
		sc.PrivateKey = key
	} else {
		password := connValue(conn, cfg, "password")
		if password == "" {
			return "", fmt.Errorf(
				"snowflake password or private key required, set SNOWFLAKE_PASSWORD or SNOWFLAKE_PRIVATE_KEY_PATH: %w",
				moniker.ErrAuthentication)
		}
		sc.Password = password
	}

	dsn, err := gosnowflake.DSN(sc)
	if err != nil {
		return "", fmt.Errorf("snowflake dsn: %w: %v", moniker.ErrConfiguration, err)
	}
	return dsn, nil
}

// loadPrivateKey reads a PKCS#8 PEM RSA private key for key-pair auth.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snowflake private key %s: %w: %v", path, moniker.ErrAuthentication, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("snowflake private key %s is not PEM: %w", path, moniker.ErrAuthentication)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("snowflake private key %s is not PKCS#8: %w: %v", path, moniker.ErrAuthentication, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("snowflake private key %s is not RSA: %w", path, moniker.ErrAuthentication)
	}
	return key, nil
}

// BuildQuery applies the filter and limit rewrites in the LIMIT dialect.
func BuildQuery(query string, params map[string]any) string {
	return sqlrewrite.Build(query, params, sqlrewrite.LimitKeyword)
}

// Fetch opens a connection, runs the rewritten bound query, and closes the
// connection before returning.
func (a *Adapter) Fetch(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig, opts moniker.FetchOptions) (*moniker.AdapterResult, error) {
	start := time.Now()
	if binding.Query == "" {
		return nil, fmt.Errorf("no query bound for snowflake source %s: %w", binding.Path, moniker.ErrConfiguration)
	}
	dsn, err := BuildDSN(binding.Connection, cfg)
	if err != nil {
		return nil, err
	}
	query := BuildQuery(binding.Query, opts.EffectiveParams(binding))

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("snowflake connect: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("snowflake query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	data, columns, err := rowscan.Maps(rows)
	if err != nil {
		return nil, fmt.Errorf("snowflake scan: %w", err)
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

// ListChildren lists tables in the bound schema via SHOW TABLES. The table
// name is the second column of each result row. Any failure yields an empty
// list.
func (a *Adapter) ListChildren(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) ([]string, error) {
	dsn, err := BuildDSN(binding.Connection, cfg)
	if err != nil {
		return []string{}, nil
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return []string{}, nil
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return []string{}, nil
	}
	defer func() { _ = rows.Close() }()

	names, err := rowscan.Column(rows, 1)
	if err != nil {
		return []string{}, nil
	}
	return names, nil
}

// HealthCheck probes the warehouse with SELECT 1. It never raises; failures
// surface as an unhealthy status.
func (a *Adapter) HealthCheck(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) moniker.HealthStatus {
	dsn, err := BuildDSN(binding.Connection, cfg)
	if err != nil {
		return moniker.HealthStatus{Healthy: false, Message: err.Error()}
	}

	start := time.Now()
	latency := func() float64 { return float64(time.Since(start)) / float64(time.Millisecond) }

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return moniker.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency()}
	}
	defer func() { _ = db.Close() }()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return moniker.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency()}
	}
	return moniker.HealthStatus{Healthy: true, LatencyMS: latency()}
}
