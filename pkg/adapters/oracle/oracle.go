// Package oracle reads Oracle-bound monikers over a direct database
// connection. Bound queries gain temporal (flashback), filter, and row-limit
// clauses from request parameters before execution.
package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/sijms/go-ora/v2"

	"github.com/moniker-data/moniker-go/internal/rowscan"
	"github.com/moniker-data/moniker-go/internal/sqlrewrite"
	"github.com/moniker-data/moniker-go/pkg/moniker"
)

// SourceType is the registry tag this adapter serves.
const SourceType = "oracle"

func init() {
	moniker.RegisterAdapter(SourceType, New())
}

// Adapter connects directly to Oracle. Connections are pooled per user@dsn
// and verified before reuse.
type Adapter struct {
	mu    sync.Mutex
	conns map[string]*sql.DB
}

// New returns an adapter with an empty connection cache.
func New() *Adapter {
	return &Adapter{conns: map[string]*sql.DB{}}
}

// BuildDSN derives the Oracle DSN from a binding's connection record: an
// explicit dsn field wins, otherwise host:port/service_name is assembled.
func BuildDSN(conn map[string]any) (string, error) {
	if dsn, ok := conn["dsn"].(string); ok && dsn != "" {
		return dsn, nil
	}
	host, _ := conn["host"].(string)
	if host == "" {
		host = "localhost"
	}
	port := 1521
	switch p := conn["port"].(type) {
	case int:
		port = p
	case float64:
		port = int(p)
	}
	service, _ := conn["service_name"].(string)
	if service == "" {
		return "", fmt.Errorf("oracle dsn or host/port/service_name required: %w", moniker.ErrConfiguration)
	}
	return fmt.Sprintf("%s:%d/%s", host, port, service), nil
}

// connectString turns a bare DSN plus credentials into a go-ora URL.
func connectString(dsn, user, password string) string {
	hostPort, service, _ := strings.Cut(dsn, "/")
	u := url.URL{
		Scheme: "oracle",
		User:   url.UserPassword(user, password),
		Host:   hostPort,
		Path:   "/" + service,
	}
	return u.String()
}

func paramString(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

// credentials resolves the Oracle user and password: binding params first,
// then client configuration.
func credentials(params map[string]any, cfg *moniker.ClientConfig) (string, string, error) {
	user := paramString(params, "oracle_user")
	if user == "" {
		user = cfg.Credential("oracle", "user")
	}
	password := paramString(params, "oracle_password")
	if password == "" {
		password = cfg.Credential("oracle", "password")
	}
	if user == "" || password == "" {
		return "", "", fmt.Errorf(
			"oracle credentials not configured, set ORACLE_USER and ORACLE_PASSWORD: %w",
			moniker.ErrConfiguration)
	}
	return user, password, nil
}

// BuildQuery applies the temporal, filter, and limit rewrites to the bound
// query.
func BuildQuery(query string, params map[string]any) string {
	if asOf := sqlrewrite.AsOf(params); asOf != "" {
		query = sqlrewrite.Flashback(query, asOf)
	}
	return sqlrewrite.Build(query, params, sqlrewrite.LimitFetchFirst)
}

// Fetch executes the binding's query and returns rows as column-keyed maps.
func (a *Adapter) Fetch(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig, opts moniker.FetchOptions) (*moniker.AdapterResult, error) {
	start := time.Now()
	params := opts.EffectiveParams(binding)

	dsn, err := BuildDSN(binding.Connection)
	if err != nil {
		return nil, err
	}
	user, password, err := credentials(params, cfg)
	if err != nil {
		return nil, err
	}
	if binding.Query == "" {
		return nil, fmt.Errorf("no query bound for oracle source %s: %w", binding.Path, moniker.ErrConfiguration)
	}
	query := BuildQuery(binding.Query, params)

	db, err := a.db(ctx, dsn, user, password)
	if err != nil {
		return nil, translateError(err, dsn)
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, translateError(err, dsn)
	}
	defer func() { _ = rows.Close() }()

	data, columns, err := rowscan.Maps(rows)
	if err != nil {
		return nil, translateError(err, dsn)
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

// db returns a cached pool for user@dsn, probing liveness before reuse and
// evicting stale pools.
func (a *Adapter) db(ctx context.Context, dsn, user, password string) (*sql.DB, error) {
	key := user + "@" + dsn

	a.mu.Lock()
	db, ok := a.conns[key]
	a.mu.Unlock()
	if ok {
		if err := db.PingContext(ctx); err == nil {
			return db, nil
		}
		a.mu.Lock()
		delete(a.conns, key)
		a.mu.Unlock()
		_ = db.Close()
	}

	db, err := sql.Open("oracle", connectString(dsn, user, password))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	a.mu.Lock()
	if existing, ok := a.conns[key]; ok {
		a.mu.Unlock()
		_ = db.Close()
		return existing, nil
	}
	a.conns[key] = db
	a.mu.Unlock()
	return db, nil
}

// translateError folds well-known ORA- codes into the client error taxonomy.
// Anything unrecognized propagates unchanged.
func translateError(err error, dsn string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ORA-12541"):
		return fmt.Errorf("cannot connect to oracle, no listener at %s: %w: %v",
			dsn, moniker.ErrConnectionRefused, err)
	case strings.Contains(msg, "ORA-01017"):
		return fmt.Errorf("oracle rejected the credentials: %w: %v", moniker.ErrAuthentication, err)
	case strings.Contains(msg, "ORA-12170"):
		return fmt.Errorf("oracle connection to %s timed out: %w: %v", dsn, moniker.ErrTimeout, err)
	case strings.Contains(msg, "ORA-00942"):
		return fmt.Errorf("oracle table or view does not exist, check the bound query: %w: %v",
			moniker.ErrNotFound, err)
	}
	return err
}

// ListChildren names the tables visible to the bound schema. Probe failures
// yield an empty list.
func (a *Adapter) ListChildren(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) ([]string, error) {
	params := moniker.FetchOptions{}.EffectiveParams(binding)
	dsn, err := BuildDSN(binding.Connection)
	if err != nil {
		return []string{}, nil
	}
	user, password, err := credentials(params, cfg)
	if err != nil {
		return []string{}, nil
	}
	db, err := a.db(ctx, dsn, user, password)
	if err != nil {
		return []string{}, nil
	}
	rows, err := db.QueryContext(ctx, "SELECT table_name FROM user_tables ORDER BY table_name")
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

// HealthCheck probes the database with SELECT 1 FROM DUAL.
func (a *Adapter) HealthCheck(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) moniker.HealthStatus {
	params := moniker.FetchOptions{}.EffectiveParams(binding)
	dsn, err := BuildDSN(binding.Connection)
	if err != nil {
		return moniker.HealthStatus{Healthy: false, Message: err.Error()}
	}
	user, password, err := credentials(params, cfg)
	if err != nil {
		return moniker.HealthStatus{Healthy: false, Message: "oracle credentials not configured"}
	}

	start := time.Now()
	latency := func() float64 { return float64(time.Since(start)) / float64(time.Millisecond) }

	db, err := a.db(ctx, dsn, user, password)
	if err != nil {
		return moniker.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency()}
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1 FROM DUAL").Scan(&one); err != nil {
		return moniker.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency()}
	}
	return moniker.HealthStatus{
		Healthy:   true,
		LatencyMS: latency(),
		Details:   map[string]any{"dsn": dsn},
	}
}

// CloseConnections closes every cached pool; per-pool errors are swallowed.
// Safe to call repeatedly.
func (a *Adapter) CloseConnections() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, db := range a.conns {
		_ = db.Close()
		delete(a.conns, key)
	}
}

// Close implements io.Closer so client shutdown releases the cache.
func (a *Adapter) Close() error {
	a.CloseConnections()
	return nil
}
