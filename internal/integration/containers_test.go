//go:build integration
// +build integration

// Package integration verifies the relational and streaming adapters
// against real backends in containers. Run with -tags integration and a
// local Docker daemon.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	containerTypes "github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/moniker-data/moniker-go/pkg/moniker"
	"github.com/moniker-data/moniker-go/pkg/monikertest"

	_ "github.com/moniker-data/moniker-go/pkg/adapters/hub"
)

func newIntegrationClient(t *testing.T, srv *monikertest.Server) *moniker.Client {
	t.Helper()
	cfg := moniker.DefaultConfig()
	cfg.ServiceURL = srv.URL()
	cfg.ReportTelemetry = false
	cfg.AppID = "integration-tests"
	c, err := moniker.NewClientWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func Test_PostgresAdapter_RoundTrip(t *testing.T) {
	ctx := context.Background()

	pgReq := tc.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "app"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithStartupTimeout(90 * time.Second),
	}
	pgC, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: pgReq, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, nat.Port("5432/tcp"))
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/app?sslmode=disable", host, port.Port())

	// Seed through the stdlib driver, read back through the adapter.
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.Eventually(t, func() bool { return db.Ping() == nil }, 30*time.Second, time.Second)

	_, err = db.Exec(`CREATE TABLE widgets (id INT PRIMARY KEY, name TEXT, price NUMERIC)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO widgets VALUES (1, 'bolt', 0.25), (2, 'nut', 0.10), (3, 'washer', 0.05)`)
	require.NoError(t, err)

	srv := monikertest.NewTestServer(t)
	srv.AddSource("ops/widgets", &moniker.ResolvedSource{
		SourceType: "postgres",
		Connection: map[string]any{"dsn": dsn},
		Query:      "SELECT id, name FROM widgets ORDER BY id",
	})
	c := newIntegrationClient(t, srv)

	data, err := c.Read(ctx, "ops/widgets")
	require.NoError(t, err)
	rows := data.([]map[string]any)
	require.Len(t, rows, 3)
	assert.Equal(t, "bolt", rows[0]["name"])

	res, err := c.ReadResult(ctx, "ops/widgets", moniker.WithParam("limit", 2))
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
	assert.Contains(t, res.QueryExecuted, "LIMIT 2")

	children, err := c.ListChildren(ctx, "ops/widgets")
	require.NoError(t, err)
	assert.Contains(t, children, "widgets")

	health, err := c.Health(ctx, "ops/widgets")
	require.NoError(t, err)
	assert.True(t, health.Healthy)
}

func Test_KafkaAdapter_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// Redpanda must advertise the host-bound port, so bind it up front.
	const hostPort = 19192
	req := tc.ContainerRequest{
		Image:        "redpandadata/redpanda:v24.3.7",
		ExposedPorts: []string{"9092/tcp"},
		Cmd: []string{
			"redpanda", "start",
			"--overprovisioned",
			"--smp", "1",
			"--memory", "256M",
			"--reserve-memory", "0M",
			"--node-id", "0",
			"--check=false",
			"--kafka-addr", "PLAINTEXT://0.0.0.0:9092",
			"--advertise-kafka-addr", fmt.Sprintf("PLAINTEXT://127.0.0.1:%d", hostPort),
			"--default-log-level=error",
			"--mode", "dev-container",
		},
		WaitingFor: wait.ForListeningPort("9092/tcp").WithStartupTimeout(60 * time.Second),
	}
	req.HostConfigModifier = func(hc *containerTypes.HostConfig) {
		if hc.PortBindings == nil {
			hc.PortBindings = nat.PortMap{}
		}
		hc.PortBindings[nat.Port("9092/tcp")] = []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", hostPort)},
		}
	}
	rpC, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rpC.Terminate(ctx) })

	broker := fmt.Sprintf("127.0.0.1:%d", hostPort)
	topic := fmt.Sprintf("orders-events-%d", time.Now().UnixNano())

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.AllowAutoTopicCreation(),
		kgo.DefaultProduceTopic(topic),
	)
	require.NoError(t, err)
	defer producer.Close()

	records := []*kgo.Record{
		{Key: []byte("o-1"), Value: []byte(`{"id":1,"state":"new"}`)},
		{Key: []byte("o-2"), Value: []byte(`{"id":2,"state":"paid"}`)},
		{Key: []byte("o-3"), Value: []byte(`plain text event`)},
	}
	require.NoError(t, producer.ProduceSync(ctx, records...).FirstErr())

	srv := monikertest.NewTestServer(t)
	srv.AddSource("streams/orders", &moniker.ResolvedSource{
		SourceType: "kafka",
		Connection: map[string]any{"brokers": broker, "topic": topic},
	})
	c := newIntegrationClient(t, srv)

	res, err := c.ReadResult(ctx, "streams/orders", moniker.WithParam("limit", 3))
	require.NoError(t, err)
	require.Equal(t, 3, res.RowCount)
	rows := res.Data.([]map[string]any)
	assert.Equal(t, "o-1", rows[0]["key"])
	assert.Equal(t, map[string]any{"id": float64(1), "state": "new"}, rows[0]["value"])
	assert.Equal(t, "plain text event", rows[2]["value"])

	children, err := c.ListChildren(ctx, "streams/orders")
	require.NoError(t, err)
	assert.Contains(t, children, topic)

	health, err := c.Health(ctx, "streams/orders")
	require.NoError(t, err)
	assert.True(t, health.Healthy)
}
