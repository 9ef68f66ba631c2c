// Package kafka reads topic-bound monikers by consuming a bounded slice of
// records from the head of a Kafka topic. Each record becomes one row with
// the value JSON-decoded when possible.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/moniker-data/moniker-go/internal/sqlrewrite"
	"github.com/moniker-data/moniker-go/pkg/moniker"
)

// SourceType is the registry tag this adapter serves.
const SourceType = "kafka"

// defaultLimit bounds a fetch when the request carries no limit parameter.
const defaultLimit = 100

// defaultPollTimeout bounds the consume loop when the client configuration
// has no request timeout.
const defaultPollTimeout = 10 * time.Second

func init() {
	moniker.RegisterAdapter(SourceType, New())
}

// Adapter consumes Kafka topics with a short-lived client per call.
type Adapter struct{}

// New returns a Kafka adapter.
func New() *Adapter {
	return &Adapter{}
}

// Brokers extracts the seed broker list from a connection record. A string
// value may carry a comma-separated list.
func Brokers(conn map[string]any) ([]string, error) {
	var brokers []string
	switch v := conn["brokers"].(type) {
	case []string:
		brokers = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				brokers = append(brokers, s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				brokers = append(brokers, s)
			}
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required: %w", moniker.ErrConfiguration)
	}
	return brokers, nil
}

// topicName resolves the topic to consume: the connection's topic field
// wins, then the bound query.
func topicName(binding *moniker.ResolvedSource) (string, error) {
	if t, ok := binding.Connection["topic"].(string); ok && t != "" {
		return t, nil
	}
	if binding.Query != "" {
		return binding.Query, nil
	}
	return "", fmt.Errorf("kafka topic required for %s: %w", binding.Path, moniker.ErrConfiguration)
}

// newClient builds a short-lived consumer with tracing hooks. The caller
// closes it.
func newClient(brokers []string, consumeTopic string) (*kgo.Client, error) {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	instrumented := kotel.NewKotel(kotel.WithTracer(tracer))

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.WithHooks(instrumented.Hooks()...),
		kgo.DialTimeout(10 * time.Second),
	}
	if consumeTopic != "" {
		opts = append(opts,
			kgo.ConsumeTopics(consumeTopic),
			kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		)
	}
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return cl, nil
}

// Fetch consumes up to limit records (default 100) from the topic head. The
// poll loop stops at the limit or at the poll timeout, whichever first.
func (a *Adapter) Fetch(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig, opts moniker.FetchOptions) (*moniker.AdapterResult, error) {
	start := time.Now()
	params := opts.EffectiveParams(binding)

	brokers, err := Brokers(binding.Connection)
	if err != nil {
		return nil, err
	}
	topic, err := topicName(binding)
	if err != nil {
		return nil, err
	}
	limit := defaultLimit
	if n, ok := sqlrewrite.Limit(params); ok {
		limit = n
	}

	cl, err := newClient(brokers, topic)
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	pollTimeout := cfg.RequestTimeout()
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	rows := make([]map[string]any, 0, limit)
	for len(rows) < limit {
		fetches := cl.PollRecords(pollCtx, limit-len(rows))
		if fetches.IsClientClosed() {
			break
		}
		var fetchErr error
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
				continue
			}
			fetchErr = fe.Err
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("kafka fetch from %s: %w", topic, fetchErr)
		}
		fetches.EachRecord(func(r *kgo.Record) {
			rows = append(rows, recordRow(r))
		})
		if pollCtx.Err() != nil {
			break
		}
	}

	return &moniker.AdapterResult{
		Data:            rows,
		RowCount:        len(rows),
		ExecutionTimeMS: float64(time.Since(start)) / float64(time.Millisecond),
		SourceType:      SourceType,
	}, nil
}

// recordRow flattens one record. Values that parse as JSON come back
// structured; anything else stays a string.
func recordRow(r *kgo.Record) map[string]any {
	return map[string]any{
		"key":       string(r.Key),
		"value":     decodeValue(r.Value),
		"topic":     r.Topic,
		"partition": int(r.Partition),
		"offset":    r.Offset,
		"timestamp": r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func decodeValue(b []byte) any {
	if json.Valid(b) {
		var v any
		if err := json.Unmarshal(b, &v); err == nil {
			return v
		}
	}
	return string(b)
}

// ListChildren names the cluster's topics via a metadata round-trip.
// Internal topics are filtered out; probe failures yield an empty list.
func (a *Adapter) ListChildren(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) ([]string, error) {
	brokers, err := Brokers(binding.Connection)
	if err != nil {
		return []string{}, nil
	}
	cl, err := newClient(brokers, "")
	if err != nil {
		return []string{}, nil
	}
	defer cl.Close()

	req := kmsg.NewMetadataRequest()
	resp, err := req.RequestWith(ctx, cl)
	if err != nil {
		return []string{}, nil
	}

	names := []string{}
	for _, t := range resp.Topics {
		if t.IsInternal || t.Topic == nil {
			continue
		}
		if strings.HasPrefix(*t.Topic, "_") {
			continue
		}
		names = append(names, *t.Topic)
	}
	sort.Strings(names)
	return names, nil
}

// HealthCheck reports whether a metadata round-trip succeeds.
func (a *Adapter) HealthCheck(ctx context.Context, binding *moniker.ResolvedSource, cfg *moniker.ClientConfig) moniker.HealthStatus {
	brokers, err := Brokers(binding.Connection)
	if err != nil {
		return moniker.HealthStatus{Healthy: false, Message: err.Error()}
	}

	start := time.Now()
	latency := func() float64 { return float64(time.Since(start)) / float64(time.Millisecond) }

	cl, err := newClient(brokers, "")
	if err != nil {
		return moniker.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency()}
	}
	defer cl.Close()

	req := kmsg.NewMetadataRequest()
	resp, err := req.RequestWith(ctx, cl)
	if err != nil {
		return moniker.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency()}
	}
	return moniker.HealthStatus{
		Healthy:   true,
		LatencyMS: latency(),
		Details:   map[string]any{"brokers": brokers, "topics": len(resp.Topics)},
	}
}
