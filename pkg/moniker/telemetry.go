package moniker

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/moniker-data/moniker-go/internal/observability"
	"github.com/moniker-data/moniker-go/pkg/textx"
)

// maxTelemetryError caps the error detail shipped with an access event;
// driver errors can embed whole statements.
const maxTelemetryError = 512

// accessEvent is the body posted to /telemetry/access after each read.
type accessEvent struct {
	Moniker      string  `json:"moniker"`
	Outcome      string  `json:"outcome"`
	LatencyMS    float64 `json:"latency_ms"`
	SourceType   string  `json:"source_type,omitempty"`
	RowCount     *int    `json:"row_count,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Deprecated   bool    `json:"deprecated"`
	Successor    string  `json:"successor,omitempty"`
	AppID        string  `json:"app_id,omitempty"`
	Team         string  `json:"team,omitempty"`
	Timestamp    string  `json:"timestamp"`
}

// Read outcomes reported in telemetry.
const (
	outcomeSuccess  = "success"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

// reportAccess posts an access event in the background. Telemetry never
// affects the caller: failures are logged at debug and dropped.
func (c *Client) reportAccess(ev accessEvent) {
	if !c.cfg.ReportTelemetry {
		return
	}
	ev.AppID = c.cfg.AppID
	ev.Team = c.cfg.Team
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	ev.ErrorMessage = textx.Truncate(ev.ErrorMessage, maxTelemetryError)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), telemetryTimeout)
		defer cancel()

		req, err := c.newRequest(ctx, http.MethodPost, "/telemetry/access", nil, ev)
		if err != nil {
			c.dropTelemetry(ev.Moniker, err)
			return
		}
		resp, err := c.do("telemetry", c.thc, req)
		if err != nil {
			c.dropTelemetry(ev.Moniker, err)
			return
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 400 {
			c.dropTelemetry(ev.Moniker, &ResolutionError{Path: ev.Moniker, Status: resp.StatusCode})
		}
	}()
}

func (c *Client) dropTelemetry(moniker string, err error) {
	observability.TelemetryDropsTotal.Inc()
	slog.Debug("telemetry report dropped",
		slog.String("moniker", moniker),
		slog.Any("error", err))
}
