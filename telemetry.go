package homeai

import (
	"context"
	"log/slog"
	"time"
)

const defaultTelemetryTimeout = 3 * time.Second

// Event is an analytics event. Zero-valued optional fields are omitted.
type Event struct {
	Name      string    `json:"event_name"`
	UserID    string    `json:"user_id,omitempty"`
	Platform  Platform  `json:"platform,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Operation Operation `json:"operation,omitempty"`
	Status    JobStatus `json:"status,omitempty"`
	LatencyMS *int64    `json:"latency_ms,omitempty"`
	CostUSD   *float64  `json:"cost_usd,omitempty"`
	// OccurredAt defaults to the send time.
	OccurredAt time.Time `json:"occurred_at"`
}

// TelemetryService sends best-effort analytics events.
type TelemetryService struct {
	client  *Client
	timeout time.Duration
}

// Track sends an event. The current token is attached when the client holds
// one. It never returns an error and never waits longer than the telemetry
// timeout; failures are logged and dropped so the primary user action is
// never blocked or failed by analytics transport.
func (s *TelemetryService) Track(ctx context.Context, ev Event) {
	if ev.Name == "" {
		return
	}
	if ev.Platform == "" {
		ev.Platform = s.client.platform
	}
	if ev.UserID == "" {
		ev.UserID = s.client.Sessions.Current().UserID
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.client.post(ctx, request{
		path:  "/v1/analytics/events",
		body:  ev,
		token: s.client.Sessions.Token(),
	}, nil)
	if err != nil {
		s.client.logger.Debug("telemetry dropped",
			slog.String("event", ev.Name),
			slog.String("error", err.Error()),
		)
	}
}
