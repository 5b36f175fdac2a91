package events

import (
	"context"
	"time"

	"shortly/pkg/logging"
)

// ClickEvent is emitted once per successful redirect. LinkID is zero when the
// redirect was served from cache and the authoritative row was never read.
type ClickEvent struct {
	ShortCode string    `json:"short_code"`
	LinkID    int64     `json:"link_id,omitempty"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink accepts click events with no delivery guarantee. Publish must not
// block the redirect path.
type Sink interface {
	Publish(ctx context.Context, ev ClickEvent) error
}

// LogSink writes events to the log. Used when no durable sink is configured
// and as the dead-letter destination for dropped events.
type LogSink struct {
	Logger *logging.Logger
}

func (s *LogSink) Publish(ctx context.Context, ev ClickEvent) error {
	s.Logger.Info(ctx, "click event",
		"short_code", ev.ShortCode,
		"referer", ev.Referer,
		"occurred_at", ev.Timestamp)
	return nil
}
