package google

import (
	"context"
	"log/slog"
	"time"

	"github.com/illmedicine/livepay/internal/metrics"
)

// PublishFunc delivers one stats event into the distribution pipeline for the
// given pairing subject.
type PublishFunc func(subject string, fields map[string]any)

// Poller periodically fetches channel statistics for the configured handles
// and publishes them as youtube_oauth_stats events. Cycles before the OAuth
// flow completes are skipped; fetch failures are counted and otherwise
// ignored so one bad handle never stalls the loop.
type Poller struct {
	logger   *slog.Logger
	client   *Client
	handles  []string
	interval time.Duration
	publish  PublishFunc
	metrics  *metrics.Registry
}

func NewPoller(client *Client, handles []string, interval time.Duration, publish PublishFunc, reg *metrics.Registry, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		logger:   logger,
		client:   client,
		handles:  handles,
		interval: interval,
		publish:  publish,
		metrics:  reg,
	}
}

// Run polls until the context is canceled. It is meant to be started in its
// own goroutine after the HTTP server is up.
func (p *Poller) Run(ctx context.Context) {
	if !p.client.Configured() || len(p.handles) == 0 {
		p.logger.Info("channel stats polling disabled")
		return
	}
	p.logger.Info("channel stats polling started", "handles", p.handles, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one fetch cycle over all handles.
func (p *Poller) Poll(ctx context.Context) {
	if !p.client.Connected() {
		return
	}
	if p.metrics != nil {
		p.metrics.PollCycles.Inc()
	}
	subject := p.client.Subject()

	for _, handle := range p.handles {
		stats, err := p.client.ChannelStats(ctx, handle)
		if err != nil {
			if p.metrics != nil {
				p.metrics.PollErrors.Inc()
			}
			p.logger.Warn("channel stats fetch failed", "handle", handle, "error", err)
			continue
		}
		if stats.SubscriberCount == nil && stats.ViewHours == nil {
			continue
		}

		fields := map[string]any{
			"source": "google_oauth",
			"type":   "youtube_oauth_stats",
			"handle": handle,
		}
		if stats.SubscriberCount != nil {
			fields["subscriberCount"] = *stats.SubscriberCount
		}
		if stats.ViewHours != nil {
			fields["viewHours"] = *stats.ViewHours
		}
		p.publish(subject, fields)
	}
}
