package handoff

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/illmedicine/livepay/internal/earnings"
)

const drainBatchSize = 500

// Sink receives drained events. *earnings.Service satisfies it.
type Sink interface {
	Ingest(ev earnings.Event)
}

// Poller drains the buffer on an interval and forwards each event to the
// sink. Rows that fail to decode are skipped but still advance the cursor, so
// one malformed row never wedges the drain.
type Poller struct {
	logger   *slog.Logger
	store    *Store
	sink     Sink
	interval time.Duration

	cursor int64
}

func NewPoller(store *Store, sink Sink, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Poller{
		logger:   logger,
		store:    store,
		sink:     sink,
		interval: interval,
	}
}

// Run drains until the context is canceled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("handoff drain started", "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Drain(ctx); err != nil {
				p.logger.Warn("handoff drain failed", "error", err)
			}
		}
	}
}

// Drain forwards all buffered events past the cursor, in order.
func (p *Poller) Drain(ctx context.Context) error {
	for {
		rows, err := p.store.ListSince(ctx, p.cursor, drainBatchSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for _, row := range rows {
			var ev earnings.Event
			if err := json.Unmarshal(row.Payload, &ev); err != nil {
				p.logger.Warn("skipping malformed handoff row", "seq", row.Seq, "error", err)
			} else if ev.Type != "" {
				p.sink.Ingest(ev)
			}
			p.cursor = row.Seq
		}
		if len(rows) < drainBatchSize {
			return nil
		}
	}
}
