// Package metrics exposes Prometheus counters for the event distribution
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the service metrics on an isolated Prometheus registry so
// multiple instances can coexist in one process.
type Registry struct {
	reg *prometheus.Registry

	EventsIngested  prometheus.Counter
	EventsRejected  *prometheus.CounterVec
	EventsBroadcast prometheus.Counter
	LiveStreams     prometheus.Gauge
	PollCycles      prometheus.Counter
	PollErrors      prometheus.Counter
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		EventsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livepay_events_ingested_total",
			Help: "Total number of events accepted on the ingest endpoint",
		}),

		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livepay_events_rejected_total",
			Help: "Total number of rejected ingest requests by reason",
		}, []string{"reason"}),

		EventsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livepay_events_broadcast_total",
			Help: "Total number of events fanned out to stream consumers",
		}),

		LiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livepay_live_streams",
			Help: "Number of currently connected stream consumers",
		}),

		PollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livepay_stats_poll_cycles_total",
			Help: "Total number of channel statistics poll cycles",
		}),

		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livepay_stats_poll_errors_total",
			Help: "Total number of failed channel statistics fetches",
		}),
	}

	r.reg.MustRegister(
		r.EventsIngested,
		r.EventsRejected,
		r.EventsBroadcast,
		r.LiveStreams,
		r.PollCycles,
		r.PollErrors,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
