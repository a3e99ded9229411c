// Package metrics exposes prometheus collectors shared across the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bars_total", Help: "Count of market bars ingested"},
		[]string{"symbol"},
	)
	FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frames_total", Help: "Inbound venue frames by event"},
		[]string{"event"},
	)
	ParseFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "parse_failures_total", Help: "Malformed or unrecognized venue frames"},
	)
	QueueDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "queue_dropped_total", Help: "Items evicted by drop-oldest backpressure"},
		[]string{"queue"},
	)
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "reconnects_total", Help: "Successful venue reconnects"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals released by the risk gate"},
		[]string{"strategy"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rejections_total", Help: "Candidates rejected by the risk gate"},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, BarsTotal, FramesTotal, ParseFailuresTotal,
		QueueDroppedTotal, ReconnectsTotal, SignalsTotal, RejectionsTotal,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
