// Package metrics holds the Prometheus collectors for the IMAP service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_imap_connection_total",
			Help: "Incoming IMAP connections.",
		},
		[]string{
			"service", // imap, imaps
		},
	)
	Commands = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kestrel_imap_command_duration_seconds",
			Help:    "IMAP command duration and result in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10, 20},
		},
		[]string{
			"cmd",
			"result", // ok, no, bad, error
		},
	)
	BadCommandDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kestrel_imap_bad_command_disconnect_total",
			Help: "Connections closed after too many consecutive unrecognised commands.",
		},
	)
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
