// Package metrics provides Prometheus metrics for peer sessions and transfers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peershare_sessions_total",
			Help: "Total number of accepted peer sessions",
		},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peershare_sessions_active",
			Help: "Number of peer sessions currently open",
		},
	)

	sessionErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peershare_session_errors_total",
			Help: "Sessions terminated by an I/O or protocol failure",
		},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peershare_commands_total",
			Help: "Commands received from peers by kind",
		},
		[]string{"kind"},
	)

	transferBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peershare_transfer_bytes_total",
			Help: "File body bytes moved, by role and direction",
		},
		[]string{"role", "direction"},
	)

	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peershare_transfers_total",
			Help: "Completed or failed transfers, by role, direction and status",
		},
		[]string{"role", "direction", "status"},
	)
)

func SessionStarted() {
	sessionsTotal.Inc()
	sessionsActive.Inc()
}

func SessionEnded(failed bool) {
	sessionsActive.Dec()
	if failed {
		sessionErrorsTotal.Inc()
	}
}

func CommandReceived(kind string) {
	commandsTotal.WithLabelValues(kind).Inc()
}

// TransferDone records one transfer; status is "ok" or "failed".
func TransferDone(role, direction, status string, bytes int64) {
	transfersTotal.WithLabelValues(role, direction, status).Inc()
	if bytes > 0 {
		transferBytes.WithLabelValues(role, direction).Add(float64(bytes))
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
