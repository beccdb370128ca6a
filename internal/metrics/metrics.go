package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lanshare",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lanshare",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lanshare",
		Name:      "active_sessions",
		Help:      "Number of currently active transfer sessions.",
	})

	PeersDiscovered = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lanshare",
		Name:      "peers_discovered",
		Help:      "Number of peers currently visible on the network.",
	})

	PendingAcceptRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lanshare",
		Name:      "pending_accept_requests",
		Help:      "Number of inbound transfers awaiting an accept decision.",
	})

	TransferRateBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lanshare",
		Name:      "transfer_rate_bytes",
		Help:      "Current aggregate transfer rate in bytes per second.",
	})

	BytesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lanshare",
		Name:      "bytes_sent_total",
		Help:      "Total payload bytes sent across all sessions.",
	})

	BytesReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lanshare",
		Name:      "bytes_received_total",
		Help:      "Total payload bytes received across all sessions.",
	})

	TransfersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lanshare",
		Name:      "transfers_total",
		Help:      "Total finished transfer sessions by direction and terminal status.",
	}, []string{"direction", "status"})

	DecisionTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lanshare",
		Name:      "decision_timeouts_total",
		Help:      "Total inbound transfers auto-rejected after the decision window.",
	})

	MalformedDatagramsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lanshare",
		Name:      "malformed_datagrams_total",
		Help:      "Total discovery datagrams dropped as malformed.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveSessions,
		PeersDiscovered,
		PendingAcceptRequests,
		TransferRateBytes,
		BytesSentTotal,
		BytesReceivedTotal,
		TransfersTotal,
		DecisionTimeoutsTotal,
		MalformedDatagramsTotal,
	)
}
