package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallsTotal tracks logical calls by method and outcome
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framerpc_calls_total",
			Help: "Total number of logical RPC calls",
		},
		[]string{"method", "outcome"},
	)

	// AttemptsTotal tracks individual attempts per endpoint
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framerpc_attempts_total",
			Help: "Total number of call attempts",
		},
		[]string{"endpoint", "result"},
	)

	// RotationsTotal tracks endpoint rotations
	RotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framerpc_rotations_total",
			Help: "Total number of endpoint rotations",
		},
		[]string{"from", "to"},
	)

	// CallLatency tracks end-to-end latency of logical calls, retries included
	CallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "framerpc_call_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// EndpointReachable is 1 when the endpoint's last attempt succeeded
	EndpointReachable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framerpc_endpoint_reachable",
			Help: "Whether the endpoint is currently considered reachable",
		},
		[]string{"endpoint"},
	)

	// ServerRequestsTotal tracks requests handled by the frame server
	ServerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framerpc_server_requests_total",
			Help: "Total number of requests handled by the frame server",
		},
		[]string{"method", "status"},
	)
)
