package request

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for dispatcher operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ya_requests_total",
		Help: "Total dispatched requests by outcome",
	}, []string{"outcome"}) // success, business_error, transport_error, aborted, ignored

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ya_request_duration_seconds",
		Help:    "Request duration in seconds by outcome",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"outcome"})

	duplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ya_duplicate_requests_total",
		Help: "Duplicate in-flight requests by policy action",
	}, []string{"policy"})

	mockRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ya_mock_retries_total",
		Help: "Fallback retries against the mock backend by result",
	}, []string{"result"})

	inflightRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ya_inflight_requests",
		Help: "Requests currently registered as in flight",
	})
)

const (
	outcomeSuccess   = "success"
	outcomeBusiness  = "business_error"
	outcomeTransport = "transport_error"
	outcomeAborted   = "aborted"
	outcomeIgnored   = "ignored"
)
