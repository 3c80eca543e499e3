package dataset

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fetchesTotal tracks how each call was answered
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ya_dataset_fetches_total",
			Help: "Total dataset calls by source",
		},
		[]string{"source"}, // "network", "cache", "shared"
	)

	// recordedResponses tracks responses written to the history
	recordedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ya_dataset_recorded_responses_total",
			Help: "Total responses recorded in dataset histories",
		},
	)

	// mirrorErrors tracks persistent mirror failures
	mirrorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ya_dataset_mirror_errors_total",
			Help: "Total persistent mirror errors",
		},
		[]string{"operation"}, // "hydrate", "write"
	)
)

const (
	sourceNetwork = "network"
	sourceCache   = "cache"
	sourceShared  = "shared"
)
