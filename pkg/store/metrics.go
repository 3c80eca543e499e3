package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	backendMemory = "memory"
	backendRedis  = "redis"
	backendSQLite = "sqlite"
)

var (
	// StoreHits tracks successful reads by backend
	StoreHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ya_store_hits_total",
			Help: "Total number of persistent store reads that found a value",
		},
		[]string{"backend"},
	)

	// StoreMisses tracks reads of absent keys by backend
	StoreMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ya_store_misses_total",
			Help: "Total number of persistent store reads for absent keys",
		},
		[]string{"backend"},
	)

	// StoreErrors tracks backend failures
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ya_store_errors_total",
			Help: "Total number of persistent store operation errors",
		},
		[]string{"backend", "operation"}, // "get", "set"
	)

	// StoreWrittenBytes tracks bytes written by backend
	StoreWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ya_store_written_bytes_total",
			Help: "Total bytes written to the persistent store",
		},
		[]string{"backend"},
	)
)
