package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics shared by the store tiers. Registered on the default
// registry so that a hosting service only has to expose the promhttp
// handler.
var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entity_store_cache_hits_total",
		Help: "Number of reads served by the fast tier.",
	}, []string{"entity_type"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entity_store_cache_misses_total",
		Help: "Number of reads that fell through to the durable tier.",
	}, []string{"entity_type"})

	Evictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entity_store_lru_evictions_total",
		Help: "Number of identifiers evicted by the LRU tier.",
	}, []string{"entity_type"})

	RemoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entity_store_remote_requests_total",
		Help: "Number of outbound remote requests issued.",
	}, []string{"entity_type"})

	RemoteDedupJoins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entity_store_remote_dedup_joins_total",
		Help: "Number of callers that attached to an identical in-flight remote request.",
	}, []string{"entity_type"})
)
