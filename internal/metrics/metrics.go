// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, path and status.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	RealtimeConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "erp_realtime_connected_clients",
		Help: "Websocket clients currently connected to the notification relay.",
	})

	RealtimeQueuedNotifications = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "erp_realtime_queued_notifications",
		Help: "Notifications waiting for an offline user.",
	})

	RealtimeDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "erp_realtime_dropped_total",
		Help: "Notifications dropped because a client buffer was full or the queue entry expired.",
	})

	AnalyticsCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "erp_analytics_cache_hits_total",
		Help: "Analytics reports served from cache.",
	})

	AnalyticsCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "erp_analytics_cache_misses_total",
		Help: "Analytics reports recomputed.",
	})

	StoreTxnConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "erp_store_txn_conflicts_total",
		Help: "Store transactions retried after an optimistic concurrency conflict.",
	})

	BackupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_backups_total",
		Help: "Document backups by outcome.",
	}, []string{"result"})

	HostCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "erp_host_cpu_percent",
		Help: "Host CPU utilisation sampled by the resource watcher.",
	})

	HostMemoryPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "erp_host_memory_percent",
		Help: "Host memory utilisation sampled by the resource watcher.",
	})

	HostDiskPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "erp_host_disk_percent",
		Help: "Disk utilisation of the data volume sampled by the resource watcher.",
	})
)
