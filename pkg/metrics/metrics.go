package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Client cache metrics
	ClientCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_client_cache_hits_total",
		Help: "Total number of cluster client lookups served from the cache",
	}, []string{"cluster"})
	ClientCacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_client_cache_misses_total",
		Help: "Total number of cluster client lookups that required a construction",
	}, []string{"cluster"})
	ClientConstructions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_client_constructions_total",
		Help: "Total number of successful cluster client constructions",
	}, []string{"cluster"})
	ClientConstructionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_client_construction_errors_total",
		Help: "Total number of failed cluster client constructions",
	}, []string{"cluster"})
	// reason is one of expired, cleared
	ClientCacheEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_client_cache_evictions_total",
		Help: "Total number of cached cluster clients dropped from the cache",
	}, []string{"cluster", "reason"})

	// Selection metrics. source is one of explicit, pattern, convention, default
	ClusterSelections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_cluster_selections_total",
		Help: "Total number of cluster selections grouped by the rule that decided",
	}, []string{"cluster", "source"})
	ClusterSelectionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_cluster_selection_errors_total",
		Help: "Total number of cluster selections that failed",
	}, []string{"kind"})

	// Validation metrics
	ClusterValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_cluster_validations_total",
		Help: "Total number of cluster connectivity validations",
	}, []string{"cluster", "result"})
	ClusterHealthy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "proxmox_multicluster_cluster_healthy",
		Help: "Whether the last connectivity validation of a cluster succeeded (1) or failed (0)",
	}, []string{"cluster"})

	// Routing metrics
	RoutedOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_routed_operations_total",
		Help: "Total number of operations dispatched to a cluster",
	}, []string{"cluster", "operation"})
	RoutedOperationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_routed_operation_errors_total",
		Help: "Total number of dispatched operations that returned an error",
	}, []string{"cluster", "operation"})

	// Upstream Proxmox API metrics
	UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_upstream_requests_total",
		Help: "Total number of requests sent to Proxmox API endpoints",
	}, []string{"cluster", "method", "code"})
	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proxmox_multicluster_upstream_request_duration_seconds",
		Help:    "Latency of requests sent to Proxmox API endpoints",
		Buckets: prometheus.DefBuckets,
	}, []string{"cluster", "method"})

	// API metrics
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_api_requests_total",
		Help: "Total number of API requests handled",
	}, []string{"route", "method", "code"})

	// Audit metrics
	AuditEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_audit_events_total",
		Help: "Total number of audit events written per sink",
	}, []string{"sink", "type"})
	AuditSinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_audit_sink_errors_total",
		Help: "Total number of audit events a sink failed to write",
	}, []string{"sink"})
	AuditEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proxmox_multicluster_audit_events_dropped_total",
		Help: "Total number of audit events dropped because the recorder queue was full or closed",
	})

	// Rate limiting
	RateLimitRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proxmox_multicluster_ratelimit_rejections_total",
		Help: "Total number of API requests rejected by a rate limiter",
	}, []string{"scope"})
)

func init() {
	prometheus.MustRegister(ClientCacheHits)
	prometheus.MustRegister(ClientCacheMisses)
	prometheus.MustRegister(ClientConstructions)
	prometheus.MustRegister(ClientConstructionErrors)
	prometheus.MustRegister(ClientCacheEvictions)
	prometheus.MustRegister(ClusterSelections)
	prometheus.MustRegister(ClusterSelectionErrors)
	prometheus.MustRegister(ClusterValidations)
	prometheus.MustRegister(ClusterHealthy)
	prometheus.MustRegister(RoutedOperations)
	prometheus.MustRegister(RoutedOperationErrors)
	prometheus.MustRegister(UpstreamRequests)
	prometheus.MustRegister(UpstreamRequestDuration)
	prometheus.MustRegister(APIRequests)
	prometheus.MustRegister(AuditEvents)
	prometheus.MustRegister(AuditSinkErrors)
	prometheus.MustRegister(AuditEventsDropped)
	prometheus.MustRegister(RateLimitRejections)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
