// Package metrics defines Prometheus metrics for the multi-cluster router,
// covering the client cache, cluster selection, validation, routed
// operations, upstream Proxmox requests, the API and the audit trail.
package metrics
