// Package cluster provides the multi-cluster registry: the configured Proxmox
// clusters, deterministic cluster selection for an operation, a TTL-based
// cache of one client per cluster, and connectivity validation.
package cluster
