// Package api implements the HTTP API server (Gin-based) exposing the
// multi-cluster router: cluster registry read-outs, cluster selection dry-runs
// and the Proxmox guest operations, plus health, version and metrics endpoints.
package api
