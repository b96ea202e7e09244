// Package cli defines the flag configuration of the proxmox-multicluster API
// server: listen address and TLS, rate limits, startup validation and the
// audit sinks. Every flag falls back to an environment variable.
package cli
