// Package cmd implements the cobra command tree for the pvectl CLI: cluster
// listing, validation and selection dry-runs, configuration inspection and
// read-only node and guest listings across the configured Proxmox clusters.
package cmd
