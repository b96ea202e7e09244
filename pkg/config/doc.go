// Package config defines the cluster registry configuration model (one
// ClusterDefinition per Proxmox backend plus the RegistryConfig that ties them
// together) and loads it from the process environment, supporting both the
// multi-cluster variable set and the legacy single-cluster variables.
package config
