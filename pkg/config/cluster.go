package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/exp/slices"
)

const (
	// DefaultClusterName is the name given to the single cluster built from the
	// legacy flat environment variables.
	DefaultClusterName = "default"

	// DefaultCacheTTL is how long a constructed cluster client stays cached
	// when PROXMOX_CLUSTER_CACHE_TTL is not set.
	DefaultCacheTTL = 3600 * time.Second
)

// ClusterDefinition is the static identity of one Proxmox backend.
// It is immutable once loaded.
type ClusterDefinition struct {
	// Name is the unique registry key of the cluster
	Name string `json:"name" yaml:"name"`
	// APIURL is the endpoint address, e.g. https://pve1.example.com:8006
	APIURL string `json:"apiURL" yaml:"apiURL"`
	// TokenID is the API token identifier in the form user@realm!tokenname
	TokenID string `json:"tokenID" yaml:"tokenID"`
	// TokenSecret is never rendered
	TokenSecret string `json:"-" yaml:"-"`
	// Verify controls TLS certificate verification against the endpoint
	Verify bool `json:"verify" yaml:"verify"`

	// Placement hints used when an operation does not name a node, storage or bridge
	DefaultNode    string `json:"defaultNode,omitempty" yaml:"defaultNode,omitempty"`
	DefaultStorage string `json:"defaultStorage,omitempty" yaml:"defaultStorage,omitempty"`
	DefaultBridge  string `json:"defaultBridge,omitempty" yaml:"defaultBridge,omitempty"`

	// Descriptive tags
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	Tier   string `json:"tier,omitempty" yaml:"tier,omitempty"`
}

// Validate checks that the definition carries everything needed to build a client.
func (d ClusterDefinition) Validate() error {
	if d.Name == "" {
		return newError("cluster", "name must not be empty")
	}
	if d.APIURL == "" {
		return newError(d.Name, "missing API URL")
	}
	u, err := url.Parse(d.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return newError(d.Name, fmt.Sprintf("invalid API URL %q", d.APIURL))
	}
	if d.TokenID == "" {
		return newError(d.Name, "missing token id (format: user@realm!tokenname)")
	}
	user, _, ok := strings.Cut(d.TokenID, "!")
	if !ok || !strings.Contains(user, "@") {
		return newError(d.Name, fmt.Sprintf("token id %q must look like user@realm!tokenname", d.TokenID))
	}
	if d.TokenSecret == "" {
		return newError(d.Name, "missing token secret")
	}
	return nil
}

// PatternRule routes resources whose name starts with Prefix to Cluster.
type PatternRule struct {
	Prefix  string `json:"prefix" yaml:"prefix"`
	Cluster string `json:"cluster" yaml:"cluster"`
}

// RegistryConfig describes the whole set of configured clusters. It is built
// once at startup and never mutated afterwards.
type RegistryConfig struct {
	// Clusters maps cluster name to its definition
	Clusters map[string]ClusterDefinition `json:"clusters" yaml:"clusters"`
	// Order keeps the declaration order of cluster names
	Order []string `json:"order" yaml:"order"`
	// DefaultCluster must be a key of Clusters
	DefaultCluster string `json:"defaultCluster" yaml:"defaultCluster"`
	// CacheTTL is the maximum age of a cached cluster client
	CacheTTL time.Duration `json:"cacheTTL" yaml:"cacheTTL"`
	// ValidationEnabled toggles the startup connectivity validation
	ValidationEnabled bool `json:"validationEnabled" yaml:"validationEnabled"`
	// Patterns is an unordered set of prefix routing rules
	Patterns []PatternRule `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	// MultiCluster reports whether the multi-cluster variable set was used
	MultiCluster bool `json:"multiCluster" yaml:"multiCluster"`
}

// NewRegistryConfig builds a RegistryConfig from definitions in declaration order.
// The first definition becomes the default cluster.
func NewRegistryConfig(defs ...ClusterDefinition) *RegistryConfig {
	cfg := &RegistryConfig{
		Clusters:          make(map[string]ClusterDefinition, len(defs)),
		CacheTTL:          DefaultCacheTTL,
		ValidationEnabled: true,
		MultiCluster:      len(defs) > 1,
	}
	for _, d := range defs {
		if _, dup := cfg.Clusters[d.Name]; !dup {
			cfg.Order = append(cfg.Order, d.Name)
		}
		cfg.Clusters[d.Name] = d
	}
	if len(cfg.Order) > 0 {
		cfg.DefaultCluster = cfg.Order[0]
	}
	return cfg
}

// Validate enforces the registry invariants.
func (c *RegistryConfig) Validate() error {
	if c == nil || len(c.Clusters) == 0 {
		return newError("clusters", "at least one cluster must be configured")
	}
	if len(c.Order) != len(c.Clusters) {
		return newError("clusters", "cluster order does not match the cluster set")
	}
	for _, name := range c.Order {
		def, ok := c.Clusters[name]
		if !ok {
			return newError(name, "declared but not defined")
		}
		if def.Name != name {
			return newError(name, fmt.Sprintf("definition is named %q", def.Name))
		}
		if err := def.Validate(); err != nil {
			return err
		}
	}
	if _, ok := c.Clusters[c.DefaultCluster]; !ok {
		return newError("defaultCluster", fmt.Sprintf("default cluster %q is not a configured cluster", c.DefaultCluster))
	}
	if c.CacheTTL < 0 {
		return newError("cacheTTL", "must not be negative")
	}
	for _, p := range c.Patterns {
		if p.Prefix == "" {
			return newError("patterns", fmt.Sprintf("empty prefix for cluster %q", p.Cluster))
		}
		if _, ok := c.Clusters[p.Cluster]; !ok {
			return newError("patterns", fmt.Sprintf("prefix %q targets unknown cluster %q", p.Prefix, p.Cluster))
		}
	}
	return nil
}

// Lookup returns the definition for name.
func (c *RegistryConfig) Lookup(name string) (ClusterDefinition, bool) {
	d, ok := c.Clusters[name]
	return d, ok
}

// HasCluster reports whether name is a configured cluster.
func (c *RegistryConfig) HasCluster(name string) bool {
	_, ok := c.Clusters[name]
	return ok
}

// Names returns the cluster names in declaration order.
func (c *RegistryConfig) Names() []string {
	return slices.Clone(c.Order)
}
