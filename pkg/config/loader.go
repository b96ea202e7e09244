package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by Load.
const (
	EnvClusters           = "PROXMOX_CLUSTERS"
	EnvDefaultCluster     = "PROXMOX_DEFAULT_CLUSTER"
	EnvClusterPatterns    = "PROXMOX_CLUSTER_PATTERNS"
	EnvClusterCacheTTL    = "PROXMOX_CLUSTER_CACHE_TTL"
	EnvClusterValidation  = "PROXMOX_CLUSTER_VALIDATION"
	EnvClusterPrefix      = "PROXMOX_CLUSTER_"
	EnvLegacyAPIURL       = "PROXMOX_API_URL"
	EnvLegacyTokenID      = "PROXMOX_TOKEN_ID"
	EnvLegacyTokenSecret  = "PROXMOX_TOKEN_SECRET"
	EnvLegacyVerify       = "PROXMOX_VERIFY"
	EnvLegacyDefaultNode  = "PROXMOX_DEFAULT_NODE"
	EnvLegacyDefaultStore = "PROXMOX_DEFAULT_STORAGE"
	EnvLegacyDefaultBrdg  = "PROXMOX_DEFAULT_BRIDGE"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load builds the registry configuration from the process environment.
func Load() (*RegistryConfig, error) {
	return LoadFromLookup(os.LookupEnv)
}

// IsMultiCluster reports whether the multi-cluster marker variable is present.
func IsMultiCluster(lookup LookupFunc) bool {
	v, ok := lookup(EnvClusters)
	return ok && strings.TrimSpace(v) != ""
}

// LoadFromLookup builds the registry configuration from lookup. Without
// PROXMOX_CLUSTERS the legacy variables produce exactly one cluster named
// "default".
func LoadFromLookup(lookup LookupFunc) (*RegistryConfig, error) {
	env := envReader(lookup)

	ttl, err := env.cacheTTL()
	if err != nil {
		return nil, err
	}

	var cfg *RegistryConfig
	if IsMultiCluster(lookup) {
		cfg, err = env.multiCluster()
	} else {
		cfg, err = env.legacy()
	}
	if err != nil {
		return nil, err
	}

	cfg.CacheTTL = ttl
	cfg.ValidationEnabled = parseBool(env.raw(EnvClusterValidation), true)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type envReader LookupFunc

// raw returns the trimmed value of key; unset keys return nil.
func (e envReader) raw(key string) *string {
	v, ok := e(key)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	return &v
}

func (e envReader) str(key string) string {
	if v := e.raw(key); v != nil {
		return *v
	}
	return ""
}

func (e envReader) cacheTTL() (time.Duration, error) {
	v := e.str(EnvClusterCacheTTL)
	if v == "" {
		return DefaultCacheTTL, nil
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0, newError(EnvClusterCacheTTL, fmt.Sprintf("not an integer number of seconds: %q", v))
	}
	if seconds < 0 {
		return 0, newError(EnvClusterCacheTTL, "must not be negative")
	}
	return time.Duration(seconds) * time.Second, nil
}

func (e envReader) legacy() (*RegistryConfig, error) {
	def := ClusterDefinition{
		Name:           DefaultClusterName,
		APIURL:         e.str(EnvLegacyAPIURL),
		TokenID:        e.str(EnvLegacyTokenID),
		TokenSecret:    e.str(EnvLegacyTokenSecret),
		Verify:         parseBool(e.raw(EnvLegacyVerify), true),
		DefaultNode:    e.str(EnvLegacyDefaultNode),
		DefaultStorage: e.str(EnvLegacyDefaultStore),
		DefaultBridge:  e.str(EnvLegacyDefaultBrdg),
	}
	switch {
	case def.APIURL == "":
		return nil, newError(EnvLegacyAPIURL, "missing")
	case def.TokenID == "":
		return nil, newError(EnvLegacyTokenID, "missing (format: user@realm!tokenname)")
	case def.TokenSecret == "":
		return nil, newError(EnvLegacyTokenSecret, "missing")
	}

	cfg := NewRegistryConfig(def)
	cfg.MultiCluster = false
	return cfg, nil
}

func (e envReader) multiCluster() (*RegistryConfig, error) {
	names := splitList(e.str(EnvClusters))
	if len(names) == 0 {
		return nil, newError(EnvClusters, "no cluster names declared")
	}

	defs := make([]ClusterDefinition, 0, len(names))
	for _, name := range names {
		def, err := e.cluster(name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	cfg := NewRegistryConfig(defs...)
	cfg.MultiCluster = true
	if len(cfg.Order) != len(names) {
		return nil, newError(EnvClusters, "cluster names must be unique")
	}

	if def := e.str(EnvDefaultCluster); def != "" {
		cfg.DefaultCluster = def
	}

	patterns, err := parsePatterns(e.str(EnvClusterPatterns))
	if err != nil {
		return nil, err
	}
	cfg.Patterns = patterns
	return cfg, nil
}

func (e envReader) cluster(name string) (ClusterDefinition, error) {
	prefix := EnvClusterPrefix + name + "_"
	def := ClusterDefinition{
		Name:           name,
		APIURL:         e.str(prefix + "API_URL"),
		TokenID:        e.str(prefix + "TOKEN_ID"),
		TokenSecret:    e.str(prefix + "TOKEN_SECRET"),
		Verify:         parseBool(e.raw(prefix+"VERIFY"), true),
		DefaultNode:    e.str(prefix + "DEFAULT_NODE"),
		DefaultStorage: e.str(prefix + "DEFAULT_STORAGE"),
		DefaultBridge:  e.str(prefix + "DEFAULT_BRIDGE"),
		Region:         e.str(prefix + "REGION"),
		Tier:           e.str(prefix + "TIER"),
	}
	switch {
	case def.APIURL == "":
		return def, newError(prefix+"API_URL", fmt.Sprintf("missing for cluster %q", name))
	case def.TokenID == "":
		return def, newError(prefix+"TOKEN_ID", fmt.Sprintf("missing for cluster %q (format: user@realm!tokenname)", name))
	case def.TokenSecret == "":
		return def, newError(prefix+"TOKEN_SECRET", fmt.Sprintf("missing for cluster %q", name))
	}
	return def, nil
}

// parsePatterns reads "prefix:cluster,prefix:cluster". Identical pairs collapse.
func parsePatterns(value string) ([]PatternRule, error) {
	var rules []PatternRule
	seen := map[PatternRule]struct{}{}
	for _, pair := range splitList(value) {
		prefix, cluster, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, newError(EnvClusterPatterns, fmt.Sprintf("entry %q is missing the ':' separator", pair))
		}
		rule := PatternRule{Prefix: strings.TrimSpace(prefix), Cluster: strings.TrimSpace(cluster)}
		if rule.Prefix == "" || rule.Cluster == "" {
			return nil, newError(EnvClusterPatterns, fmt.Sprintf("entry %q needs both a prefix and a cluster", pair))
		}
		if _, dup := seen[rule]; dup {
			continue
		}
		seen[rule] = struct{}{}
		rules = append(rules, rule)
	}
	return rules, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseBool treats 1/true/yes/y/on as true. A nil value yields def.
func parseBool(value *string, def bool) bool {
	if value == nil {
		return def
	}
	switch strings.ToLower(*value) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
