package cluster

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/singleflight"

	"github.com/telekom/proxmox-multicluster/pkg/config"
	"github.com/telekom/proxmox-multicluster/pkg/metrics"
	"github.com/telekom/proxmox-multicluster/pkg/pve"
)

// Factory builds a client bound to one cluster definition.
type Factory func(ctx context.Context, def config.ClusterDefinition) (pve.Client, error)

// RESTFactory builds pve.RESTClient instances. No request is sent while building.
func RESTFactory(log *zap.SugaredLogger) Factory {
	return func(_ context.Context, def config.ClusterDefinition) (pve.Client, error) {
		return pve.NewRESTClient(
			pve.WithName(def.Name),
			pve.WithEndpoint(def.APIURL),
			pve.WithToken(def.TokenID, def.TokenSecret),
			pve.WithTLSVerify(def.Verify),
			pve.WithDefaults(pve.Defaults{
				Node:    def.DefaultNode,
				Storage: def.DefaultStorage,
				Bridge:  def.DefaultBridge,
			}),
			pve.WithLogger(log.With("cluster", def.Name)),
		)
	}
}

// cacheEntry pairs a client with the time it was stored.
type cacheEntry struct {
	client    pve.Client
	createdAt time.Time
}

// Registry owns the cluster configuration and a TTL cache of one client per cluster.
// It is safe for concurrent use.
type Registry struct {
	cfg     *config.RegistryConfig
	factory Factory
	log     *zap.SugaredLogger
	now     func() time.Time

	// mu guards entries and generations. It is never held while a client is constructed.
	mu      sync.Mutex
	entries map[string]cacheEntry
	// generations is bumped by ClearCache; a construction started under an
	// older generation is returned to its callers but not stored
	generations map[string]uint64
	// group coalesces concurrent misses for the same cluster name
	group singleflight.Group
}

type Option func(*Registry)

// WithFactory replaces the default REST client factory.
func WithFactory(f Factory) Option {
	return func(r *Registry) {
		if f != nil {
			r.factory = f
		}
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock replaces time.Now for cache age computations.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry validates cfg and returns a registry with an empty cache.
func NewRegistry(cfg *config.RegistryConfig, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		cfg:     cfg,
		log:     zap.NewNop().Sugar(),
		now:     time.Now,
		entries: map[string]cacheEntry{},

		generations: map[string]uint64{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.factory == nil {
		r.factory = RESTFactory(r.log)
	}

	r.log.Infow("Cluster registry initialized",
		"clusters", cfg.Names(),
		"defaultCluster", cfg.DefaultCluster,
		"cacheTTL", cfg.CacheTTL.String(),
		"multiCluster", cfg.MultiCluster,
		"patterns", len(cfg.Patterns))
	return r, nil
}

func (r *Registry) notFound(name string) error {
	return &NotFoundError{Cluster: name, Available: r.cfg.Names()}
}

// GetClient returns the cached client for name, building and caching a new
// one when there is none or the cached one is older than the cache TTL.
// An empty name selects the default cluster. A failed construction leaves
// the cache untouched.
func (r *Registry) GetClient(ctx context.Context, name string) (pve.Client, error) {
	if name == "" {
		name = r.cfg.DefaultCluster
	}
	def, ok := r.cfg.Lookup(name)
	if !ok {
		return nil, r.notFound(name)
	}

	if client, ok := r.cached(name); ok {
		metrics.ClientCacheHits.WithLabelValues(name).Inc()
		return client, nil
	}
	metrics.ClientCacheMisses.WithLabelValues(name).Inc()

	v, err, shared := r.group.Do(name, func() (any, error) {
		// a previous wave may have stored a client while this one queued
		if client, ok := r.cached(name); ok {
			return client, nil
		}
		r.mu.Lock()
		gen := r.generations[name]
		r.mu.Unlock()

		// the construction is shared, so one caller's cancellation must not fail the others
		client, err := r.factory(context.WithoutCancel(ctx), def)
		if err != nil {
			metrics.ClientConstructionErrors.WithLabelValues(name).Inc()
			r.log.Warnw("Failed to create cluster client", "cluster", name, "error", err)
			return nil, &ConnectionError{Cluster: name, Err: err}
		}

		r.mu.Lock()
		current := r.generations[name] == gen
		if current {
			r.entries[name] = cacheEntry{client: client, createdAt: r.now()}
		}
		r.mu.Unlock()

		metrics.ClientConstructions.WithLabelValues(name).Inc()
		if !current {
			r.log.Infow("Cache cleared during construction, client not cached", "cluster", name)
			return client, nil
		}
		r.log.Infow("Created cluster client", "cluster", name, "apiURL", def.APIURL)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.log.Debugw("Joined in-flight cluster client construction", "cluster", name)
	}
	return v.(pve.Client), nil
}

// cached returns the live entry for name, evicting it when it expired.
func (r *Registry) cached(name string) (pve.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	if r.now().Sub(entry.createdAt) < r.cfg.CacheTTL {
		return entry.client, true
	}
	delete(r.entries, name)
	metrics.ClientCacheEvictions.WithLabelValues(name, "expired").Inc()
	r.log.Debugw("Cluster client expired", "cluster", name, "age", r.now().Sub(entry.createdAt).String())
	return nil, false
}

// ClearCache drops the cached client of name, or every cached client when name
// is empty. A construction already in flight still answers its callers but its
// client is not cached.
func (r *Registry) ClearCache(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name != "" {
		r.generations[name]++
		if _, ok := r.entries[name]; ok {
			delete(r.entries, name)
			metrics.ClientCacheEvictions.WithLabelValues(name, "cleared").Inc()
			r.log.Infow("Cleared cluster client cache", "cluster", name)
		}
		return
	}
	for _, n := range r.cfg.Names() {
		r.generations[n]++
	}
	for n := range r.entries {
		metrics.ClientCacheEvictions.WithLabelValues(n, "cleared").Inc()
	}
	clear(r.entries)
	r.log.Infow("Cleared cluster client cache for all clusters")
}

// CachedClusters returns the names with a live cache entry, sorted.
func (r *Registry) CachedClusters() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	names := make([]string, 0, len(r.entries))
	for name, entry := range r.entries {
		if now.Sub(entry.createdAt) < r.cfg.CacheTTL {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// ListClusters returns the configured cluster names in declaration order.
func (r *Registry) ListClusters() []string {
	return r.cfg.Names()
}

// Definition returns the definition of name.
func (r *Registry) Definition(name string) (config.ClusterDefinition, error) {
	def, ok := r.cfg.Lookup(name)
	if !ok {
		return config.ClusterDefinition{}, r.notFound(name)
	}
	return def, nil
}

func (r *Registry) DefaultCluster() string {
	return r.cfg.DefaultCluster
}

// Config returns the configuration the registry was built from. It must not be modified.
func (r *Registry) Config() *config.RegistryConfig {
	return r.cfg
}

func (r *Registry) String() string {
	parts := make([]string, 0, len(r.cfg.Order))
	for _, name := range r.cfg.Order {
		role := "secondary"
		if name == r.cfg.DefaultCluster {
			role = "default"
		}
		parts = append(parts, fmt.Sprintf("%s(%s)", name, role))
	}
	return "Registry(" + strings.Join(parts, ", ") + ")"
}
