package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/telekom/proxmox-multicluster/pkg/metrics"
	"github.com/telekom/proxmox-multicluster/pkg/pve"
)

// ValidationResult is the connectivity verdict for one cluster.
type ValidationResult struct {
	Healthy   bool   `json:"healthy" yaml:"healthy"`
	Message   string `json:"message" yaml:"message"`
	ErrorKind string `json:"errorKind,omitempty" yaml:"errorKind,omitempty"`
}

// ValidateAllClusters probes every configured cluster with GetClient followed
// by a node listing. Clusters are probed concurrently and each failure is
// recorded in that cluster's result only.
func (r *Registry) ValidateAllClusters(ctx context.Context) map[string]ValidationResult {
	names := r.cfg.Names()
	results := make(map[string]ValidationResult, len(names))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			res := r.validate(ctx, name)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

func (r *Registry) validate(ctx context.Context, name string) ValidationResult {
	nodes, err := r.probe(ctx, name)
	if err != nil {
		kind := ErrorKind(err)
		metrics.ClusterValidations.WithLabelValues(name, "failure").Inc()
		metrics.ClusterHealthy.WithLabelValues(name).Set(0)
		r.log.Warnw("Cluster validation failed", "cluster", name, "errorKind", kind, "error", err)
		return ValidationResult{Healthy: false, Message: err.Error(), ErrorKind: kind}
	}
	metrics.ClusterValidations.WithLabelValues(name, "success").Inc()
	metrics.ClusterHealthy.WithLabelValues(name).Set(1)
	r.log.Infow("Cluster is healthy", "cluster", name, "nodes", len(nodes))
	return ValidationResult{Healthy: true, Message: fmt.Sprintf("OK (%d nodes)", len(nodes))}
}

func (r *Registry) probe(ctx context.Context, name string) ([]pve.Node, error) {
	client, err := r.GetClient(ctx, name)
	if err != nil {
		return nil, err
	}
	return client.ListNodes(ctx)
}

// Status of a cluster info record.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// NodeSummary is the name and state of one node.
type NodeSummary struct {
	Name   string `json:"name" yaml:"name"`
	Status string `json:"status" yaml:"status"`
}

// ClusterInfo describes one cluster. Counts and nodes are only set when
// Status is StatusOnline; Error and ErrorKind only when it is StatusOffline.
type ClusterInfo struct {
	Name    string `json:"name" yaml:"name"`
	APIURL  string `json:"apiURL" yaml:"apiURL"`
	Region  string `json:"region,omitempty" yaml:"region,omitempty"`
	Tier    string `json:"tier,omitempty" yaml:"tier,omitempty"`
	Default bool   `json:"default" yaml:"default"`
	Status  Status `json:"status" yaml:"status"`

	NodesCount   int           `json:"nodesCount,omitempty" yaml:"nodesCount,omitempty"`
	VMsCount     int           `json:"vmsCount,omitempty" yaml:"vmsCount,omitempty"`
	LXCCount     int           `json:"lxcCount,omitempty" yaml:"lxcCount,omitempty"`
	StorageCount int           `json:"storageCount,omitempty" yaml:"storageCount,omitempty"`
	Nodes        []NodeSummary `json:"nodes,omitempty" yaml:"nodes,omitempty"`

	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind string `json:"errorKind,omitempty" yaml:"errorKind,omitempty"`
}

// ClusterInfo gathers a summary of name, or of the default cluster when name
// is empty. The only error is a NotFoundError; backend failures produce an
// offline record instead.
func (r *Registry) ClusterInfo(ctx context.Context, name string) (ClusterInfo, error) {
	if name == "" {
		name = r.cfg.DefaultCluster
	}
	def, ok := r.cfg.Lookup(name)
	if !ok {
		return ClusterInfo{}, r.notFound(name)
	}

	info := ClusterInfo{
		Name:    name,
		APIURL:  def.APIURL,
		Region:  def.Region,
		Tier:    def.Tier,
		Default: name == r.cfg.DefaultCluster,
	}
	if err := r.collect(ctx, name, &info); err != nil {
		info.Status = StatusOffline
		info.Error = err.Error()
		info.ErrorKind = ErrorKind(err)
		r.log.Warnw("Failed to get cluster info", "cluster", name, "errorKind", info.ErrorKind, "error", err)
		return info, nil
	}
	info.Status = StatusOnline
	return info, nil
}

func (r *Registry) collect(ctx context.Context, name string, info *ClusterInfo) error {
	client, err := r.GetClient(ctx, name)
	if err != nil {
		return err
	}
	nodes, err := client.ListNodes(ctx)
	if err != nil {
		return err
	}
	vms, err := client.ListVMs(ctx, pve.ListOptions{})
	if err != nil {
		return err
	}
	lxc, err := client.ListLXC(ctx, pve.ListOptions{})
	if err != nil {
		return err
	}
	storage, err := client.ListStorage(ctx)
	if err != nil {
		return err
	}

	info.NodesCount = len(nodes)
	info.VMsCount = len(vms)
	info.LXCCount = len(lxc)
	info.StorageCount = len(storage)
	info.Nodes = make([]NodeSummary, 0, len(nodes))
	for _, n := range nodes {
		info.Nodes = append(info.Nodes, NodeSummary{Name: n.Node, Status: n.Status})
	}
	return nil
}

// ListAllClustersInfo returns ClusterInfo for every cluster in declaration order.
func (r *Registry) ListAllClustersInfo(ctx context.Context) []ClusterInfo {
	names := r.cfg.Names()
	out := make([]ClusterInfo, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			// configured names cannot produce a NotFoundError
			out[i], _ = r.ClusterInfo(ctx, name)
		}(i, name)
	}
	wg.Wait()
	return out
}
