// Package router dispatches Proxmox operations to the cluster chosen by the registry.
package router

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/telekom/proxmox-multicluster/pkg/cluster"
	"github.com/telekom/proxmox-multicluster/pkg/metrics"
	"github.com/telekom/proxmox-multicluster/pkg/pve"
)

// Resolver selects clusters and hands out their clients. *cluster.Registry implements it.
type Resolver interface {
	SelectCluster(explicit, resourceName string, vmid *int) (string, error)
	GetClient(ctx context.Context, name string) (pve.Client, error)

	ListClusters() []string
	ClusterInfo(ctx context.Context, name string) (cluster.ClusterInfo, error)
	ListAllClustersInfo(ctx context.Context) []cluster.ClusterInfo
	ValidateAllClusters(ctx context.Context) map[string]cluster.ValidationResult
}

var _ Resolver = (*cluster.Registry)(nil)

// Router exposes every pve.Client operation with a trailing cluster argument.
// An empty cluster lets the resolver decide. Results and errors are returned
// exactly as the resolver or the selected client produced them.
type Router struct {
	reg Resolver
	log *zap.SugaredLogger
}

type Option func(*Router)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

func New(reg Resolver, opts ...Option) *Router {
	r := &Router{reg: reg, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the resolver the router dispatches through.
func (r *Router) Registry() Resolver {
	return r.reg
}

type dispatchKey struct{}

// Dispatch records the cluster a routed call was sent to.
type Dispatch struct {
	mu      sync.Mutex
	cluster string
}

// WithDispatch returns a context under which routed calls record their
// selected cluster in the returned Dispatch.
func WithDispatch(ctx context.Context) (context.Context, *Dispatch) {
	d := &Dispatch{}
	return context.WithValue(ctx, dispatchKey{}, d), d
}

// Cluster returns the selected cluster, or "" if selection did not succeed.
func (d *Dispatch) Cluster() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cluster
}

func (r *Router) client(ctx context.Context, op, explicit, resourceName string, vmid *int) (pve.Client, string, error) {
	name, err := r.reg.SelectCluster(explicit, resourceName, vmid)
	if err != nil {
		return nil, "", err
	}
	if d, ok := ctx.Value(dispatchKey{}).(*Dispatch); ok {
		d.mu.Lock()
		d.cluster = name
		d.mu.Unlock()
	}
	c, err := r.reg.GetClient(ctx, name)
	if err != nil {
		return nil, name, err
	}
	metrics.RoutedOperations.WithLabelValues(name, op).Inc()
	r.log.Debugw("Routing operation", "operation", op, "cluster", name, "resource", resourceName)
	return c, name, nil
}

func route[T any](ctx context.Context, r *Router, op, explicit, resourceName string, vmid *int, call func(pve.Client) (T, error)) (T, error) {
	var zero T
	c, name, err := r.client(ctx, op, explicit, resourceName, vmid)
	if err != nil {
		return zero, err
	}
	out, err := call(c)
	if err != nil {
		metrics.RoutedOperationErrors.WithLabelValues(name, op).Inc()
		return out, err
	}
	return out, nil
}

func (r *Router) ListNodes(ctx context.Context, cluster string) ([]pve.Node, error) {
	return route(ctx, r, "ListNodes", cluster, "", nil, func(c pve.Client) ([]pve.Node, error) {
		return c.ListNodes(ctx)
	})
}

func (r *Router) NodeStatus(ctx context.Context, node, cluster string) (*pve.NodeStatus, error) {
	return route(ctx, r, "NodeStatus", cluster, "", nil, func(c pve.Client) (*pve.NodeStatus, error) {
		return c.NodeStatus(ctx, node)
	})
}

func (r *Router) ListVMs(ctx context.Context, opts pve.ListOptions, cluster string) ([]pve.Resource, error) {
	return route(ctx, r, "ListVMs", cluster, "", nil, func(c pve.Client) ([]pve.Resource, error) {
		return c.ListVMs(ctx, opts)
	})
}

func (r *Router) ListLXC(ctx context.Context, opts pve.ListOptions, cluster string) ([]pve.Resource, error) {
	return route(ctx, r, "ListLXC", cluster, "", nil, func(c pve.Client) ([]pve.Resource, error) {
		return c.ListLXC(ctx, opts)
	})
}

// ResolveVM uses the queried name as the placement hint.
func (r *Router) ResolveVM(ctx context.Context, q pve.ResolveQuery, cluster string) (*pve.ResolvedResource, error) {
	return route(ctx, r, "ResolveVM", cluster, q.Name, q.VMID, func(c pve.Client) (*pve.ResolvedResource, error) {
		return c.ResolveVM(ctx, q)
	})
}

// ResolveLXC uses the queried name as the placement hint.
func (r *Router) ResolveLXC(ctx context.Context, q pve.ResolveQuery, cluster string) (*pve.ResolvedResource, error) {
	return route(ctx, r, "ResolveLXC", cluster, q.Name, q.VMID, func(c pve.Client) (*pve.ResolvedResource, error) {
		return c.ResolveLXC(ctx, q)
	})
}

func (r *Router) VMConfig(ctx context.Context, node string, vmid int, cluster string) (pve.Config, error) {
	return route(ctx, r, "VMConfig", cluster, "", &vmid, func(c pve.Client) (pve.Config, error) {
		return c.VMConfig(ctx, node, vmid)
	})
}

func (r *Router) LXCConfig(ctx context.Context, node string, vmid int, cluster string) (pve.Config, error) {
	return route(ctx, r, "LXCConfig", cluster, "", &vmid, func(c pve.Client) (pve.Config, error) {
		return c.LXCConfig(ctx, node, vmid)
	})
}

func (r *Router) ListStorage(ctx context.Context, cluster string) ([]pve.Storage, error) {
	return route(ctx, r, "ListStorage", cluster, "", nil, func(c pve.Client) ([]pve.Storage, error) {
		return c.ListStorage(ctx)
	})
}

func (r *Router) StorageStatus(ctx context.Context, node, storage, cluster string) (*pve.StorageStatus, error) {
	return route(ctx, r, "StorageStatus", cluster, "", nil, func(c pve.Client) (*pve.StorageStatus, error) {
		return c.StorageStatus(ctx, node, storage)
	})
}

func (r *Router) StorageContent(ctx context.Context, node, storage, cluster string) ([]pve.StorageContent, error) {
	return route(ctx, r, "StorageContent", cluster, "", nil, func(c pve.Client) ([]pve.StorageContent, error) {
		return c.StorageContent(ctx, node, storage)
	})
}

func (r *Router) ListBridges(ctx context.Context, node, cluster string) ([]pve.Bridge, error) {
	return route(ctx, r, "ListBridges", cluster, "", nil, func(c pve.Client) ([]pve.Bridge, error) {
		return c.ListBridges(ctx, node)
	})
}

func (r *Router) ListTasks(ctx context.Context, filter pve.TaskFilter, cluster string) ([]pve.Task, error) {
	return route(ctx, r, "ListTasks", cluster, "", nil, func(c pve.Client) ([]pve.Task, error) {
		return c.ListTasks(ctx, filter)
	})
}

func (r *Router) TaskStatus(ctx context.Context, upid, node, cluster string) (*pve.TaskStatus, error) {
	return route(ctx, r, "TaskStatus", cluster, "", nil, func(c pve.Client) (*pve.TaskStatus, error) {
		return c.TaskStatus(ctx, upid, node)
	})
}

// CloneVM uses the clone's name as the placement hint.
func (r *Router) CloneVM(ctx context.Context, opts pve.CloneVMOptions, cluster string) (string, error) {
	return route(ctx, r, "CloneVM", cluster, opts.Name, &opts.NewVMID, func(c pve.Client) (string, error) {
		return c.CloneVM(ctx, opts)
	})
}

// CreateVM uses the VM name as the placement hint.
func (r *Router) CreateVM(ctx context.Context, opts pve.CreateVMOptions, cluster string) (string, error) {
	return route(ctx, r, "CreateVM", cluster, opts.Name, &opts.VMID, func(c pve.Client) (string, error) {
		return c.CreateVM(ctx, opts)
	})
}

func (r *Router) DeleteVM(ctx context.Context, node string, vmid int, purge bool, cluster string) (string, error) {
	return route(ctx, r, "DeleteVM", cluster, "", &vmid, func(c pve.Client) (string, error) {
		return c.DeleteVM(ctx, node, vmid, purge)
	})
}

func (r *Router) StartVM(ctx context.Context, node string, vmid int, cluster string) (string, error) {
	return route(ctx, r, "StartVM", cluster, "", &vmid, func(c pve.Client) (string, error) {
		return c.StartVM(ctx, node, vmid)
	})
}

func (r *Router) StopVM(ctx context.Context, node string, vmid int, opts pve.StopOptions, cluster string) (string, error) {
	return route(ctx, r, "StopVM", cluster, "", &vmid, func(c pve.Client) (string, error) {
		return c.StopVM(ctx, node, vmid, opts)
	})
}

func (r *Router) RebootVM(ctx context.Context, node string, vmid int, cluster string) (string, error) {
	return route(ctx, r, "RebootVM", cluster, "", &vmid, func(c pve.Client) (string, error) {
		return c.RebootVM(ctx, node, vmid)
	})
}

func (r *Router) ShutdownVM(ctx context.Context, node string, vmid int, timeout *int, cluster string) (string, error) {
	return route(ctx, r, "ShutdownVM", cluster, "", &vmid, func(c pve.Client) (string, error) {
		return c.ShutdownVM(ctx, node, vmid, timeout)
	})
}

func (r *Router) MigrateVM(ctx context.Context, node string, vmid int, targetNode string, online bool, cluster string) (string, error) {
	return route(ctx, r, "MigrateVM", cluster, "", &vmid, func(c pve.Client) (string, error) {
		return c.MigrateVM(ctx, node, vmid, targetNode, online)
	})
}

func (r *Router) ResizeVMDisk(ctx context.Context, node string, vmid int, disk string, sizeGB int, cluster string) (string, error) {
	return route(ctx, r, "ResizeVMDisk", cluster, "", &vmid, func(c pve.Client) (string, error) {
		return c.ResizeVMDisk(ctx, node, vmid, disk, sizeGB)
	})
}

func (r *Router) ConfigureVM(ctx context.Context, node string, vmid int, params map[string]string, cluster string) (string, error) {
	return route(ctx, r, "ConfigureVM", cluster, "", &vmid, func(c pve.Client) (string, error) {
		return c.ConfigureVM(ctx, node, vmid, params)
	})
}

// CreateLXC uses the hostname as the placement hint.
func (r *Router) CreateLXC(ctx context.Context, opts pve.CreateLXCOptions, cluster string) (string, error) {
	return route(ctx, r, "CreateLXC", cluster, opts.Hostname, &opts.VMID, func(c pve.Client) (string, error) {
		return c.CreateLXC(ctx, opts)
	})
}

func (r *Router) DeleteLXC(ctx context.Context, node string, vmid int, purge bool, cluster string) (string, error) {
	return route(ctx, r, "DeleteLXC", cluster, "", &vmid, func(c pve.Client) (string, error) {
		return c.DeleteLXC(ctx, node, vmid, purge)
	})
}

func (r *Router) StartLXC(ctx context.Context, node string, vmid int, cluster string) (string, error) {
	return route(ctx, r, "StartLXC", cluster, "", &vmid, func(c pve.Client) (string, error) {
		return c.StartLXC(ctx, node, vmid)
	})
}

func (r *Router) StopLXC(ctx context.Context, node string, vmid int, timeout *int, cluster string) (string, error) {
	return route(ctx, r, "StopLXC", cluster, "", &vmid, func(c pve.Client) (string, error) {
		return c.StopLXC(ctx, node, vmid, timeout)
	})
}

func (r *Router) ConfigureLXC(ctx context.Context, node string, vmid int, params map[string]string, cluster string) (string, error) {
	return route(ctx, r, "ConfigureLXC", cluster, "", &vmid, func(c pve.Client) (string, error) {
		return c.ConfigureLXC(ctx, node, vmid, params)
	})
}

func (r *Router) ListClusters() []string {
	return r.reg.ListClusters()
}

func (r *Router) ClusterInfo(ctx context.Context, name string) (cluster.ClusterInfo, error) {
	return r.reg.ClusterInfo(ctx, name)
}

func (r *Router) ListAllClustersInfo(ctx context.Context) []cluster.ClusterInfo {
	return r.reg.ListAllClustersInfo(ctx)
}

func (r *Router) ValidateAllClusters(ctx context.Context) map[string]cluster.ValidationResult {
	return r.reg.ValidateAllClusters(ctx)
}
