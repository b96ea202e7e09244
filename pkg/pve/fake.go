package pve

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is an in-memory Client for tests. A set XxxFunc overrides the
// default behavior, which serves Nodes and Resources and answers mutations
// with a synthetic UPID.
type FakeClient struct {
	// Name identifies the fake in synthetic UPIDs and in test assertions
	Name      string
	Nodes     []Node
	Resources []Resource

	ListNodesFunc      func(ctx context.Context) ([]Node, error)
	NodeStatusFunc     func(ctx context.Context, node string) (*NodeStatus, error)
	ListVMsFunc        func(ctx context.Context, opts ListOptions) ([]Resource, error)
	ListLXCFunc        func(ctx context.Context, opts ListOptions) ([]Resource, error)
	ResolveVMFunc      func(ctx context.Context, q ResolveQuery) (*ResolvedResource, error)
	ResolveLXCFunc     func(ctx context.Context, q ResolveQuery) (*ResolvedResource, error)
	VMConfigFunc       func(ctx context.Context, node string, vmid int) (Config, error)
	LXCConfigFunc      func(ctx context.Context, node string, vmid int) (Config, error)
	ListStorageFunc    func(ctx context.Context) ([]Storage, error)
	StorageStatusFunc  func(ctx context.Context, node, storage string) (*StorageStatus, error)
	StorageContentFunc func(ctx context.Context, node, storage string) ([]StorageContent, error)
	ListBridgesFunc    func(ctx context.Context, node string) ([]Bridge, error)
	ListTasksFunc      func(ctx context.Context, filter TaskFilter) ([]Task, error)
	TaskStatusFunc     func(ctx context.Context, upid, node string) (*TaskStatus, error)

	CloneVMFunc      func(ctx context.Context, opts CloneVMOptions) (string, error)
	CreateVMFunc     func(ctx context.Context, opts CreateVMOptions) (string, error)
	DeleteVMFunc     func(ctx context.Context, node string, vmid int, purge bool) (string, error)
	StartVMFunc      func(ctx context.Context, node string, vmid int) (string, error)
	StopVMFunc       func(ctx context.Context, node string, vmid int, opts StopOptions) (string, error)
	RebootVMFunc     func(ctx context.Context, node string, vmid int) (string, error)
	ShutdownVMFunc   func(ctx context.Context, node string, vmid int, timeout *int) (string, error)
	MigrateVMFunc    func(ctx context.Context, node string, vmid int, targetNode string, online bool) (string, error)
	ResizeVMDiskFunc func(ctx context.Context, node string, vmid int, disk string, sizeGB int) (string, error)
	ConfigureVMFunc  func(ctx context.Context, node string, vmid int, params map[string]string) (string, error)

	CreateLXCFunc    func(ctx context.Context, opts CreateLXCOptions) (string, error)
	DeleteLXCFunc    func(ctx context.Context, node string, vmid int, purge bool) (string, error)
	StartLXCFunc     func(ctx context.Context, node string, vmid int) (string, error)
	StopLXCFunc      func(ctx context.Context, node string, vmid int, timeout *int) (string, error)
	ConfigureLXCFunc func(ctx context.Context, node string, vmid int, params map[string]string) (string, error)

	mu    sync.Mutex
	calls []string
}

// Ensure interface compliance
var _ Client = (*FakeClient)(nil)

func (f *FakeClient) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

// Calls returns the operations invoked so far, in order.
func (f *FakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeClient) upid(op string, node string, vmid int) string {
	return fmt.Sprintf("UPID:%s:%s:%d:%s", node, f.Name, vmid, op)
}

func (f *FakeClient) ListNodes(ctx context.Context) ([]Node, error) {
	f.record("ListNodes")
	if f.ListNodesFunc != nil {
		return f.ListNodesFunc(ctx)
	}
	return f.Nodes, nil
}

func (f *FakeClient) NodeStatus(ctx context.Context, node string) (*NodeStatus, error) {
	f.record("NodeStatus")
	if f.NodeStatusFunc != nil {
		return f.NodeStatusFunc(ctx, node)
	}
	return &NodeStatus{}, nil
}

func (f *FakeClient) ListVMs(ctx context.Context, opts ListOptions) ([]Resource, error) {
	f.record("ListVMs")
	if f.ListVMsFunc != nil {
		return f.ListVMsFunc(ctx, opts)
	}
	return FilterResources(f.Resources, TypeQemu, opts), nil
}

func (f *FakeClient) ListLXC(ctx context.Context, opts ListOptions) ([]Resource, error) {
	f.record("ListLXC")
	if f.ListLXCFunc != nil {
		return f.ListLXCFunc(ctx, opts)
	}
	return FilterResources(f.Resources, TypeLXC, opts), nil
}

func (f *FakeClient) ResolveVM(ctx context.Context, q ResolveQuery) (*ResolvedResource, error) {
	f.record("ResolveVM")
	if f.ResolveVMFunc != nil {
		return f.ResolveVMFunc(ctx, q)
	}
	return Resolve(f.Resources, TypeQemu, q)
}

func (f *FakeClient) ResolveLXC(ctx context.Context, q ResolveQuery) (*ResolvedResource, error) {
	f.record("ResolveLXC")
	if f.ResolveLXCFunc != nil {
		return f.ResolveLXCFunc(ctx, q)
	}
	return Resolve(f.Resources, TypeLXC, q)
}

func (f *FakeClient) VMConfig(ctx context.Context, node string, vmid int) (Config, error) {
	f.record("VMConfig")
	if f.VMConfigFunc != nil {
		return f.VMConfigFunc(ctx, node, vmid)
	}
	return Config{}, nil
}

func (f *FakeClient) LXCConfig(ctx context.Context, node string, vmid int) (Config, error) {
	f.record("LXCConfig")
	if f.LXCConfigFunc != nil {
		return f.LXCConfigFunc(ctx, node, vmid)
	}
	return Config{}, nil
}

func (f *FakeClient) ListStorage(ctx context.Context) ([]Storage, error) {
	f.record("ListStorage")
	if f.ListStorageFunc != nil {
		return f.ListStorageFunc(ctx)
	}
	return nil, nil
}

func (f *FakeClient) StorageStatus(ctx context.Context, node, storage string) (*StorageStatus, error) {
	f.record("StorageStatus")
	if f.StorageStatusFunc != nil {
		return f.StorageStatusFunc(ctx, node, storage)
	}
	return &StorageStatus{}, nil
}

func (f *FakeClient) StorageContent(ctx context.Context, node, storage string) ([]StorageContent, error) {
	f.record("StorageContent")
	if f.StorageContentFunc != nil {
		return f.StorageContentFunc(ctx, node, storage)
	}
	return nil, nil
}

func (f *FakeClient) ListBridges(ctx context.Context, node string) ([]Bridge, error) {
	f.record("ListBridges")
	if f.ListBridgesFunc != nil {
		return f.ListBridgesFunc(ctx, node)
	}
	return nil, nil
}

func (f *FakeClient) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	f.record("ListTasks")
	if f.ListTasksFunc != nil {
		return f.ListTasksFunc(ctx, filter)
	}
	return nil, nil
}

func (f *FakeClient) TaskStatus(ctx context.Context, upid, node string) (*TaskStatus, error) {
	f.record("TaskStatus")
	if f.TaskStatusFunc != nil {
		return f.TaskStatusFunc(ctx, upid, node)
	}
	return &TaskStatus{UPID: upid, Node: node, Status: "stopped", ExitStatus: "OK"}, nil
}

func (f *FakeClient) CloneVM(ctx context.Context, opts CloneVMOptions) (string, error) {
	f.record("CloneVM")
	if f.CloneVMFunc != nil {
		return f.CloneVMFunc(ctx, opts)
	}
	return f.upid("qmclone", opts.SourceNode, opts.SourceVMID), nil
}

func (f *FakeClient) CreateVM(ctx context.Context, opts CreateVMOptions) (string, error) {
	f.record("CreateVM")
	if f.CreateVMFunc != nil {
		return f.CreateVMFunc(ctx, opts)
	}
	return f.upid("qmcreate", opts.Node, opts.VMID), nil
}

func (f *FakeClient) DeleteVM(ctx context.Context, node string, vmid int, purge bool) (string, error) {
	f.record("DeleteVM")
	if f.DeleteVMFunc != nil {
		return f.DeleteVMFunc(ctx, node, vmid, purge)
	}
	return f.upid("qmdestroy", node, vmid), nil
}

func (f *FakeClient) StartVM(ctx context.Context, node string, vmid int) (string, error) {
	f.record("StartVM")
	if f.StartVMFunc != nil {
		return f.StartVMFunc(ctx, node, vmid)
	}
	return f.upid("qmstart", node, vmid), nil
}

func (f *FakeClient) StopVM(ctx context.Context, node string, vmid int, opts StopOptions) (string, error) {
	f.record("StopVM")
	if f.StopVMFunc != nil {
		return f.StopVMFunc(ctx, node, vmid, opts)
	}
	return f.upid("qmstop", node, vmid), nil
}

func (f *FakeClient) RebootVM(ctx context.Context, node string, vmid int) (string, error) {
	f.record("RebootVM")
	if f.RebootVMFunc != nil {
		return f.RebootVMFunc(ctx, node, vmid)
	}
	return f.upid("qmreboot", node, vmid), nil
}

func (f *FakeClient) ShutdownVM(ctx context.Context, node string, vmid int, timeout *int) (string, error) {
	f.record("ShutdownVM")
	if f.ShutdownVMFunc != nil {
		return f.ShutdownVMFunc(ctx, node, vmid, timeout)
	}
	return f.upid("qmshutdown", node, vmid), nil
}

func (f *FakeClient) MigrateVM(ctx context.Context, node string, vmid int, targetNode string, online bool) (string, error) {
	f.record("MigrateVM")
	if f.MigrateVMFunc != nil {
		return f.MigrateVMFunc(ctx, node, vmid, targetNode, online)
	}
	return f.upid("qmigrate", node, vmid), nil
}

func (f *FakeClient) ResizeVMDisk(ctx context.Context, node string, vmid int, disk string, sizeGB int) (string, error) {
	f.record("ResizeVMDisk")
	if f.ResizeVMDiskFunc != nil {
		return f.ResizeVMDiskFunc(ctx, node, vmid, disk, sizeGB)
	}
	return f.upid("resize", node, vmid), nil
}

func (f *FakeClient) ConfigureVM(ctx context.Context, node string, vmid int, params map[string]string) (string, error) {
	f.record("ConfigureVM")
	if f.ConfigureVMFunc != nil {
		return f.ConfigureVMFunc(ctx, node, vmid, params)
	}
	return f.upid("qmconfig", node, vmid), nil
}

func (f *FakeClient) CreateLXC(ctx context.Context, opts CreateLXCOptions) (string, error) {
	f.record("CreateLXC")
	if f.CreateLXCFunc != nil {
		return f.CreateLXCFunc(ctx, opts)
	}
	return f.upid("vzcreate", opts.Node, opts.VMID), nil
}

func (f *FakeClient) DeleteLXC(ctx context.Context, node string, vmid int, purge bool) (string, error) {
	f.record("DeleteLXC")
	if f.DeleteLXCFunc != nil {
		return f.DeleteLXCFunc(ctx, node, vmid, purge)
	}
	return f.upid("vzdestroy", node, vmid), nil
}

func (f *FakeClient) StartLXC(ctx context.Context, node string, vmid int) (string, error) {
	f.record("StartLXC")
	if f.StartLXCFunc != nil {
		return f.StartLXCFunc(ctx, node, vmid)
	}
	return f.upid("vzstart", node, vmid), nil
}

func (f *FakeClient) StopLXC(ctx context.Context, node string, vmid int, timeout *int) (string, error) {
	f.record("StopLXC")
	if f.StopLXCFunc != nil {
		return f.StopLXCFunc(ctx, node, vmid, timeout)
	}
	return f.upid("vzstop", node, vmid), nil
}

func (f *FakeClient) ConfigureLXC(ctx context.Context, node string, vmid int, params map[string]string) (string, error) {
	f.record("ConfigureLXC")
	if f.ConfigureLXCFunc != nil {
		return f.ConfigureLXCFunc(ctx, node, vmid, params)
	}
	return "", nil
}
