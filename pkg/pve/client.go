// Package pve talks to the Proxmox VE REST API.
package pve

import "context"

// Client is the per-cluster operation surface. Every asynchronous mutation
// returns the UPID of the task Proxmox started for it.
type Client interface {
	ListNodes(ctx context.Context) ([]Node, error)
	NodeStatus(ctx context.Context, node string) (*NodeStatus, error)

	ListVMs(ctx context.Context, opts ListOptions) ([]Resource, error)
	ListLXC(ctx context.Context, opts ListOptions) ([]Resource, error)
	ResolveVM(ctx context.Context, q ResolveQuery) (*ResolvedResource, error)
	ResolveLXC(ctx context.Context, q ResolveQuery) (*ResolvedResource, error)
	VMConfig(ctx context.Context, node string, vmid int) (Config, error)
	LXCConfig(ctx context.Context, node string, vmid int) (Config, error)

	ListStorage(ctx context.Context) ([]Storage, error)
	StorageStatus(ctx context.Context, node, storage string) (*StorageStatus, error)
	StorageContent(ctx context.Context, node, storage string) ([]StorageContent, error)
	ListBridges(ctx context.Context, node string) ([]Bridge, error)

	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	TaskStatus(ctx context.Context, upid, node string) (*TaskStatus, error)

	CloneVM(ctx context.Context, opts CloneVMOptions) (string, error)
	CreateVM(ctx context.Context, opts CreateVMOptions) (string, error)
	DeleteVM(ctx context.Context, node string, vmid int, purge bool) (string, error)
	StartVM(ctx context.Context, node string, vmid int) (string, error)
	StopVM(ctx context.Context, node string, vmid int, opts StopOptions) (string, error)
	RebootVM(ctx context.Context, node string, vmid int) (string, error)
	ShutdownVM(ctx context.Context, node string, vmid int, timeout *int) (string, error)
	MigrateVM(ctx context.Context, node string, vmid int, targetNode string, online bool) (string, error)
	ResizeVMDisk(ctx context.Context, node string, vmid int, disk string, sizeGB int) (string, error)
	ConfigureVM(ctx context.Context, node string, vmid int, params map[string]string) (string, error)

	CreateLXC(ctx context.Context, opts CreateLXCOptions) (string, error)
	DeleteLXC(ctx context.Context, node string, vmid int, purge bool) (string, error)
	StartLXC(ctx context.Context, node string, vmid int) (string, error)
	StopLXC(ctx context.Context, node string, vmid int, timeout *int) (string, error)
	ConfigureLXC(ctx context.Context, node string, vmid int, params map[string]string) (string, error)
}
