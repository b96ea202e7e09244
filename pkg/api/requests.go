package api

import (
	"github.com/telekom/proxmox-multicluster/pkg/pve"
)

// TaskResponse answers every mutating request.
type TaskResponse struct {
	// UPID is empty for synchronous Proxmox calls
	UPID    string `json:"upid,omitempty"`
	Cluster string `json:"cluster"`
}

type CreateVMRequest struct {
	Node     string `json:"node" binding:"required"`
	VMID     int    `json:"vmid" binding:"required,min=100"`
	Name     string `json:"name" binding:"required"`
	Cores    int    `json:"cores,omitempty" binding:"omitempty,min=1"`
	MemoryMB int    `json:"memoryMB,omitempty" binding:"omitempty,min=16"`
	DiskGB   int    `json:"diskGB,omitempty" binding:"omitempty,min=1"`
	Storage  string `json:"storage,omitempty"`
	Bridge   string `json:"bridge,omitempty"`
	ISO      string `json:"iso,omitempty"`
	SCSIHW   string `json:"scsihw,omitempty"`
	Agent    *bool  `json:"agent,omitempty"`
	OSType   string `json:"ostype,omitempty"`
}

func (r CreateVMRequest) options() pve.CreateVMOptions {
	return pve.CreateVMOptions{
		Node:     r.Node,
		VMID:     r.VMID,
		Name:     r.Name,
		Cores:    r.Cores,
		MemoryMB: r.MemoryMB,
		DiskGB:   r.DiskGB,
		Storage:  r.Storage,
		Bridge:   r.Bridge,
		ISO:      r.ISO,
		SCSIHW:   r.SCSIHW,
		Agent:    r.Agent,
		OSType:   r.OSType,
	}
}

type CreateLXCRequest struct {
	Node       string `json:"node" binding:"required"`
	VMID       int    `json:"vmid" binding:"required,min=100"`
	Hostname   string `json:"hostname" binding:"required"`
	OSTemplate string `json:"ostemplate" binding:"required"`
	Cores      int    `json:"cores,omitempty" binding:"omitempty,min=1"`
	MemoryMB   int    `json:"memoryMB,omitempty" binding:"omitempty,min=16"`
	RootFSGB   int    `json:"rootfsGB,omitempty" binding:"omitempty,min=1"`
	Storage    string `json:"storage,omitempty"`
	Bridge     string `json:"bridge,omitempty"`
	NetIP      string `json:"ip,omitempty"`
}

func (r CreateLXCRequest) options() pve.CreateLXCOptions {
	return pve.CreateLXCOptions{
		Node:       r.Node,
		VMID:       r.VMID,
		Hostname:   r.Hostname,
		OSTemplate: r.OSTemplate,
		Cores:      r.Cores,
		MemoryMB:   r.MemoryMB,
		RootFSGB:   r.RootFSGB,
		Storage:    r.Storage,
		Bridge:     r.Bridge,
		NetIP:      r.NetIP,
	}
}

type CloneVMRequest struct {
	NewVMID    int    `json:"newid" binding:"required,min=100"`
	Name       string `json:"name,omitempty"`
	TargetNode string `json:"target,omitempty"`
	// Full defaults to true
	Full    *bool  `json:"full,omitempty"`
	Storage string `json:"storage,omitempty"`
}

type StopRequest struct {
	Force   bool `json:"force,omitempty"`
	Timeout *int `json:"timeout,omitempty" binding:"omitempty,min=0"`
}

type ShutdownRequest struct {
	Timeout *int `json:"timeout,omitempty" binding:"omitempty,min=0"`
}

type MigrateRequest struct {
	Target string `json:"target" binding:"required"`
	Online bool   `json:"online,omitempty"`
}

type ResizeRequest struct {
	Disk   string `json:"disk" binding:"required"`
	SizeGB int    `json:"sizeGB" binding:"required,min=1"`
}
