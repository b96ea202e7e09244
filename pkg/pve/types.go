package pve

// Node is one entry of GET /nodes.
type Node struct {
	Node    string  `json:"node" yaml:"node"`
	Status  string  `json:"status" yaml:"status"`
	CPU     float64 `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	MaxCPU  int     `json:"maxcpu,omitempty" yaml:"maxcpu,omitempty"`
	Mem     int64   `json:"mem,omitempty" yaml:"mem,omitempty"`
	MaxMem  int64   `json:"maxmem,omitempty" yaml:"maxmem,omitempty"`
	Disk    int64   `json:"disk,omitempty" yaml:"disk,omitempty"`
	MaxDisk int64   `json:"maxdisk,omitempty" yaml:"maxdisk,omitempty"`
	Uptime  int64   `json:"uptime,omitempty" yaml:"uptime,omitempty"`
}

// Usage is a total/used/free triple as reported by node status.
type Usage struct {
	Total int64 `json:"total" yaml:"total"`
	Used  int64 `json:"used" yaml:"used"`
	Free  int64 `json:"free" yaml:"free"`
}

// NodeStatus is the payload of GET /nodes/{node}/status.
type NodeStatus struct {
	Uptime     int64    `json:"uptime" yaml:"uptime"`
	CPU        float64  `json:"cpu" yaml:"cpu"`
	LoadAvg    []string `json:"loadavg,omitempty" yaml:"loadavg,omitempty"`
	KVersion   string   `json:"kversion,omitempty" yaml:"kversion,omitempty"`
	PVEVersion string   `json:"pveversion,omitempty" yaml:"pveversion,omitempty"`
	Memory     Usage    `json:"memory" yaml:"memory"`
	Swap       Usage    `json:"swap" yaml:"swap"`
	RootFS     Usage    `json:"rootfs" yaml:"rootfs"`
	CPUInfo    struct {
		CPUs    int    `json:"cpus" yaml:"cpus"`
		Cores   int    `json:"cores" yaml:"cores"`
		Sockets int    `json:"sockets" yaml:"sockets"`
		Model   string `json:"model" yaml:"model"`
	} `json:"cpuinfo" yaml:"cpuinfo"`
}

// Guest types as reported by /cluster/resources.
const (
	TypeQemu = "qemu"
	TypeLXC  = "lxc"
)

// Resource is a VM or container entry of /cluster/resources?type=vm.
type Resource struct {
	VMID     int     `json:"vmid" yaml:"vmid"`
	Name     string  `json:"name" yaml:"name"`
	Node     string  `json:"node" yaml:"node"`
	Type     string  `json:"type" yaml:"type"`
	Status   string  `json:"status" yaml:"status"`
	CPU      float64 `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	MaxCPU   int     `json:"maxcpu,omitempty" yaml:"maxcpu,omitempty"`
	Mem      int64   `json:"mem,omitempty" yaml:"mem,omitempty"`
	MaxMem   int64   `json:"maxmem,omitempty" yaml:"maxmem,omitempty"`
	Disk     int64   `json:"disk,omitempty" yaml:"disk,omitempty"`
	MaxDisk  int64   `json:"maxdisk,omitempty" yaml:"maxdisk,omitempty"`
	Uptime   int64   `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Template int     `json:"template,omitempty" yaml:"template,omitempty"`
	Tags     string  `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// ResolvedResource is the result of resolving a guest by id or name.
type ResolvedResource struct {
	VMID     int      `json:"vmid" yaml:"vmid"`
	Node     string   `json:"node" yaml:"node"`
	Resource Resource `json:"resource" yaml:"resource"`
}

// Config is a guest configuration as returned by the config endpoints.
type Config map[string]any

// Storage is one entry of GET /storage.
type Storage struct {
	Storage string `json:"storage" yaml:"storage"`
	Type    string `json:"type" yaml:"type"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
	Nodes   string `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Shared  int    `json:"shared,omitempty" yaml:"shared,omitempty"`
	Disable int    `json:"disable,omitempty" yaml:"disable,omitempty"`
}

// StorageStatus is the payload of GET /nodes/{node}/storage/{storage}/status.
type StorageStatus struct {
	Type    string `json:"type" yaml:"type"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
	Total   int64  `json:"total" yaml:"total"`
	Used    int64  `json:"used" yaml:"used"`
	Avail   int64  `json:"avail" yaml:"avail"`
	Active  int    `json:"active" yaml:"active"`
	Enabled int    `json:"enabled" yaml:"enabled"`
	Shared  int    `json:"shared,omitempty" yaml:"shared,omitempty"`
}

// StorageContent is one volume stored on a storage.
type StorageContent struct {
	VolID   string `json:"volid" yaml:"volid"`
	Content string `json:"content" yaml:"content"`
	Format  string `json:"format,omitempty" yaml:"format,omitempty"`
	Size    int64  `json:"size,omitempty" yaml:"size,omitempty"`
	VMID    int    `json:"vmid,omitempty" yaml:"vmid,omitempty"`
	CTime   int64  `json:"ctime,omitempty" yaml:"ctime,omitempty"`
}

// Bridge is a bridge interface of a node.
type Bridge struct {
	Iface       string `json:"iface" yaml:"iface"`
	Type        string `json:"type" yaml:"type"`
	Active      int    `json:"active,omitempty" yaml:"active,omitempty"`
	Autostart   int    `json:"autostart,omitempty" yaml:"autostart,omitempty"`
	CIDR        string `json:"cidr,omitempty" yaml:"cidr,omitempty"`
	Gateway     string `json:"gateway,omitempty" yaml:"gateway,omitempty"`
	BridgePorts string `json:"bridge_ports,omitempty" yaml:"bridge_ports,omitempty"`
	Comments    string `json:"comments,omitempty" yaml:"comments,omitempty"`
}

// Task is one entry of a task list.
type Task struct {
	UPID      string `json:"upid" yaml:"upid"`
	Node      string `json:"node" yaml:"node"`
	Type      string `json:"type" yaml:"type"`
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	User      string `json:"user" yaml:"user"`
	Status    string `json:"status,omitempty" yaml:"status,omitempty"`
	StartTime int64  `json:"starttime" yaml:"starttime"`
	EndTime   int64  `json:"endtime,omitempty" yaml:"endtime,omitempty"`
}

// TaskStatus is the payload of GET /nodes/{node}/tasks/{upid}/status.
type TaskStatus struct {
	UPID       string `json:"upid" yaml:"upid"`
	Node       string `json:"node" yaml:"node"`
	Type       string `json:"type" yaml:"type"`
	ID         string `json:"id,omitempty" yaml:"id,omitempty"`
	User       string `json:"user" yaml:"user"`
	Status     string `json:"status" yaml:"status"`
	ExitStatus string `json:"exitstatus,omitempty" yaml:"exitstatus,omitempty"`
	PID        int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	StartTime  int64  `json:"starttime" yaml:"starttime"`
}

// ListOptions filters guest listings. Empty fields do not filter.
type ListOptions struct {
	Node   string
	Status string
	// Search matches a case-insensitive substring of the name or the vmid
	Search string
}

// ResolveQuery identifies a guest by VMID or, when VMID is nil, by exact name.
type ResolveQuery struct {
	VMID *int
	Name string
	Node string
}

// TaskFilter narrows a task listing. Limit <= 0 means DefaultTaskLimit.
type TaskFilter struct {
	Node  string
	User  string
	Limit int
}

// DefaultTaskLimit is the number of tasks returned when no limit is given.
const DefaultTaskLimit = 50

// CloneVMOptions describes a VM clone. Full defaults to true.
type CloneVMOptions struct {
	SourceNode string
	SourceVMID int
	TargetNode string
	NewVMID    int
	Name       string
	Full       *bool
	Storage    string
}

// CreateVMOptions describes a new QEMU VM. Zero values take the defaults below.
type CreateVMOptions struct {
	Node     string
	VMID     int
	Name     string
	Cores    int
	MemoryMB int
	DiskGB   int
	Storage  string
	Bridge   string
	ISO      string
	SCSIHW   string
	Agent    *bool
	OSType   string
}

// CreateLXCOptions describes a new container.
type CreateLXCOptions struct {
	Node       string
	VMID       int
	Hostname   string
	OSTemplate string
	Cores      int
	MemoryMB   int
	RootFSGB   int
	Storage    string
	Bridge     string
	// NetIP is the ip= value of net0, e.g. dhcp or 10.0.0.5/24
	NetIP string
}

// StopOptions controls a hard stop.
type StopOptions struct {
	// Force overrules a running shutdown task
	Force   bool
	Timeout *int
}

// Defaults applied by CreateVM and CreateLXC.
const (
	DefaultVMCores     = 2
	DefaultVMMemoryMB  = 2048
	DefaultVMDiskGB    = 20
	DefaultSCSIHW      = "virtio-scsi-pci"
	DefaultOSType      = "l26"
	DefaultLXCCores    = 2
	DefaultLXCMemoryMB = 1024
	DefaultLXCRootFSGB = 8
)
