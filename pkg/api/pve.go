package api

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/proxmox-multicluster/pkg/apiresponses"
	"github.com/telekom/proxmox-multicluster/pkg/audit"
	"github.com/telekom/proxmox-multicluster/pkg/pve"
	"github.com/telekom/proxmox-multicluster/pkg/ratelimit"
	"github.com/telekom/proxmox-multicluster/pkg/router"
	"github.com/telekom/proxmox-multicluster/pkg/system"
)

// PVEController exposes the routed Proxmox operations. Every route accepts
// ?cluster= to pick the cluster explicitly; otherwise guest names in the
// request are used as placement hints and the default cluster serves the rest.
type PVEController struct {
	router          *router.Router
	recorder        *audit.Recorder
	mutationLimiter *ratelimit.Limiter
	log             *zap.SugaredLogger
}

var _ APIController = (*PVEController)(nil)

func NewPVEController(r *router.Router, recorder *audit.Recorder, mutationLimit ratelimit.Config, log *zap.SugaredLogger) *PVEController {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PVEController{
		router:          r,
		recorder:        recorder,
		mutationLimiter: ratelimit.NewKeyed("mutation", mutationLimit, ratelimit.ByClientAndCluster),
		log:             log,
	}
}

func (pc *PVEController) BasePath() string {
	return "pve"
}

func (pc *PVEController) Handlers() []gin.HandlerFunc {
	return nil
}

// Close stops the mutation rate limiter.
func (pc *PVEController) Close() {
	pc.mutationLimiter.Stop()
}

func (pc *PVEController) Register(rg *gin.RouterGroup) error {
	rg.GET("nodes", pc.handleListNodes)
	rg.GET("nodes/:node/status", pc.handleNodeStatus)
	rg.GET("nodes/:node/bridges", pc.handleListBridges)
	rg.GET("nodes/:node/storage/:storage/status", pc.handleStorageStatus)
	rg.GET("nodes/:node/storage/:storage/content", pc.handleStorageContent)
	rg.GET("storage", pc.handleListStorage)
	rg.GET("tasks", pc.handleListTasks)
	rg.GET("tasks/:upid", pc.handleTaskStatus)

	rg.GET("vms", pc.handleListVMs)
	rg.GET("vms/resolve", pc.handleResolve(pve.TypeQemu))
	rg.GET("nodes/:node/vms/:vmid/config", pc.handleGuestConfig(pve.TypeQemu))
	rg.GET("lxc", pc.handleListLXC)
	rg.GET("lxc/resolve", pc.handleResolve(pve.TypeLXC))
	rg.GET("nodes/:node/lxc/:vmid/config", pc.handleGuestConfig(pve.TypeLXC))

	m := rg.Group("", pc.mutationLimiter.Middleware())
	m.POST("vms", pc.handleCreateVM)
	m.DELETE("nodes/:node/vms/:vmid", pc.handleDeleteVM)
	m.PUT("nodes/:node/vms/:vmid/config", pc.handleConfigureVM)
	m.POST("nodes/:node/vms/:vmid/start", pc.handleStartVM)
	m.POST("nodes/:node/vms/:vmid/stop", pc.handleStopVM)
	m.POST("nodes/:node/vms/:vmid/reboot", pc.handleRebootVM)
	m.POST("nodes/:node/vms/:vmid/shutdown", pc.handleShutdownVM)
	m.POST("nodes/:node/vms/:vmid/migrate", pc.handleMigrateVM)
	m.POST("nodes/:node/vms/:vmid/clone", pc.handleCloneVM)
	m.POST("nodes/:node/vms/:vmid/resize", pc.handleResizeVM)

	m.POST("lxc", pc.handleCreateLXC)
	m.DELETE("nodes/:node/lxc/:vmid", pc.handleDeleteLXC)
	m.PUT("nodes/:node/lxc/:vmid/config", pc.handleConfigureLXC)
	m.POST("nodes/:node/lxc/:vmid/start", pc.handleStartLXC)
	m.POST("nodes/:node/lxc/:vmid/stop", pc.handleStopLXC)
	return nil
}

// respond writes v or the mapped error.
func (pc *PVEController) respond(c *gin.Context, op string, v interface{}, err error) {
	if err != nil {
		apiresponses.RespondError(c, op, err, system.GetReqLogger(c, pc.log))
		return
	}
	apiresponses.RespondOK(c, v)
}

// mutate runs a task-starting operation, records its audit event and answers
// 202 with the task id, or 200 when Proxmox completed the call synchronously.
func (pc *PVEController) mutate(c *gin.Context, op string, target audit.Target, details map[string]interface{}, call func(ctx context.Context, cluster string) (string, error)) {
	ctx, dispatch := router.WithDispatch(c.Request.Context())
	upid, err := call(ctx, c.Query("cluster"))

	ev := newEvent(c, op)
	ev.Cluster = dispatch.Cluster()
	ev.Target = target
	ev.UPID = upid
	ev.Details = details
	if err != nil {
		ev.Error = err.Error()
	}
	pc.recorder.Record(ev)

	log := system.GetReqLogger(c, pc.log)
	if err != nil {
		apiresponses.RespondError(c, op, err, log)
		return
	}
	log.Infow("Operation started", append(system.ClusterFields(ev.Cluster, target.VMID), "operation", op, "upid", upid)...)

	resp := TaskResponse{UPID: upid, Cluster: ev.Cluster}
	if upid == "" {
		apiresponses.RespondOK(c, resp)
		return
	}
	apiresponses.RespondAccepted(c, resp)
}

// guestPath reads :node and :vmid. It answers 400 and returns false when
// the vmid is not a number.
func guestPath(c *gin.Context) (string, int, bool) {
	vmid, err := strconv.Atoi(c.Param("vmid"))
	if err != nil || vmid <= 0 {
		apiresponses.RespondBadRequest(c, fmt.Sprintf("invalid vmid %q", c.Param("vmid")))
		return "", 0, false
	}
	return c.Param("node"), vmid, true
}

// bindJSON binds a required request body.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid request body", err.Error())
		return false
	}
	return true
}

// bindOptionalJSON binds the body when one was sent.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dst)
}

func listOptions(c *gin.Context) pve.ListOptions {
	return pve.ListOptions{
		Node:   c.Query("node"),
		Status: c.Query("status"),
		Search: c.Query("search"),
	}
}

func (pc *PVEController) handleListNodes(c *gin.Context) {
	nodes, err := pc.router.ListNodes(c.Request.Context(), c.Query("cluster"))
	pc.respond(c, "list nodes", nodes, err)
}

func (pc *PVEController) handleNodeStatus(c *gin.Context) {
	status, err := pc.router.NodeStatus(c.Request.Context(), c.Param("node"), c.Query("cluster"))
	pc.respond(c, "get node status", status, err)
}

func (pc *PVEController) handleListBridges(c *gin.Context) {
	bridges, err := pc.router.ListBridges(c.Request.Context(), c.Param("node"), c.Query("cluster"))
	pc.respond(c, "list bridges", bridges, err)
}

func (pc *PVEController) handleListStorage(c *gin.Context) {
	storage, err := pc.router.ListStorage(c.Request.Context(), c.Query("cluster"))
	pc.respond(c, "list storage", storage, err)
}

func (pc *PVEController) handleStorageStatus(c *gin.Context) {
	status, err := pc.router.StorageStatus(c.Request.Context(), c.Param("node"), c.Param("storage"), c.Query("cluster"))
	pc.respond(c, "get storage status", status, err)
}

func (pc *PVEController) handleStorageContent(c *gin.Context) {
	content, err := pc.router.StorageContent(c.Request.Context(), c.Param("node"), c.Param("storage"), c.Query("cluster"))
	pc.respond(c, "list storage content", content, err)
}

func (pc *PVEController) handleListTasks(c *gin.Context) {
	filter := pve.TaskFilter{Node: c.Query("node"), User: c.Query("user")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			apiresponses.RespondBadRequest(c, "limit must be an integer")
			return
		}
		filter.Limit = limit
	}
	tasks, err := pc.router.ListTasks(c.Request.Context(), filter, c.Query("cluster"))
	pc.respond(c, "list tasks", tasks, err)
}

func (pc *PVEController) handleTaskStatus(c *gin.Context) {
	status, err := pc.router.TaskStatus(c.Request.Context(), c.Param("upid"), c.Query("node"), c.Query("cluster"))
	pc.respond(c, "get task status", status, err)
}

func (pc *PVEController) handleListVMs(c *gin.Context) {
	vms, err := pc.router.ListVMs(c.Request.Context(), listOptions(c), c.Query("cluster"))
	pc.respond(c, "list VMs", vms, err)
}

func (pc *PVEController) handleListLXC(c *gin.Context) {
	cts, err := pc.router.ListLXC(c.Request.Context(), listOptions(c), c.Query("cluster"))
	pc.respond(c, "list containers", cts, err)
}

// handleResolve looks a guest up by ?vmid= or ?name=.
func (pc *PVEController) handleResolve(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := pve.ResolveQuery{Name: c.Query("name"), Node: c.Query("node")}
		if raw := c.Query("vmid"); raw != "" {
			vmid, err := strconv.Atoi(raw)
			if err != nil {
				apiresponses.RespondBadRequest(c, "vmid must be an integer")
				return
			}
			q.VMID = &vmid
		}
		if q.VMID == nil && q.Name == "" {
			apiresponses.RespondBadRequest(c, "vmid or name is required")
			return
		}

		ctx := c.Request.Context()
		var (
			res *pve.ResolvedResource
			err error
		)
		if kind == pve.TypeLXC {
			res, err = pc.router.ResolveLXC(ctx, q, c.Query("cluster"))
		} else {
			res, err = pc.router.ResolveVM(ctx, q, c.Query("cluster"))
		}
		pc.respond(c, "resolve guest", res, err)
	}
}

func (pc *PVEController) handleGuestConfig(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		node, vmid, ok := guestPath(c)
		if !ok {
			return
		}
		var (
			cfg pve.Config
			err error
		)
		if kind == pve.TypeLXC {
			cfg, err = pc.router.LXCConfig(c.Request.Context(), node, vmid, c.Query("cluster"))
		} else {
			cfg, err = pc.router.VMConfig(c.Request.Context(), node, vmid, c.Query("cluster"))
		}
		pc.respond(c, "get guest config", cfg, err)
	}
}

func (pc *PVEController) handleCreateVM(c *gin.Context) {
	var req CreateVMRequest
	if !bindJSON(c, &req) {
		return
	}
	target := audit.Target{Kind: pve.TypeQemu, Node: req.Node, VMID: req.VMID, Name: req.Name}
	details := map[string]interface{}{"cores": req.Cores, "memoryMB": req.MemoryMB, "diskGB": req.DiskGB}
	pc.mutate(c, "CreateVM", target, details, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.CreateVM(ctx, req.options(), cluster)
	})
}

func (pc *PVEController) handleCloneVM(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	var req CloneVMRequest
	if !bindJSON(c, &req) {
		return
	}
	opts := pve.CloneVMOptions{
		SourceNode: node,
		SourceVMID: vmid,
		TargetNode: req.TargetNode,
		NewVMID:    req.NewVMID,
		Name:       req.Name,
		Full:       req.Full,
		Storage:    req.Storage,
	}
	target := audit.Target{Kind: pve.TypeQemu, Node: node, VMID: req.NewVMID, Name: req.Name}
	details := map[string]interface{}{"sourceVMID": vmid}
	pc.mutate(c, "CloneVM", target, details, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.CloneVM(ctx, opts, cluster)
	})
}

func (pc *PVEController) handleDeleteVM(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	purge := c.Query("purge") == "true"
	target := audit.Target{Kind: pve.TypeQemu, Node: node, VMID: vmid}
	pc.mutate(c, "DeleteVM", target, map[string]interface{}{"purge": purge}, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.DeleteVM(ctx, node, vmid, purge, cluster)
	})
}

func (pc *PVEController) handleStartVM(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	target := audit.Target{Kind: pve.TypeQemu, Node: node, VMID: vmid}
	pc.mutate(c, "StartVM", target, nil, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.StartVM(ctx, node, vmid, cluster)
	})
}

func (pc *PVEController) handleStopVM(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	var req StopRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	target := audit.Target{Kind: pve.TypeQemu, Node: node, VMID: vmid}
	pc.mutate(c, "StopVM", target, map[string]interface{}{"force": req.Force}, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.StopVM(ctx, node, vmid, pve.StopOptions{Force: req.Force, Timeout: req.Timeout}, cluster)
	})
}

func (pc *PVEController) handleRebootVM(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	target := audit.Target{Kind: pve.TypeQemu, Node: node, VMID: vmid}
	pc.mutate(c, "RebootVM", target, nil, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.RebootVM(ctx, node, vmid, cluster)
	})
}

func (pc *PVEController) handleShutdownVM(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	var req ShutdownRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	target := audit.Target{Kind: pve.TypeQemu, Node: node, VMID: vmid}
	pc.mutate(c, "ShutdownVM", target, nil, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.ShutdownVM(ctx, node, vmid, req.Timeout, cluster)
	})
}

func (pc *PVEController) handleMigrateVM(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	var req MigrateRequest
	if !bindJSON(c, &req) {
		return
	}
	target := audit.Target{Kind: pve.TypeQemu, Node: node, VMID: vmid}
	details := map[string]interface{}{"targetNode": req.Target, "online": req.Online}
	pc.mutate(c, "MigrateVM", target, details, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.MigrateVM(ctx, node, vmid, req.Target, req.Online, cluster)
	})
}

func (pc *PVEController) handleResizeVM(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	var req ResizeRequest
	if !bindJSON(c, &req) {
		return
	}
	target := audit.Target{Kind: pve.TypeQemu, Node: node, VMID: vmid}
	details := map[string]interface{}{"disk": req.Disk, "sizeGB": req.SizeGB}
	pc.mutate(c, "ResizeVMDisk", target, details, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.ResizeVMDisk(ctx, node, vmid, req.Disk, req.SizeGB, cluster)
	})
}

func (pc *PVEController) handleConfigureVM(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	params, ok := bindParams(c)
	if !ok {
		return
	}
	target := audit.Target{Kind: pve.TypeQemu, Node: node, VMID: vmid}
	pc.mutate(c, "ConfigureVM", target, paramDetails(params), func(ctx context.Context, cluster string) (string, error) {
		return pc.router.ConfigureVM(ctx, node, vmid, params, cluster)
	})
}

func (pc *PVEController) handleCreateLXC(c *gin.Context) {
	var req CreateLXCRequest
	if !bindJSON(c, &req) {
		return
	}
	target := audit.Target{Kind: pve.TypeLXC, Node: req.Node, VMID: req.VMID, Name: req.Hostname}
	details := map[string]interface{}{"ostemplate": req.OSTemplate, "cores": req.Cores, "memoryMB": req.MemoryMB}
	pc.mutate(c, "CreateLXC", target, details, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.CreateLXC(ctx, req.options(), cluster)
	})
}

func (pc *PVEController) handleDeleteLXC(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	purge := c.Query("purge") == "true"
	target := audit.Target{Kind: pve.TypeLXC, Node: node, VMID: vmid}
	pc.mutate(c, "DeleteLXC", target, map[string]interface{}{"purge": purge}, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.DeleteLXC(ctx, node, vmid, purge, cluster)
	})
}

func (pc *PVEController) handleStartLXC(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	target := audit.Target{Kind: pve.TypeLXC, Node: node, VMID: vmid}
	pc.mutate(c, "StartLXC", target, nil, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.StartLXC(ctx, node, vmid, cluster)
	})
}

func (pc *PVEController) handleStopLXC(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	var req ShutdownRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	target := audit.Target{Kind: pve.TypeLXC, Node: node, VMID: vmid}
	pc.mutate(c, "StopLXC", target, nil, func(ctx context.Context, cluster string) (string, error) {
		return pc.router.StopLXC(ctx, node, vmid, req.Timeout, cluster)
	})
}

func (pc *PVEController) handleConfigureLXC(c *gin.Context) {
	node, vmid, ok := guestPath(c)
	if !ok {
		return
	}
	params, ok := bindParams(c)
	if !ok {
		return
	}
	target := audit.Target{Kind: pve.TypeLXC, Node: node, VMID: vmid}
	pc.mutate(c, "ConfigureLXC", target, paramDetails(params), func(ctx context.Context, cluster string) (string, error) {
		return pc.router.ConfigureLXC(ctx, node, vmid, params, cluster)
	})
}

// bindParams reads a flat object of Proxmox config keys.
func bindParams(c *gin.Context) (map[string]string, bool) {
	var params map[string]string
	if !bindJSON(c, &params) {
		return nil, false
	}
	if len(params) == 0 {
		apiresponses.RespondBadRequest(c, "at least one config parameter is required")
		return nil, false
	}
	return params, true
}

// paramDetails keeps only the changed keys, never their values.
func paramDetails(params map[string]string) map[string]interface{} {
	return map[string]interface{}{"keys": slices.Sorted(maps.Keys(params))}
}
