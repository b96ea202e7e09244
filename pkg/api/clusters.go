package api

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/proxmox-multicluster/pkg/apiresponses"
	"github.com/telekom/proxmox-multicluster/pkg/audit"
	"github.com/telekom/proxmox-multicluster/pkg/cluster"
	"github.com/telekom/proxmox-multicluster/pkg/config"
	"github.com/telekom/proxmox-multicluster/pkg/system"
)

// ClusterRegistry is the part of *cluster.Registry the cluster endpoints use.
type ClusterRegistry interface {
	Select(explicit, resourceName string, vmid *int) (cluster.Selection, error)
	ClearCache(name string)
	CachedClusters() []string
	ListClusters() []string
	Definition(name string) (config.ClusterDefinition, error)
	DefaultCluster() string
	ClusterInfo(ctx context.Context, name string) (cluster.ClusterInfo, error)
	ListAllClustersInfo(ctx context.Context) []cluster.ClusterInfo
	ValidateAllClusters(ctx context.Context) map[string]cluster.ValidationResult
}

// ClusterSummary is one entry of the cluster listing.
type ClusterSummary struct {
	Name    string `json:"name"`
	APIURL  string `json:"apiURL"`
	Default bool   `json:"default"`
	Cached  bool   `json:"cached"`
	Region  string `json:"region,omitempty"`
	Tier    string `json:"tier,omitempty"`
}

// ClusterController exposes the registry: listing, health and cache control.
type ClusterController struct {
	reg      ClusterRegistry
	recorder *audit.Recorder
	log      *zap.SugaredLogger
}

var _ APIController = (*ClusterController)(nil)

func NewClusterController(reg ClusterRegistry, recorder *audit.Recorder, log *zap.SugaredLogger) *ClusterController {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ClusterController{reg: reg, recorder: recorder, log: log}
}

func (cc *ClusterController) BasePath() string {
	return "clusters"
}

func (cc *ClusterController) Handlers() []gin.HandlerFunc {
	return nil
}

func (cc *ClusterController) Register(rg *gin.RouterGroup) error {
	rg.GET("", cc.handleList)
	rg.GET("info", cc.handleListInfo)
	rg.GET(":name/info", cc.handleInfo)
	rg.GET("validate", cc.handleValidate)
	rg.GET("select", cc.handleSelect)
	rg.DELETE("cache", cc.handleClearCache)
	rg.DELETE("cache/:name", cc.handleClearCache)
	return nil
}

func (cc *ClusterController) handleList(c *gin.Context) {
	cached := map[string]bool{}
	for _, name := range cc.reg.CachedClusters() {
		cached[name] = true
	}
	def := cc.reg.DefaultCluster()

	names := cc.reg.ListClusters()
	out := make([]ClusterSummary, 0, len(names))
	for _, name := range names {
		d, err := cc.reg.Definition(name)
		if err != nil {
			apiresponses.RespondError(c, "list clusters", err, system.GetReqLogger(c, cc.log))
			return
		}
		out = append(out, ClusterSummary{
			Name:    name,
			APIURL:  d.APIURL,
			Default: name == def,
			Cached:  cached[name],
			Region:  d.Region,
			Tier:    d.Tier,
		})
	}
	apiresponses.RespondOK(c, out)
}

func (cc *ClusterController) handleListInfo(c *gin.Context) {
	apiresponses.RespondOK(c, cc.reg.ListAllClustersInfo(c.Request.Context()))
}

func (cc *ClusterController) handleInfo(c *gin.Context) {
	info, err := cc.reg.ClusterInfo(c.Request.Context(), c.Param("name"))
	if err != nil {
		apiresponses.RespondError(c, "get cluster info", err, system.GetReqLogger(c, cc.log))
		return
	}
	apiresponses.RespondOK(c, info)
}

func (cc *ClusterController) handleValidate(c *gin.Context) {
	apiresponses.RespondOK(c, cc.reg.ValidateAllClusters(c.Request.Context()))
}

// handleSelect reports which cluster an operation with the given hints would
// be routed to, without contacting any cluster.
func (cc *ClusterController) handleSelect(c *gin.Context) {
	var vmid *int
	if raw := c.Query("vmid"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			apiresponses.RespondBadRequest(c, "vmid must be an integer")
			return
		}
		vmid = &v
	}
	sel, err := cc.reg.Select(c.Query("cluster"), c.Query("resource"), vmid)
	if err != nil {
		apiresponses.RespondError(c, "select cluster", err, system.GetReqLogger(c, cc.log))
		return
	}
	apiresponses.RespondOK(c, sel)
}

func (cc *ClusterController) handleClearCache(c *gin.Context) {
	name := c.Param("name")
	if name != "" {
		if _, err := cc.reg.Definition(name); err != nil {
			apiresponses.RespondError(c, "clear cache", err, system.GetReqLogger(c, cc.log))
			return
		}
	}
	cc.reg.ClearCache(name)
	system.GetReqLogger(c, cc.log).Infow("Cleared client cache", "cluster", name)

	ev := newEvent(c, "ClearCache")
	ev.Cluster = name
	ev.Target = audit.Target{Kind: "cluster", Name: name}
	cc.recorder.Record(ev)

	apiresponses.RespondNoContent(c)
}
