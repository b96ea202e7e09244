package api

import (
	"github.com/gin-gonic/gin"

	"github.com/telekom/proxmox-multicluster/pkg/audit"
	"github.com/telekom/proxmox-multicluster/pkg/system"
)

// newEvent starts an audit event for op carrying the request's actor and
// correlation id. The recorder fills in id, time, type and severity.
func newEvent(c *gin.Context, op string) *audit.Event {
	return &audit.Event{
		Operation: op,
		Actor: audit.Actor{
			SourceIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		},
		CorrelationID: system.GetCorrelationID(c),
	}
}
