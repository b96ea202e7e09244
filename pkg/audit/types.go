// SPDX-FileCopyrightText: 2024 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventVMProvisioned  EventType = "vm.provisioned"
	EventVMDeleted      EventType = "vm.deleted"
	EventVMPower        EventType = "vm.power"
	EventVMMigrated     EventType = "vm.migrated"
	EventVMReconfigured EventType = "vm.reconfigured"

	EventLXCProvisioned  EventType = "lxc.provisioned"
	EventLXCDeleted      EventType = "lxc.deleted"
	EventLXCPower        EventType = "lxc.power"
	EventLXCReconfigured EventType = "lxc.reconfigured"

	EventClusterCacheCleared EventType = "cluster.cache_cleared"

	// EventOperation is used for operations without a dedicated type
	EventOperation EventType = "operation"
)

// Severity represents the severity level of an audit event
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Outcome of the audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event represents a single audited operation against a cluster.
type Event struct {
	// ID is a unique identifier for this event
	ID string `json:"id"`

	Type     EventType `json:"type"`
	Severity Severity  `json:"severity"`

	// Timestamp is when the operation finished
	Timestamp time.Time `json:"timestamp"`

	// Cluster is the cluster the operation was routed to. Empty when the
	// operation failed before a cluster was selected.
	Cluster string `json:"cluster,omitempty"`

	// Operation is the router operation name, e.g. "CreateVM"
	Operation string `json:"operation"`

	Target Target `json:"target"`
	Actor  Actor  `json:"actor"`

	// CorrelationID ties the event to the API request that caused it
	CorrelationID string `json:"correlationId,omitempty"`

	Outcome Outcome `json:"outcome"`

	// UPID is the Proxmox task started by the operation, if any
	UPID string `json:"upid,omitempty"`

	// Error is the failure message when Outcome is failure
	Error string `json:"error,omitempty"`

	// Details contains operation-specific parameters
	Details map[string]interface{} `json:"details,omitempty"`
}

// Target is the guest or cluster the operation acted on.
type Target struct {
	// Kind is "qemu", "lxc" or "cluster"
	Kind string `json:"kind"`
	Node string `json:"node,omitempty"`
	VMID int    `json:"vmid,omitempty"`
	Name string `json:"name,omitempty"`
}

// Actor represents who triggered an audit event
type Actor struct {
	// SourceIP is the IP address of the request origin
	SourceIP string `json:"sourceIP,omitempty"`

	// UserAgent from the request
	UserAgent string `json:"userAgent,omitempty"`
}

// EventTypeForOperation maps a router operation name to its event type.
func EventTypeForOperation(op string) EventType {
	switch op {
	case "CreateVM", "CloneVM":
		return EventVMProvisioned
	case "DeleteVM":
		return EventVMDeleted
	case "StartVM", "StopVM", "RebootVM", "ShutdownVM":
		return EventVMPower
	case "MigrateVM":
		return EventVMMigrated
	case "ResizeVMDisk", "ConfigureVM":
		return EventVMReconfigured
	case "CreateLXC":
		return EventLXCProvisioned
	case "DeleteLXC":
		return EventLXCDeleted
	case "StartLXC", "StopLXC":
		return EventLXCPower
	case "ConfigureLXC":
		return EventLXCReconfigured
	case "ClearCache":
		return EventClusterCacheCleared
	}
	return EventOperation
}

// SeverityFor returns the default severity of an event. Destructive
// operations are critical; failures are at least warnings.
func SeverityFor(eventType EventType, outcome Outcome) Severity {
	switch eventType {
	case EventVMDeleted, EventLXCDeleted:
		return SeverityCritical
	}
	if outcome == OutcomeFailure {
		return SeverityWarning
	}
	return SeverityInfo
}
