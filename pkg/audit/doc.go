// Package audit records mutating operations routed to Proxmox clusters.
// Events flow through a non-blocking Recorder into one or more sinks: the
// structured log and, optionally, a Kafka topic.
package audit
