// Package ratelimit throttles API callers. Reads are bucketed per client IP,
// mutations per client IP and target cluster.
package ratelimit
