// Package apiresponses provides the JSON response helpers shared by the API
// controllers, including the mapping from cluster and Proxmox errors to HTTP
// status codes.
package apiresponses
