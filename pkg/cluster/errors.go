package cluster

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/telekom/proxmox-multicluster/pkg/pve"
)

var (
	ErrClusterNotFound    = errors.New("cluster not found")
	ErrClusterConnection  = errors.New("cluster connection failed")
	ErrAmbiguousSelection = errors.New("ambiguous cluster selection")
)

// NotFoundError is returned for a cluster name that is not configured.
type NotFoundError struct {
	Cluster   string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cluster %q not found (available: %s)", e.Cluster, strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrClusterNotFound }

// ConnectionError is returned when a client for a configured cluster cannot be built.
type ConnectionError struct {
	Cluster string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to cluster %q: %v", e.Cluster, e.Err)
}

func (e *ConnectionError) Is(target error) bool { return target == ErrClusterConnection }

func (e *ConnectionError) Unwrap() error { return e.Err }

// AmbiguousSelectionError is returned when a resource name matches the
// prefixes of more than one cluster. Candidates are sorted.
type AmbiguousSelectionError struct {
	Resource   string
	Candidates []string
}

func (e *AmbiguousSelectionError) Error() string {
	return fmt.Sprintf("resource %q matches multiple clusters (%s); pass an explicit cluster", e.Resource, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousSelectionError) Is(target error) bool { return target == ErrAmbiguousSelection }

// Error kinds reported in validation results and cluster info records.
const (
	KindNotFound    = "not_found"
	KindConnection  = "connection"
	KindAmbiguous   = "ambiguous"
	KindTimeout     = "timeout"
	KindAuth        = "auth"
	KindNetwork     = "network"
	KindCertificate = "certificate"
	KindUnknown     = "unknown"
)

// ErrorKind classifies err. Registry errors win, then the transport's
// typed errors, then message heuristics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrClusterNotFound):
		return KindNotFound
	case errors.Is(err, ErrAmbiguousSelection):
		return KindAmbiguous
	case errors.Is(err, ErrClusterConnection):
		return KindConnection
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	var httpErr *pve.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return KindAuth
		case http.StatusGatewayTimeout, http.StatusRequestTimeout:
			return KindTimeout
		}
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return KindCertificate
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return KindNetwork
	}

	return classifyMessage(err.Error())
}

func classifyMessage(errMsg string) string {
	lowerMsg := strings.ToLower(errMsg)

	// Timeout errors
	if strings.Contains(lowerMsg, "timeout") ||
		strings.Contains(lowerMsg, "deadline exceeded") ||
		strings.Contains(lowerMsg, "timed out") {
		return KindTimeout
	}

	// Auth errors
	if strings.Contains(lowerMsg, "401") ||
		strings.Contains(lowerMsg, "403") ||
		strings.Contains(lowerMsg, "unauthorized") ||
		strings.Contains(lowerMsg, "forbidden") ||
		strings.Contains(lowerMsg, "authentication") ||
		strings.Contains(lowerMsg, "permission check failed") ||
		strings.Contains(lowerMsg, "invalid token") {
		return KindAuth
	}

	// Network errors
	if strings.Contains(lowerMsg, "connection refused") ||
		strings.Contains(lowerMsg, "connection reset") ||
		strings.Contains(lowerMsg, "no route to host") ||
		strings.Contains(lowerMsg, "network is unreachable") ||
		strings.Contains(lowerMsg, "dial tcp") ||
		strings.Contains(lowerMsg, "no such host") {
		return KindNetwork
	}

	// Certificate errors
	if strings.Contains(lowerMsg, "x509") ||
		strings.Contains(lowerMsg, "tls") ||
		strings.Contains(lowerMsg, "certificate") {
		return KindCertificate
	}

	return KindUnknown
}
