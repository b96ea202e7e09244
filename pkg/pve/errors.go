package pve

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrResourceNotFound is returned when no guest matches a resolve query.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrAmbiguousResource is returned when a name matches more than one guest.
	ErrAmbiguousResource = errors.New("resource name is ambiguous")
	// ErrInvalidArgument is returned for requests that cannot be sent at all.
	ErrInvalidArgument = errors.New("invalid argument")
)

// HTTPError is a non-2xx answer of the Proxmox API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("proxmox request failed (%d): %s", e.StatusCode, e.Message)
}

// DefaultPort is the Proxmox API port used when the endpoint has none.
const DefaultPort = 8006

const apiPath = "/api2/json"

// ParseEndpoint normalizes an API URL to scheme://host:port. A trailing
// /api2/json is accepted and stripped.
func ParseEndpoint(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: invalid API URL %q: %w", ErrInvalidArgument, raw, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: invalid API URL %q: scheme and host are required", ErrInvalidArgument, raw)
	}
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(DefaultPort)
	}
	return fmt.Sprintf("%s://%s", u.Scheme, joinHostPort(u.Hostname(), port)), nil
}

func joinHostPort(host, port string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]:" + port
	}
	return host + ":" + port
}

// ParseTokenID splits user@realm!tokenname into the user and the token name.
func ParseTokenID(tokenID string) (user, tokenName string, err error) {
	user, tokenName, ok := strings.Cut(tokenID, "!")
	if !ok || tokenName == "" {
		return "", "", fmt.Errorf("%w: token id %q must include '!' separating user and token name, e.g. root@pam!mcp", ErrInvalidArgument, tokenID)
	}
	if !strings.Contains(user, "@") {
		return "", "", fmt.Errorf("%w: token id %q user part must include '@realm', e.g. root@pam!mcp", ErrInvalidArgument, tokenID)
	}
	return user, tokenName, nil
}

// NodeFromUPID extracts the node name from UPID:<node>:...
func NodeFromUPID(upid string) (string, bool) {
	parts := strings.SplitN(upid, ":", 3)
	if len(parts) < 3 || parts[0] != "UPID" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
