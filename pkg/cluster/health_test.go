package cluster

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/proxmox-multicluster/pkg/config"
	"github.com/telekom/proxmox-multicluster/pkg/pve"
)

// mixedFactory: prod is healthy, staging cannot be built, dev rejects the token.
func mixedFactory(_ context.Context, def config.ClusterDefinition) (pve.Client, error) {
	switch def.Name {
	case "prod":
		return &pve.FakeClient{
			Name:      def.Name,
			Nodes:     []pve.Node{{Node: "pve1", Status: "online"}, {Node: "pve2", Status: "offline"}},
			Resources: []pve.Resource{{VMID: 100, Type: pve.TypeQemu}, {VMID: 101, Type: pve.TypeQemu}, {VMID: 200, Type: pve.TypeLXC}},
			ListStorageFunc: func(context.Context) ([]pve.Storage, error) {
				return []pve.Storage{{Storage: "local"}, {Storage: "ceph"}}, nil
			},
		}, nil
	case "staging":
		return nil, errors.New("dial tcp: lookup pve-staging: no such host")
	default:
		return &pve.FakeClient{
			Name: def.Name,
			ListNodesFunc: func(context.Context) ([]pve.Node, error) {
				return nil, &pve.HTTPError{StatusCode: http.StatusUnauthorized, Message: "invalid token value"}
			},
		}, nil
	}
}

func TestValidateAllClustersIsolatesFailures(t *testing.T) {
	r := newTestRegistry(t, newTestConfig(), mixedFactory, nil)

	results := r.ValidateAllClusters(context.Background())
	require.Len(t, results, 3)

	assert.Equal(t, ValidationResult{Healthy: true, Message: "OK (2 nodes)"}, results["prod"])

	assert.False(t, results["staging"].Healthy)
	assert.Equal(t, KindConnection, results["staging"].ErrorKind)
	assert.Contains(t, results["staging"].Message, "no such host")

	assert.False(t, results["dev"].Healthy)
	assert.Equal(t, KindAuth, results["dev"].ErrorKind)
	assert.Contains(t, results["dev"].Message, "invalid token value")
}

func TestClusterInfo(t *testing.T) {
	r := newTestRegistry(t, newTestConfig(), mixedFactory, nil)
	ctx := context.Background()

	online, err := r.ClusterInfo(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, ClusterInfo{
		Name:         "prod",
		APIURL:       "https://prod.example.com:8006",
		Region:       "eu-prod",
		Default:      true,
		Status:       StatusOnline,
		NodesCount:   2,
		VMsCount:     2,
		LXCCount:     1,
		StorageCount: 2,
		Nodes:        []NodeSummary{{Name: "pve1", Status: "online"}, {Name: "pve2", Status: "offline"}},
	}, online)

	offline, err := r.ClusterInfo(ctx, "staging")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, offline.Status)
	assert.Equal(t, KindConnection, offline.ErrorKind)
	assert.NotEmpty(t, offline.Error)
	assert.Zero(t, offline.NodesCount)
	assert.False(t, offline.Default)

	_, err = r.ClusterInfo(ctx, "qa")
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestListAllClustersInfoKeepsDeclarationOrder(t *testing.T) {
	r := newTestRegistry(t, newTestConfig(), mixedFactory, nil)

	infos := r.ListAllClustersInfo(context.Background())
	require.Len(t, infos, 3)
	assert.Equal(t, "prod", infos[0].Name)
	assert.Equal(t, StatusOnline, infos[0].Status)
	assert.Equal(t, "staging", infos[1].Name)
	assert.Equal(t, StatusOffline, infos[1].Status)
	assert.Equal(t, "dev", infos[2].Name)
	assert.Equal(t, StatusOffline, infos[2].Status)
	assert.Equal(t, KindAuth, infos[2].ErrorKind)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline reached" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "not found", err: &NotFoundError{Cluster: "x"}, want: KindNotFound},
		{name: "ambiguous", err: &AmbiguousSelectionError{Resource: "r"}, want: KindAmbiguous},
		{name: "connection", err: &ConnectionError{Cluster: "x", Err: errors.New("boom")}, want: KindConnection},
		{name: "deadline", err: fmt.Errorf("GET /nodes: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "forbidden", err: &pve.HTTPError{StatusCode: http.StatusForbidden, Message: "permission check failed"}, want: KindAuth},
		{name: "gateway timeout", err: &pve.HTTPError{StatusCode: http.StatusGatewayTimeout}, want: KindTimeout},
		{name: "server error", err: &pve.HTTPError{StatusCode: http.StatusInternalServerError, Message: "boom"}, want: KindUnknown},
		{name: "net timeout", err: fmt.Errorf("wrapped: %w", timeoutErr{}), want: KindTimeout},
		{name: "op error", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, want: KindNetwork},
		{name: "dns error", err: &net.DNSError{Err: "no such host", Name: "pve"}, want: KindNetwork},
		{name: "certificate", err: &tls.CertificateVerificationError{Err: errors.New("unknown authority")}, want: KindCertificate},
		{name: "message timeout", err: errors.New("request timed out"), want: KindTimeout},
		{name: "message auth", err: errors.New("401 Unauthorized"), want: KindAuth},
		{name: "message network", err: errors.New("connection refused"), want: KindNetwork},
		{name: "message certificate", err: errors.New("x509: certificate signed by unknown authority"), want: KindCertificate},
		{name: "unknown", err: errors.New("something odd"), want: KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}
