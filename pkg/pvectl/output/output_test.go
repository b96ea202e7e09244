package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/telekom/proxmox-multicluster/pkg/cluster"
	"github.com/telekom/proxmox-multicluster/pkg/pve"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatTable},
		{in: "table", want: FormatTable},
		{in: "json", want: FormatJSON},
		{in: "yaml", want: FormatYAML},
		{in: "wide", want: FormatWide},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.True(t, FormatJSON.Structured())
	assert.False(t, FormatWide.Structured())
}

func TestWriteObject(t *testing.T) {
	sel := cluster.Selection{Cluster: "prod", Source: cluster.SourcePattern}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteObject(buf, FormatJSON, sel))
	var fromJSON cluster.Selection
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	assert.Equal(t, sel, fromJSON)

	buf.Reset()
	require.NoError(t, WriteObject(buf, FormatYAML, sel))
	assert.Contains(t, buf.String(), "cluster: prod")
	var fromYAML cluster.Selection
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, sel, fromYAML)

	assert.Error(t, WriteObject(buf, FormatTable, sel))
	assert.Error(t, WriteObject(buf, FormatWide, sel))
	assert.Error(t, WriteObject(buf, Format("xml"), sel))
}

func TestWriteClusterTable(t *testing.T) {
	buf := &bytes.Buffer{}
	WriteClusterTable(buf, []ClusterRow{
		{Name: "prod", APIURL: "https://prod:8006", Default: true, Region: "eu"},
		{Name: "dev", APIURL: "https://dev:8006"},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"NAME", "API", "URL", "DEFAULT", "REGION", "TIER"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"prod", "https://prod:8006", "yes", "eu", "-"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"dev", "https://dev:8006", "no", "-", "-"}, strings.Fields(lines[2]))
}

func TestWriteClusterInfoTable(t *testing.T) {
	buf := &bytes.Buffer{}
	WriteClusterInfoTable(buf, []cluster.ClusterInfo{
		{Name: "prod", Status: cluster.StatusOnline, NodesCount: 3, VMsCount: 10, LXCCount: 2, StorageCount: 4},
		{Name: "dev", Status: cluster.StatusOffline, ErrorKind: cluster.KindAuth},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"prod", "online", "3", "10", "2", "4", "-"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"dev", "offline", "-", "-", "-", "-", cluster.KindAuth}, strings.Fields(lines[2]))
}

func TestWriteValidationTable_SortsByName(t *testing.T) {
	buf := &bytes.Buffer{}
	WriteValidationTable(buf, map[string]cluster.ValidationResult{
		"staging": {Healthy: false, Message: "boom", ErrorKind: cluster.KindConnection},
		"dev":     {Healthy: true, Message: "OK (1 nodes)"},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "dev"))
	assert.True(t, strings.HasPrefix(lines[2], "staging"))
	assert.Contains(t, lines[2], "boom")
}

func TestWriteResourceTables(t *testing.T) {
	resources := []pve.Resource{
		{VMID: 101, Name: "web-01", Node: "pve1", Status: "running", CPU: 0.25, Mem: 512 << 20, MaxMem: 2048 << 20, Uptime: 90061, Tags: "web"},
	}

	buf := &bytes.Buffer{}
	WriteResourceTable(buf, resources)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"101", "web-01", "pve1", "running"}, strings.Fields(lines[1]))

	buf.Reset()
	WriteResourceTableWide(buf, resources)
	lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"101", "web-01", "pve1", "running", "25.0%", "512/2048", "MiB", "1d1h", "web"}, strings.Fields(lines[1]))
}

func TestWriteNodeTable(t *testing.T) {
	buf := &bytes.Buffer{}
	WriteNodeTable(buf, []pve.Node{{Node: "pve1", Status: "online", Uptime: 3660}, {Node: "pve2", Status: "offline"}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"pve1", "online", "0.0%", "-", "1h1m"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"pve2", "offline", "0.0%", "-", "-"}, strings.Fields(lines[2]))
}
