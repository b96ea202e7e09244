package pve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"k8s.io/utils/ptr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base := []Option{
		WithName("test"),
		WithEndpoint(srv.URL),
		WithToken("root@pam!mcp", "s3cret"),
		WithLogger(zaptest.NewLogger(t).Sugar()),
	}
	c, err := NewRESTClient(append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func writeData(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://pve.example.com:8006", want: "https://pve.example.com:8006"},
		{in: "https://pve.example.com", want: "https://pve.example.com:8006"},
		{in: "https://pve.example.com:8006/api2/json", want: "https://pve.example.com:8006"},
		{in: "http://10.0.0.1:8443/", want: "http://10.0.0.1:8443"},
		{in: "pve.example.com", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEndpoint(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTokenID(t *testing.T) {
	user, name, err := ParseTokenID("automation@pve!ci")
	require.NoError(t, err)
	assert.Equal(t, "automation@pve", user)
	assert.Equal(t, "ci", name)

	for _, bad := range []string{"root@pam", "root!mcp", "root@pam!", ""} {
		_, _, err := ParseTokenID(bad)
		assert.ErrorIs(t, err, ErrInvalidArgument, bad)
	}
}

func TestNodeFromUPID(t *testing.T) {
	node, ok := NodeFromUPID("UPID:pve2:0000ABCD:00112233:65A0B1C2:qmstart:100:root@pam!mcp:")
	assert.True(t, ok)
	assert.Equal(t, "pve2", node)

	_, ok = NodeFromUPID("not-a-upid")
	assert.False(t, ok)
}

func TestNewRESTClientRequiresEndpointAndToken(t *testing.T) {
	_, err := NewRESTClient(WithToken("root@pam!mcp", "s"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewRESTClient(WithEndpoint("https://pve.example.com"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewRESTClient(WithEndpoint("https://pve.example.com"), WithToken("broken", "s"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	c, err := NewRESTClient(WithName("prod"), WithEndpoint("https://pve.example.com"), WithToken("root@pam!mcp", "s"))
	require.NoError(t, err)
	assert.Equal(t, "https://pve.example.com:8006", c.Endpoint())
	assert.Equal(t, "prod", c.Name())
}

func TestListNodesSendsTokenAndDecodesEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api2/json/nodes", r.URL.Path)
		assert.Equal(t, "PVEAPIToken=root@pam!mcp=s3cret", r.Header.Get("Authorization"))
		writeData(t, w, []map[string]any{
			{"node": "pve1", "status": "online", "maxcpu": 16},
			{"node": "pve2", "status": "offline"},
		})
	})

	nodes, err := c.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, Node{Node: "pve1", Status: "online", MaxCPU: 16}, nodes[0])
	assert.Equal(t, "offline", nodes[1].Status)
}

func TestHTTPErrorDecoding(t *testing.T) {
	t.Run("parameter errors", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"data":null,"errors":{"vmid":"invalid format","name":"too long"}}`))
		})
		_, err := c.StartVM(context.Background(), "pve1", 100)
		var httpErr *HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
		assert.Equal(t, "name: too long; vmid: invalid format", httpErr.Message)
	})

	t.Run("status line only", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := c.ListNodes(context.Background())
		var httpErr *HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
		assert.Equal(t, "Unauthorized", httpErr.Message)
	})

	t.Run("not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		_, err := c.VMConfig(context.Background(), "pve1", 999)
		assert.True(t, IsNotFound(err))
	})
}

func TestListAndResolveGuests(t *testing.T) {
	resources := []map[string]any{
		{"vmid": 100, "name": "prod-web-01", "node": "pve1", "type": "qemu", "status": "running"},
		{"vmid": 101, "name": "prod-db-01", "node": "pve2", "type": "qemu", "status": "stopped"},
		{"vmid": 102, "name": "dup", "node": "pve1", "type": "qemu", "status": "running"},
		{"vmid": 103, "name": "dup", "node": "pve2", "type": "qemu", "status": "running"},
		{"vmid": 200, "name": "prod-cache-01", "node": "pve1", "type": "lxc", "status": "running"},
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api2/json/cluster/resources", r.URL.Path)
		assert.Equal(t, "vm", r.URL.Query().Get("type"))
		writeData(t, w, resources)
	})
	ctx := context.Background()

	vms, err := c.ListVMs(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, vms, 4)

	running, err := c.ListVMs(ctx, ListOptions{Status: "running", Node: "pve1"})
	require.NoError(t, err)
	assert.Len(t, running, 2)

	search, err := c.ListVMs(ctx, ListOptions{Search: "WEB"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, 100, search[0].VMID)

	cts, err := c.ListLXC(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, cts, 1)
	assert.Equal(t, TypeLXC, cts[0].Type)

	byName, err := c.ResolveVM(ctx, ResolveQuery{Name: "prod-db-01"})
	require.NoError(t, err)
	assert.Equal(t, 101, byName.VMID)
	assert.Equal(t, "pve2", byName.Node)

	byID, err := c.ResolveLXC(ctx, ResolveQuery{VMID: ptr.To(200)})
	require.NoError(t, err)
	assert.Equal(t, "prod-cache-01", byID.Resource.Name)

	_, err = c.ResolveVM(ctx, ResolveQuery{Name: "dup"})
	assert.ErrorIs(t, err, ErrAmbiguousResource)

	narrowed, err := c.ResolveVM(ctx, ResolveQuery{Name: "dup", Node: "pve2"})
	require.NoError(t, err)
	assert.Equal(t, 103, narrowed.VMID)

	_, err = c.ResolveVM(ctx, ResolveQuery{VMID: ptr.To(200)})
	assert.ErrorIs(t, err, ErrResourceNotFound, "an lxc id does not resolve as a vm")

	_, err = c.ResolveVM(ctx, ResolveQuery{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLifecycleRequests(t *testing.T) {
	tests := []struct {
		name       string
		call       func(c *RESTClient) (string, error)
		wantMethod string
		wantPath   string
		wantForm   map[string]string
		wantQuery  map[string]string
	}{
		{
			name:       "start vm",
			call:       func(c *RESTClient) (string, error) { return c.StartVM(context.Background(), "pve1", 100) },
			wantMethod: http.MethodPost,
			wantPath:   "/api2/json/nodes/pve1/qemu/100/status/start",
		},
		{
			name: "force stop vm with timeout",
			call: func(c *RESTClient) (string, error) {
				return c.StopVM(context.Background(), "pve1", 100, StopOptions{Force: true, Timeout: ptr.To(30)})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api2/json/nodes/pve1/qemu/100/status/stop",
			wantForm:   map[string]string{"overrule-shutdown": "1", "timeout": "30"},
		},
		{
			name: "shutdown vm",
			call: func(c *RESTClient) (string, error) {
				return c.ShutdownVM(context.Background(), "pve1", 100, ptr.To(60))
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api2/json/nodes/pve1/qemu/100/status/shutdown",
			wantForm:   map[string]string{"timeout": "60"},
		},
		{
			name: "migrate vm",
			call: func(c *RESTClient) (string, error) {
				return c.MigrateVM(context.Background(), "pve1", 100, "pve2", true)
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api2/json/nodes/pve1/qemu/100/migrate",
			wantForm:   map[string]string{"target": "pve2", "online": "1"},
		},
		{
			name: "resize disk",
			call: func(c *RESTClient) (string, error) {
				return c.ResizeVMDisk(context.Background(), "pve1", 100, "scsi0", 40)
			},
			wantMethod: http.MethodPut,
			wantPath:   "/api2/json/nodes/pve1/qemu/100/resize",
			wantForm:   map[string]string{"disk": "scsi0", "size": "40G"},
		},
		{
			name:       "delete vm with purge",
			call:       func(c *RESTClient) (string, error) { return c.DeleteVM(context.Background(), "pve1", 100, true) },
			wantMethod: http.MethodDelete,
			wantPath:   "/api2/json/nodes/pve1/qemu/100",
			wantQuery:  map[string]string{"purge": "1", "destroy-unreferenced-disks": "1"},
		},
		{
			name: "clone vm",
			call: func(c *RESTClient) (string, error) {
				return c.CloneVM(context.Background(), CloneVMOptions{SourceNode: "pve1", SourceVMID: 9000, TargetNode: "pve2", NewVMID: 120, Name: "prod-web-02", Storage: "ceph"})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api2/json/nodes/pve1/qemu/9000/clone",
			wantForm:   map[string]string{"newid": "120", "name": "prod-web-02", "target": "pve2", "full": "1", "storage": "ceph"},
		},
		{
			name: "stop lxc with timeout shuts down",
			call: func(c *RESTClient) (string, error) {
				return c.StopLXC(context.Background(), "pve1", 200, ptr.To(10))
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api2/json/nodes/pve1/lxc/200/status/shutdown",
			wantForm:   map[string]string{"timeout": "10", "forceStop": "1"},
		},
		{
			name: "configure vm",
			call: func(c *RESTClient) (string, error) {
				return c.ConfigureVM(context.Background(), "pve1", 100, map[string]string{"memory": "4096"})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api2/json/nodes/pve1/qemu/100/config",
			wantForm:   map[string]string{"memory": "4096"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.wantMethod, r.Method)
				assert.Equal(t, tt.wantPath, r.URL.Path)
				require.NoError(t, r.ParseForm())
				for k, v := range tt.wantForm {
					assert.Equal(t, v, r.PostForm.Get(k), k)
				}
				for k, v := range tt.wantQuery {
					assert.Equal(t, v, r.URL.Query().Get(k), k)
				}
				writeData(t, w, "UPID:pve1:00001234:0000ABCD:65A0B1C2:task:100:root@pam!mcp:")
			})
			upid, err := tt.call(c)
			require.NoError(t, err)
			assert.Equal(t, "UPID:pve1:00001234:0000ABCD:65A0B1C2:task:100:root@pam!mcp:", upid)
		})
	}
}

func TestCreateUsesPlacementDefaults(t *testing.T) {
	var form map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api2/json/nodes/pve3/qemu", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		writeData(t, w, "UPID:pve3:1:2:3:qmcreate:130:root@pam!mcp:")
	}, WithDefaults(Defaults{Node: "pve3", Storage: "local-zfs", Bridge: "vmbr9"}))

	_, err := c.CreateVM(context.Background(), CreateVMOptions{VMID: 130, Name: "prod-app-01", ISO: "local:iso/debian.iso"})
	require.NoError(t, err)
	assert.Equal(t, "local-zfs:20", form["scsi0"])
	assert.Equal(t, "virtio,bridge=vmbr9", form["net0"])
	assert.Equal(t, "2048", form["memory"])
	assert.Equal(t, "2", form["cores"])
	assert.Equal(t, "1", form["agent"])
	assert.Equal(t, "local:iso/debian.iso,media=cdrom", form["ide2"])
	assert.Equal(t, "order=scsi0;ide2", form["boot"])
}

func TestCreateWithoutStorageFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	})
	_, err := c.CreateLXC(context.Background(), CreateLXCOptions{Node: "pve1", VMID: 200, Hostname: "ct", OSTemplate: "local:vztmpl/debian.tar.zst"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = c.StartVM(context.Background(), "", 100)
	assert.ErrorIs(t, err, ErrInvalidArgument, "node is required without a default")
}

func TestConfigureLXCReturnsEmptyTaskID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		writeData(t, w, nil)
	})
	upid, err := c.ConfigureLXC(context.Background(), "pve1", 200, map[string]string{"memory": "512"})
	require.NoError(t, err)
	assert.Empty(t, upid)
}

func TestTaskStatusDerivesNodeFromUPID(t *testing.T) {
	const upid = "UPID:pve2:00001234:0000ABCD:65A0B1C2:qmstart:100:root@pam!mcp:"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api2/json/nodes/pve2/tasks/"+upid+"/status", r.URL.Path)
		writeData(t, w, map[string]any{"upid": upid, "node": "pve2", "status": "stopped", "exitstatus": "OK"})
	})
	status, err := c.TaskStatus(context.Background(), upid, "")
	require.NoError(t, err)
	assert.Equal(t, "OK", status.ExitStatus)

	_, err = c.TaskStatus(context.Background(), "garbage", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestListTasksClusterWideFiltersAndLimits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api2/json/cluster/tasks", r.URL.Path)
		writeData(t, w, []map[string]any{
			{"upid": "UPID:a", "user": "root@pam"},
			{"upid": "UPID:b", "user": "ci@pve"},
			{"upid": "UPID:c", "user": "root@pam"},
			{"upid": "UPID:d", "user": "root@pam"},
		})
	})
	tasks, err := c.ListTasks(context.Background(), TaskFilter{User: "root", Limit: 2})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "UPID:a", tasks[0].UPID)
	assert.Equal(t, "UPID:c", tasks[1].UPID)
}

func TestContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(t, w, []any{})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListNodes(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
