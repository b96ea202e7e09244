package pve

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/telekom/proxmox-multicluster/pkg/metrics"
	"github.com/telekom/proxmox-multicluster/pkg/version"
)

// DefaultTimeout bounds a single request against the Proxmox API.
const DefaultTimeout = 30 * time.Second

// DefaultBridge is used for the first NIC of a new guest when neither the
// caller nor the cluster defaults name one.
const DefaultBridge = "vmbr0"

// Defaults fill empty node, storage and bridge arguments.
type Defaults struct {
	Node    string
	Storage string
	Bridge  string
}

// RESTClient implements Client against one Proxmox cluster endpoint.
type RESTClient struct {
	name     string
	endpoint string
	tokenID  string
	secret   string
	verify   bool
	defaults Defaults
	http     *resty.Client
	log      *zap.SugaredLogger
}

var _ Client = (*RESTClient)(nil)

type Option func(*RESTClient) error

// NewRESTClient builds a client. WithEndpoint and WithToken are required.
// No request is sent during construction.
func NewRESTClient(opts ...Option) (*RESTClient, error) {
	c := &RESTClient{
		verify: true,
		http:   resty.New().SetTimeout(DefaultTimeout).SetHeader("User-Agent", version.UserAgent()),
		log:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidArgument)
	}
	if c.tokenID == "" || c.secret == "" {
		return nil, fmt.Errorf("%w: API token is required", ErrInvalidArgument)
	}

	c.http.
		SetBaseURL(c.endpoint+apiPath).
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", fmt.Sprintf("PVEAPIToken=%s=%s", c.tokenID, c.secret)).
		SetTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: !c.verify}) //nolint:gosec // self-signed clusters opt out explicitly
	return c, nil
}

// WithName labels the client's log lines and metrics with a cluster name.
func WithName(name string) Option {
	return func(c *RESTClient) error {
		c.name = name
		return nil
	}
}

// WithEndpoint sets the API URL, e.g. https://pve1.example.com:8006.
func WithEndpoint(apiURL string) Option {
	return func(c *RESTClient) error {
		endpoint, err := ParseEndpoint(apiURL)
		if err != nil {
			return err
		}
		c.endpoint = endpoint
		return nil
	}
}

// WithToken sets the API token credentials.
func WithToken(tokenID, secret string) Option {
	return func(c *RESTClient) error {
		if _, _, err := ParseTokenID(tokenID); err != nil {
			return err
		}
		if secret == "" {
			return fmt.Errorf("%w: token secret is required", ErrInvalidArgument)
		}
		c.tokenID = tokenID
		c.secret = secret
		return nil
	}
}

// WithTLSVerify toggles certificate verification.
func WithTLSVerify(verify bool) Option {
	return func(c *RESTClient) error {
		c.verify = verify
		return nil
	}
}

func WithDefaults(d Defaults) Option {
	return func(c *RESTClient) error {
		c.defaults = d
		return nil
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *RESTClient) error {
		if log != nil {
			c.log = log
		}
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *RESTClient) error {
		c.http.SetHeader("User-Agent", userAgent)
		return nil
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *RESTClient) error {
		c.http.SetTimeout(d)
		return nil
	}
}

// Name returns the cluster name the client was built for.
func (c *RESTClient) Name() string { return c.name }

// Endpoint returns the normalized API endpoint.
func (c *RESTClient) Endpoint() string { return c.endpoint }

func (c *RESTClient) String() string {
	return fmt.Sprintf("RESTClient(%s, %s)", c.name, c.endpoint)
}

// do sends one request and decodes the data member of the response envelope into out.
func (c *RESTClient) do(ctx context.Context, method, path string, query, form map[string]string, out any) error {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if len(form) > 0 {
		req.SetFormData(form)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	code := "error"
	if resp != nil && resp.StatusCode() != 0 {
		code = strconv.Itoa(resp.StatusCode())
	}
	metrics.UpstreamRequests.WithLabelValues(c.name, method, code).Inc()
	metrics.UpstreamRequestDuration.WithLabelValues(c.name, method).Observe(time.Since(start).Seconds())

	if err != nil {
		c.log.Debugw("Proxmox request failed", "cluster", c.name, "method", method, "path", path, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.log.Debugw("Proxmox request", "cluster", c.name, "method", method, "path", path, "status", resp.StatusCode())
	if resp.IsError() {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *resty.Response) error {
	var body struct {
		Errors  map[string]string `json:"errors"`
		Message string            `json:"message"`
	}
	_ = json.Unmarshal(resp.Body(), &body)

	msg := strings.TrimSpace(body.Message)
	if len(body.Errors) > 0 {
		keys := make([]string, 0, len(body.Errors))
		for k := range body.Errors {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, strings.TrimSpace(body.Errors[k])))
		}
		msg = strings.Join(parts, "; ")
	}
	if msg == "" {
		// Proxmox puts the reason into the status line
		msg = strings.TrimSpace(strings.TrimPrefix(resp.Status(), strconv.Itoa(resp.StatusCode())))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return &HTTPError{StatusCode: resp.StatusCode(), Message: msg}
}

// task sends a mutation and returns the UPID Proxmox answered with, if any.
func (c *RESTClient) task(ctx context.Context, method, path string, query, form map[string]string) (string, error) {
	var upid *string
	if err := c.do(ctx, method, path, query, form, &upid); err != nil {
		return "", err
	}
	if upid == nil {
		return "", nil
	}
	return *upid, nil
}

func (c *RESTClient) nodeOr(node string) (string, error) {
	if node != "" {
		return node, nil
	}
	if c.defaults.Node != "" {
		return c.defaults.Node, nil
	}
	return "", fmt.Errorf("%w: node is required", ErrInvalidArgument)
}

func guestPath(kind, node string, vmid int, suffix string) string {
	return fmt.Sprintf("/nodes/%s/%s/%d%s", url.PathEscape(node), kind, vmid, suffix)
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (c *RESTClient) ListNodes(ctx context.Context) ([]Node, error) {
	var nodes []Node
	if err := c.do(ctx, http.MethodGet, "/nodes", nil, nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (c *RESTClient) NodeStatus(ctx context.Context, node string) (*NodeStatus, error) {
	node, err := c.nodeOr(node)
	if err != nil {
		return nil, err
	}
	status := &NodeStatus{}
	if err := c.do(ctx, http.MethodGet, "/nodes/"+url.PathEscape(node)+"/status", nil, nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *RESTClient) guests(ctx context.Context) ([]Resource, error) {
	var all []Resource
	if err := c.do(ctx, http.MethodGet, "/cluster/resources", map[string]string{"type": "vm"}, nil, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (c *RESTClient) ListVMs(ctx context.Context, opts ListOptions) ([]Resource, error) {
	all, err := c.guests(ctx)
	if err != nil {
		return nil, err
	}
	return FilterResources(all, TypeQemu, opts), nil
}

func (c *RESTClient) ListLXC(ctx context.Context, opts ListOptions) ([]Resource, error) {
	all, err := c.guests(ctx)
	if err != nil {
		return nil, err
	}
	return FilterResources(all, TypeLXC, opts), nil
}

func (c *RESTClient) ResolveVM(ctx context.Context, q ResolveQuery) (*ResolvedResource, error) {
	all, err := c.guests(ctx)
	if err != nil {
		return nil, err
	}
	return Resolve(all, TypeQemu, q)
}

func (c *RESTClient) ResolveLXC(ctx context.Context, q ResolveQuery) (*ResolvedResource, error) {
	all, err := c.guests(ctx)
	if err != nil {
		return nil, err
	}
	return Resolve(all, TypeLXC, q)
}

func (c *RESTClient) guestConfig(ctx context.Context, kind, node string, vmid int) (Config, error) {
	node, err := c.nodeOr(node)
	if err != nil {
		return nil, err
	}
	cfg := Config{}
	if err := c.do(ctx, http.MethodGet, guestPath(kind, node, vmid, "/config"), nil, nil, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *RESTClient) VMConfig(ctx context.Context, node string, vmid int) (Config, error) {
	return c.guestConfig(ctx, TypeQemu, node, vmid)
}

func (c *RESTClient) LXCConfig(ctx context.Context, node string, vmid int) (Config, error) {
	return c.guestConfig(ctx, TypeLXC, node, vmid)
}

func (c *RESTClient) ListStorage(ctx context.Context) ([]Storage, error) {
	var storages []Storage
	if err := c.do(ctx, http.MethodGet, "/storage", nil, nil, &storages); err != nil {
		return nil, err
	}
	return storages, nil
}

func (c *RESTClient) storagePath(node, storage, suffix string) (string, error) {
	node, err := c.nodeOr(node)
	if err != nil {
		return "", err
	}
	if storage == "" {
		storage = c.defaults.Storage
	}
	if storage == "" {
		return "", fmt.Errorf("%w: storage is required", ErrInvalidArgument)
	}
	return fmt.Sprintf("/nodes/%s/storage/%s%s", url.PathEscape(node), url.PathEscape(storage), suffix), nil
}

func (c *RESTClient) StorageStatus(ctx context.Context, node, storage string) (*StorageStatus, error) {
	path, err := c.storagePath(node, storage, "/status")
	if err != nil {
		return nil, err
	}
	status := &StorageStatus{}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *RESTClient) StorageContent(ctx context.Context, node, storage string) ([]StorageContent, error) {
	path, err := c.storagePath(node, storage, "/content")
	if err != nil {
		return nil, err
	}
	var content []StorageContent
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &content); err != nil {
		return nil, err
	}
	return content, nil
}

func (c *RESTClient) ListBridges(ctx context.Context, node string) ([]Bridge, error) {
	node, err := c.nodeOr(node)
	if err != nil {
		return nil, err
	}
	var bridges []Bridge
	if err := c.do(ctx, http.MethodGet, "/nodes/"+url.PathEscape(node)+"/network", map[string]string{"type": "bridge"}, nil, &bridges); err != nil {
		return nil, err
	}
	return bridges, nil
}

func (c *RESTClient) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultTaskLimit
	}

	var tasks []Task
	if filter.Node != "" {
		query := map[string]string{"limit": strconv.Itoa(limit)}
		if filter.User != "" {
			query["userfilter"] = filter.User
		}
		if err := c.do(ctx, http.MethodGet, "/nodes/"+url.PathEscape(filter.Node)+"/tasks", query, nil, &tasks); err != nil {
			return nil, err
		}
		return tasks, nil
	}

	if err := c.do(ctx, http.MethodGet, "/cluster/tasks", nil, nil, &tasks); err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if filter.User != "" && !strings.Contains(t.User, filter.User) {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (c *RESTClient) TaskStatus(ctx context.Context, upid, node string) (*TaskStatus, error) {
	if node == "" {
		n, ok := NodeFromUPID(upid)
		if !ok {
			return nil, fmt.Errorf("%w: cannot derive node from task id %q", ErrInvalidArgument, upid)
		}
		node = n
	}
	status := &TaskStatus{}
	path := fmt.Sprintf("/nodes/%s/tasks/%s/status", url.PathEscape(node), url.PathEscape(upid))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *RESTClient) CloneVM(ctx context.Context, opts CloneVMOptions) (string, error) {
	source, err := c.nodeOr(opts.SourceNode)
	if err != nil {
		return "", err
	}
	full := opts.Full == nil || *opts.Full
	form := map[string]string{
		"newid": strconv.Itoa(opts.NewVMID),
		"full":  boolParam(full),
	}
	if opts.Name != "" {
		form["name"] = opts.Name
	}
	if opts.TargetNode != "" && opts.TargetNode != source {
		form["target"] = opts.TargetNode
	}
	if full && opts.Storage != "" {
		form["storage"] = opts.Storage
	}
	return c.task(ctx, http.MethodPost, guestPath(TypeQemu, source, opts.SourceVMID, "/clone"), nil, form)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func (c *RESTClient) CreateVM(ctx context.Context, opts CreateVMOptions) (string, error) {
	node, err := c.nodeOr(opts.Node)
	if err != nil {
		return "", err
	}
	storage := orDefault(opts.Storage, c.defaults.Storage)
	if storage == "" {
		return "", fmt.Errorf("%w: storage is required", ErrInvalidArgument)
	}
	bridge := orDefault(opts.Bridge, orDefault(c.defaults.Bridge, DefaultBridge))
	agent := opts.Agent == nil || *opts.Agent

	form := map[string]string{
		"vmid":    strconv.Itoa(opts.VMID),
		"name":    opts.Name,
		"cores":   strconv.Itoa(orDefaultInt(opts.Cores, DefaultVMCores)),
		"memory":  strconv.Itoa(orDefaultInt(opts.MemoryMB, DefaultVMMemoryMB)),
		"scsihw":  orDefault(opts.SCSIHW, DefaultSCSIHW),
		"ostype":  orDefault(opts.OSType, DefaultOSType),
		"agent":   boolParam(agent),
		"scsi0":   fmt.Sprintf("%s:%d", storage, orDefaultInt(opts.DiskGB, DefaultVMDiskGB)),
		"net0":    "virtio,bridge=" + bridge,
		"boot":    "order=scsi0",
		"sockets": "1",
	}
	if opts.ISO != "" {
		form["ide2"] = opts.ISO + ",media=cdrom"
		form["boot"] = "order=scsi0;ide2"
	}
	return c.task(ctx, http.MethodPost, "/nodes/"+url.PathEscape(node)+"/qemu", nil, form)
}

func (c *RESTClient) deleteGuest(ctx context.Context, kind, node string, vmid int, purge bool) (string, error) {
	node, err := c.nodeOr(node)
	if err != nil {
		return "", err
	}
	var query map[string]string
	if purge {
		query = map[string]string{"purge": "1", "destroy-unreferenced-disks": "1"}
	}
	return c.task(ctx, http.MethodDelete, guestPath(kind, node, vmid, ""), query, nil)
}

func (c *RESTClient) guestAction(ctx context.Context, kind, node string, vmid int, action string, form map[string]string) (string, error) {
	node, err := c.nodeOr(node)
	if err != nil {
		return "", err
	}
	return c.task(ctx, http.MethodPost, guestPath(kind, node, vmid, "/status/"+action), nil, form)
}

func (c *RESTClient) DeleteVM(ctx context.Context, node string, vmid int, purge bool) (string, error) {
	return c.deleteGuest(ctx, TypeQemu, node, vmid, purge)
}

func (c *RESTClient) StartVM(ctx context.Context, node string, vmid int) (string, error) {
	return c.guestAction(ctx, TypeQemu, node, vmid, "start", nil)
}

func (c *RESTClient) StopVM(ctx context.Context, node string, vmid int, opts StopOptions) (string, error) {
	form := map[string]string{}
	if opts.Force {
		form["overrule-shutdown"] = "1"
	}
	if opts.Timeout != nil {
		form["timeout"] = strconv.Itoa(*opts.Timeout)
	}
	return c.guestAction(ctx, TypeQemu, node, vmid, "stop", form)
}

func (c *RESTClient) RebootVM(ctx context.Context, node string, vmid int) (string, error) {
	return c.guestAction(ctx, TypeQemu, node, vmid, "reboot", nil)
}

func (c *RESTClient) ShutdownVM(ctx context.Context, node string, vmid int, timeout *int) (string, error) {
	form := map[string]string{}
	if timeout != nil {
		form["timeout"] = strconv.Itoa(*timeout)
	}
	return c.guestAction(ctx, TypeQemu, node, vmid, "shutdown", form)
}

func (c *RESTClient) MigrateVM(ctx context.Context, node string, vmid int, targetNode string, online bool) (string, error) {
	node, err := c.nodeOr(node)
	if err != nil {
		return "", err
	}
	if targetNode == "" {
		return "", fmt.Errorf("%w: target node is required", ErrInvalidArgument)
	}
	form := map[string]string{"target": targetNode, "online": boolParam(online)}
	return c.task(ctx, http.MethodPost, guestPath(TypeQemu, node, vmid, "/migrate"), nil, form)
}

func (c *RESTClient) ResizeVMDisk(ctx context.Context, node string, vmid int, disk string, sizeGB int) (string, error) {
	node, err := c.nodeOr(node)
	if err != nil {
		return "", err
	}
	if disk == "" || sizeGB <= 0 {
		return "", fmt.Errorf("%w: disk and a positive size are required", ErrInvalidArgument)
	}
	form := map[string]string{"disk": disk, "size": fmt.Sprintf("%dG", sizeGB)}
	return c.task(ctx, http.MethodPut, guestPath(TypeQemu, node, vmid, "/resize"), nil, form)
}

func (c *RESTClient) ConfigureVM(ctx context.Context, node string, vmid int, params map[string]string) (string, error) {
	node, err := c.nodeOr(node)
	if err != nil {
		return "", err
	}
	if len(params) == 0 {
		return "", fmt.Errorf("%w: no parameters to set", ErrInvalidArgument)
	}
	return c.task(ctx, http.MethodPost, guestPath(TypeQemu, node, vmid, "/config"), nil, params)
}

func (c *RESTClient) CreateLXC(ctx context.Context, opts CreateLXCOptions) (string, error) {
	node, err := c.nodeOr(opts.Node)
	if err != nil {
		return "", err
	}
	if opts.OSTemplate == "" {
		return "", fmt.Errorf("%w: ostemplate is required", ErrInvalidArgument)
	}
	storage := orDefault(opts.Storage, c.defaults.Storage)
	if storage == "" {
		return "", fmt.Errorf("%w: storage is required", ErrInvalidArgument)
	}
	bridge := orDefault(opts.Bridge, orDefault(c.defaults.Bridge, DefaultBridge))

	form := map[string]string{
		"vmid":       strconv.Itoa(opts.VMID),
		"hostname":   opts.Hostname,
		"ostemplate": opts.OSTemplate,
		"cores":      strconv.Itoa(orDefaultInt(opts.Cores, DefaultLXCCores)),
		"memory":     strconv.Itoa(orDefaultInt(opts.MemoryMB, DefaultLXCMemoryMB)),
		"rootfs":     fmt.Sprintf("%s:%d", storage, orDefaultInt(opts.RootFSGB, DefaultLXCRootFSGB)),
		"net0":       fmt.Sprintf("name=eth0,bridge=%s,ip=%s", bridge, orDefault(opts.NetIP, "dhcp")),
	}
	return c.task(ctx, http.MethodPost, "/nodes/"+url.PathEscape(node)+"/lxc", nil, form)
}

func (c *RESTClient) DeleteLXC(ctx context.Context, node string, vmid int, purge bool) (string, error) {
	return c.deleteGuest(ctx, TypeLXC, node, vmid, purge)
}

func (c *RESTClient) StartLXC(ctx context.Context, node string, vmid int) (string, error) {
	return c.guestAction(ctx, TypeLXC, node, vmid, "start", nil)
}

// StopLXC stops a container immediately. With a timeout it asks for a clean
// shutdown instead and forces the stop once the timeout elapsed.
func (c *RESTClient) StopLXC(ctx context.Context, node string, vmid int, timeout *int) (string, error) {
	if timeout == nil {
		return c.guestAction(ctx, TypeLXC, node, vmid, "stop", nil)
	}
	form := map[string]string{"timeout": strconv.Itoa(*timeout), "forceStop": "1"}
	return c.guestAction(ctx, TypeLXC, node, vmid, "shutdown", form)
}

// ConfigureLXC applies params synchronously; there is no task id to return.
func (c *RESTClient) ConfigureLXC(ctx context.Context, node string, vmid int, params map[string]string) (string, error) {
	node, err := c.nodeOr(node)
	if err != nil {
		return "", err
	}
	if len(params) == 0 {
		return "", fmt.Errorf("%w: no parameters to set", ErrInvalidArgument)
	}
	return c.task(ctx, http.MethodPut, guestPath(TypeLXC, node, vmid, "/config"), nil, params)
}

// IsNotFound reports whether err is a 404 from the API or an unresolved guest.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusNotFound
	}
	return errors.Is(err, ErrResourceNotFound)
}
