// Package netbox is a small client for the parts of the NetBox REST API the
// agent needs: natural-key lookups and creates for the records a device
// registration touches.
package netbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Resource paths relative to /api/
const (
	ResourceTags          = "extras/tags"
	ResourceManufacturers = "dcim/manufacturers"
	ResourceDeviceTypes   = "dcim/device-types"
	ResourceDeviceRoles   = "dcim/device-roles"
	ResourceDevices       = "dcim/devices"
	ResourceInterfaces    = "dcim/interfaces"
	ResourceIPAddresses   = "ipam/ip-addresses"
)

// maxErrorBody caps how much of an error response is kept in BackendError
const maxErrorBody = 4096

// Options configures a Client
type Options struct {
	URL                string
	Token              string
	Scheme             string // "Token" (default) or "Bearer"
	Timeout            time.Duration
	InsecureSkipVerify bool
	UserAgent          string
}

// Client talks to one NetBox instance. It is safe for sequential use;
// the agent never issues concurrent calls.
type Client struct {
	apiURL     string
	token      string
	scheme     string
	userAgent  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a NetBox API client
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "Token"
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "autoregister"
	}

	return &Client{
		apiURL:     apiURL(opts.URL),
		token:      opts.Token,
		scheme:     scheme,
		userAgent:  userAgent,
		httpClient: createHTTPClient(opts.Timeout, opts.InsecureSkipVerify),
		logger:     logger,
	}
}

// createHTTPClient creates the HTTP client used for every API call
func createHTTPClient(timeout time.Duration, insecureSkipVerify bool) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          2,
		IdleConnTimeout:       90 * time.Second,
	}
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{Timeout: timeout, Transport: transport}
}

// apiURL normalizes a NetBox base URL to its /api root
func apiURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" || strings.HasSuffix(base, "/api") {
		return base
	}
	return base + "/api"
}

// SetToken replaces the API token, used after token provisioning
func (c *Client) SetToken(token string) {
	c.token = token
}

type listResponse[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

// getOne looks up a single record by filter. More than one match is an
// error because lookups are by natural key.
func getOne[T any](ctx context.Context, c *Client, resource string, filter url.Values) (*T, bool, error) {
	filter.Set("limit", "2")

	var list listResponse[T]
	if err := c.do(ctx, "get", http.MethodGet, resource+"/", filter, nil, &list); err != nil {
		return nil, false, err
	}

	switch len(list.Results) {
	case 0:
		return nil, false, nil
	case 1:
		return &list.Results[0], true, nil
	default:
		return nil, false, &BackendError{
			Op:       "get",
			Resource: resource,
			Err:      fmt.Errorf("%w: %s (%d matches)", ErrMultipleResults, filter.Encode(), list.Count),
		}
	}
}

func create[T any](ctx context.Context, c *Client, resource string, body any) (*T, error) {
	var out T
	if err := c.do(ctx, "create", http.MethodPost, resource+"/", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one API request and decodes the JSON response into out
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	resource := strings.TrimSuffix(path, "/")

	endpoint := c.apiURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &BackendError{Op: op, Resource: resource, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &BackendError{Op: op, Resource: resource, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", c.scheme+" "+c.token)
	}

	c.logger.Debug("NetBox request",
		zap.String("method", method),
		zap.String("resource", resource),
		zap.String("query", query.Encode()),
		zap.String("request_id", requestID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &BackendError{Op: op, Resource: resource, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		cause := ErrUnexpectedStatus
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			cause = ErrNotAuthorized
		}
		return &BackendError{
			Op:         op,
			Resource:   resource,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
			Err:        cause,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &BackendError{Op: op, Resource: resource, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
}

// GetTag looks up a tag by name
func (c *Client) GetTag(ctx context.Context, name string) (*Tag, bool, error) {
	return getOne[Tag](ctx, c, ResourceTags, url.Values{"name": {name}})
}

func (c *Client) CreateTag(ctx context.Context, req TagRequest) (*Tag, error) {
	return create[Tag](ctx, c, ResourceTags, req)
}

// GetManufacturer looks up a manufacturer by name
func (c *Client) GetManufacturer(ctx context.Context, name string) (*Manufacturer, bool, error) {
	return getOne[Manufacturer](ctx, c, ResourceManufacturers, url.Values{"name": {name}})
}

func (c *Client) CreateManufacturer(ctx context.Context, req ManufacturerRequest) (*Manufacturer, error) {
	return create[Manufacturer](ctx, c, ResourceManufacturers, req)
}

// GetDeviceType looks up a device type by model
func (c *Client) GetDeviceType(ctx context.Context, model string) (*DeviceType, bool, error) {
	return getOne[DeviceType](ctx, c, ResourceDeviceTypes, url.Values{"model": {model}})
}

func (c *Client) CreateDeviceType(ctx context.Context, req DeviceTypeRequest) (*DeviceType, error) {
	return create[DeviceType](ctx, c, ResourceDeviceTypes, req)
}

// GetDeviceRole looks up a device role by name
func (c *Client) GetDeviceRole(ctx context.Context, name string) (*DeviceRole, bool, error) {
	return getOne[DeviceRole](ctx, c, ResourceDeviceRoles, url.Values{"name": {name}})
}

func (c *Client) CreateDeviceRole(ctx context.Context, req DeviceRoleRequest) (*DeviceRole, error) {
	return create[DeviceRole](ctx, c, ResourceDeviceRoles, req)
}

// GetDevice looks up a device by name within a site
func (c *Client) GetDevice(ctx context.Context, name string, siteID int) (*Device, bool, error) {
	return getOne[Device](ctx, c, ResourceDevices, url.Values{
		"name":    {name},
		"site_id": {strconv.Itoa(siteID)},
	})
}

func (c *Client) CreateDevice(ctx context.Context, req DeviceRequest) (*Device, error) {
	return create[Device](ctx, c, ResourceDevices, req)
}

func (c *Client) CreateInterface(ctx context.Context, req InterfaceRequest) (*Interface, error) {
	return create[Interface](ctx, c, ResourceInterfaces, req)
}

func (c *Client) CreateIPAddress(ctx context.Context, req IPAddressRequest) (*IPAddress, error) {
	return create[IPAddress](ctx, c, ResourceIPAddresses, req)
}

// Status reads /api/status/, which doubles as a token check
func (c *Client) Status(ctx context.Context) (*StatusInfo, error) {
	var info StatusInfo
	if err := c.do(ctx, "status", http.MethodGet, "status/", nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

type provisionRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type provisionResponse struct {
	Key   string `json:"key"`
	Token string `json:"token"`
}

// ProvisionToken exchanges a username and password for a new API token.
// The request is sent without an Authorization header.
func (c *Client) ProvisionToken(ctx context.Context, username, password string) (string, error) {
	saved := c.token
	c.token = ""
	defer func() { c.token = saved }()

	var resp provisionResponse
	err := c.do(ctx, "provision", http.MethodPost, "users/tokens/provision/", nil,
		provisionRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return "", err
	}

	token := resp.Key
	if token == "" {
		token = resp.Token
	}
	if token == "" {
		return "", &BackendError{
			Op:       "provision",
			Resource: "users/tokens/provision",
			Err:      errors.New("response contained no token"),
		}
	}
	return token, nil
}
