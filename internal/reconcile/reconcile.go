// Package reconcile makes a NetBox inventory contain a device for the local
// host. Every supporting record is looked up by natural key and created only
// when missing; an existing device ends the run without changes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stone-age-io/autoregister/internal/hostinfo"
	"github.com/stone-age-io/autoregister/internal/netbox"
	"go.uber.org/zap"
)

// Defaults applied when a SiteConfig leaves the field empty
const (
	DefaultRoleColor     = "ff0000"
	DefaultInterfaceType = "1000base-t"
	DefaultDeviceStatus  = "active"
	DefaultIPStatus      = "active"
)

// Backend is the subset of the NetBox API the reconciler uses.
// *netbox.Client satisfies it.
type Backend interface {
	GetTag(ctx context.Context, name string) (*netbox.Tag, bool, error)
	CreateTag(ctx context.Context, req netbox.TagRequest) (*netbox.Tag, error)
	GetManufacturer(ctx context.Context, name string) (*netbox.Manufacturer, bool, error)
	CreateManufacturer(ctx context.Context, req netbox.ManufacturerRequest) (*netbox.Manufacturer, error)
	GetDeviceType(ctx context.Context, model string) (*netbox.DeviceType, bool, error)
	CreateDeviceType(ctx context.Context, req netbox.DeviceTypeRequest) (*netbox.DeviceType, error)
	GetDeviceRole(ctx context.Context, name string) (*netbox.DeviceRole, bool, error)
	CreateDeviceRole(ctx context.Context, req netbox.DeviceRoleRequest) (*netbox.DeviceRole, error)
	GetDevice(ctx context.Context, name string, siteID int) (*netbox.Device, bool, error)
	CreateDevice(ctx context.Context, req netbox.DeviceRequest) (*netbox.Device, error)
	CreateInterface(ctx context.Context, req netbox.InterfaceRequest) (*netbox.Interface, error)
	CreateIPAddress(ctx context.Context, req netbox.IPAddressRequest) (*netbox.IPAddress, error)
}

var _ Backend = (*netbox.Client)(nil)

// NameTargets names the role, device type and manufacturer to resolve or create
type NameTargets struct {
	Role         string
	DeviceType   string
	Manufacturer string
}

// IDTargets references a pre-provisioned role and device type
type IDTargets struct {
	RoleID       int
	DeviceTypeID int
}

// SiteConfig describes where and how the device is registered.
// Exactly one of Names and IDs must be set.
type SiteConfig struct {
	SiteID        int
	TagName       string
	Names         *NameTargets
	IDs           *IDTargets
	InterfaceType string
	RoleColor     string
	DeviceStatus  string
}

// Validate checks the variant and required fields
func (s SiteConfig) Validate() error {
	if s.SiteID <= 0 {
		return fmt.Errorf("site id must be positive, got %d", s.SiteID)
	}
	if s.TagName == "" {
		return errors.New("tag name is required")
	}

	switch {
	case s.Names != nil && s.IDs != nil:
		return errors.New("site config sets both names and ids")
	case s.Names != nil:
		if s.Names.Role == "" || s.Names.DeviceType == "" || s.Names.Manufacturer == "" {
			return errors.New("role, device type and manufacturer names are required")
		}
	case s.IDs != nil:
		if s.IDs.RoleID <= 0 || s.IDs.DeviceTypeID <= 0 {
			return errors.New("role id and device type id must be positive")
		}
	default:
		return errors.New("site config sets neither names nor ids")
	}
	return nil
}

func (s SiteConfig) interfaceType() string {
	if s.InterfaceType == "" {
		return DefaultInterfaceType
	}
	return s.InterfaceType
}

func (s SiteConfig) roleColor() string {
	if s.RoleColor == "" {
		return DefaultRoleColor
	}
	return s.RoleColor
}

func (s SiteConfig) deviceStatus() string {
	if s.DeviceStatus == "" {
		return DefaultDeviceStatus
	}
	return s.DeviceStatus
}

// Status is the outcome of a reconcile run
type Status string

const (
	StatusCreated       Status = "created"
	StatusAlreadyExists Status = "already_exists"
)

// Record kinds
const (
	KindTag          = "tag"
	KindManufacturer = "manufacturer"
	KindDeviceType   = "device_type"
	KindDeviceRole   = "device_role"
	KindDevice       = "device"
	KindInterface    = "interface"
	KindIPAddress    = "ip_address"
)

// Record identifies one inventory record touched by a run
type Record struct {
	Kind string `json:"kind"`
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Result summarizes a run. DeviceID is set in both outcomes; InterfaceID and
// IPAddressID only when the device was created.
type Result struct {
	Status      Status   `json:"status"`
	Hostname    string   `json:"hostname"`
	SiteID      int      `json:"site_id"`
	DeviceID    int      `json:"device_id"`
	InterfaceID int      `json:"interface_id,omitempty"`
	IPAddressID int      `json:"ip_address_id,omitempty"`
	Created     []Record `json:"created"`
	Existing    []Record `json:"existing"`
}

// Slugify lowercases name and replaces spaces with hyphens. Nothing else is
// normalized, so names with other punctuation keep it.
func Slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}

// Reconciler performs the get-or-create sequence against a Backend
type Reconciler struct {
	backend Backend
	logger  *zap.Logger
}

// New creates a reconciler
func New(backend Backend, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{backend: backend, logger: logger}
}

// Reconcile registers host in the site. The order is fixed: tag,
// manufacturer, device type, role, device, interface, IP address. The first
// error aborts the run; records created before it are left in place.
func (r *Reconciler) Reconcile(ctx context.Context, host hostinfo.HostInfo, site SiteConfig) (Result, error) {
	result := Result{Hostname: host.Hostname, SiteID: site.SiteID}

	if err := site.Validate(); err != nil {
		return result, fmt.Errorf("invalid site config: %w", err)
	}

	tagID, err := r.ensureTag(ctx, site.TagName, &result)
	if err != nil {
		return result, err
	}

	roleID, deviceTypeID, err := r.resolveTargets(ctx, site, &result)
	if err != nil {
		return result, err
	}

	device, found, err := r.backend.GetDevice(ctx, host.Hostname, site.SiteID)
	if err != nil {
		return result, fmt.Errorf("failed to look up device %q: %w", host.Hostname, err)
	}
	if found {
		result.Status = StatusAlreadyExists
		result.DeviceID = device.ID
		r.existing(&result, KindDevice, device.ID, device.Name)
		r.logger.Info("Device already exists, skipping creation",
			zap.String("hostname", host.Hostname),
			zap.Int("site_id", site.SiteID),
			zap.Int("device_id", device.ID))
		return result, nil
	}

	device, err = r.backend.CreateDevice(ctx, netbox.DeviceRequest{
		Name:       host.Hostname,
		Role:       roleID,
		DeviceType: deviceTypeID,
		Site:       site.SiteID,
		Status:     site.deviceStatus(),
		Tags:       []int{tagID},
	})
	if err != nil {
		return result, fmt.Errorf("failed to create device %q: %w", host.Hostname, err)
	}
	result.DeviceID = device.ID
	r.created(&result, KindDevice, device.ID, host.Hostname)

	iface, err := r.backend.CreateInterface(ctx, netbox.InterfaceRequest{
		Device:     device.ID,
		Name:       host.InterfaceName,
		Type:       site.interfaceType(),
		MACAddress: host.MACAddress,
	})
	if err != nil {
		return result, fmt.Errorf("failed to create interface %q on device %d: %w", host.InterfaceName, device.ID, err)
	}
	result.InterfaceID = iface.ID
	r.created(&result, KindInterface, iface.ID, host.InterfaceName)

	ip, err := r.backend.CreateIPAddress(ctx, netbox.IPAddressRequest{
		Address:            host.IPv4CIDR,
		Status:             DefaultIPStatus,
		AssignedObjectType: netbox.AssignedObjectInterface,
		AssignedObjectID:   iface.ID,
	})
	if err != nil {
		return result, fmt.Errorf("failed to create IP address %s on interface %d: %w", host.IPv4CIDR, iface.ID, err)
	}
	result.IPAddressID = ip.ID
	r.created(&result, KindIPAddress, ip.ID, host.IPv4CIDR)

	result.Status = StatusCreated
	return result, nil
}

func (r *Reconciler) ensureTag(ctx context.Context, name string, result *Result) (int, error) {
	tag, found, err := r.backend.GetTag(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to look up tag %q: %w", name, err)
	}
	if found {
		r.existing(result, KindTag, tag.ID, name)
		return tag.ID, nil
	}

	tag, err = r.backend.CreateTag(ctx, netbox.TagRequest{Name: name, Slug: Slugify(name)})
	if err != nil {
		return 0, fmt.Errorf("failed to create tag %q: %w", name, err)
	}
	r.created(result, KindTag, tag.ID, name)
	return tag.ID, nil
}

// resolveTargets returns the role and device type ids. The ids variant
// skips every lookup.
func (r *Reconciler) resolveTargets(ctx context.Context, site SiteConfig, result *Result) (int, int, error) {
	if site.IDs != nil {
		return site.IDs.RoleID, site.IDs.DeviceTypeID, nil
	}
	names := site.Names

	manufacturerID, err := r.ensureManufacturer(ctx, names.Manufacturer, result)
	if err != nil {
		return 0, 0, err
	}
	deviceTypeID, err := r.ensureDeviceType(ctx, names.DeviceType, manufacturerID, result)
	if err != nil {
		return 0, 0, err
	}
	roleID, err := r.ensureDeviceRole(ctx, names.Role, site.roleColor(), result)
	if err != nil {
		return 0, 0, err
	}
	return roleID, deviceTypeID, nil
}

func (r *Reconciler) ensureManufacturer(ctx context.Context, name string, result *Result) (int, error) {
	m, found, err := r.backend.GetManufacturer(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to look up manufacturer %q: %w", name, err)
	}
	if found {
		r.existing(result, KindManufacturer, m.ID, name)
		return m.ID, nil
	}

	m, err = r.backend.CreateManufacturer(ctx, netbox.ManufacturerRequest{Name: name, Slug: Slugify(name)})
	if err != nil {
		return 0, fmt.Errorf("failed to create manufacturer %q: %w", name, err)
	}
	r.created(result, KindManufacturer, m.ID, name)
	return m.ID, nil
}

func (r *Reconciler) ensureDeviceType(ctx context.Context, model string, manufacturerID int, result *Result) (int, error) {
	dt, found, err := r.backend.GetDeviceType(ctx, model)
	if err != nil {
		return 0, fmt.Errorf("failed to look up device type %q: %w", model, err)
	}
	if found {
		r.existing(result, KindDeviceType, dt.ID, model)
		return dt.ID, nil
	}

	dt, err = r.backend.CreateDeviceType(ctx, netbox.DeviceTypeRequest{
		Model:        model,
		Slug:         Slugify(model),
		Manufacturer: manufacturerID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create device type %q: %w", model, err)
	}
	r.created(result, KindDeviceType, dt.ID, model)
	return dt.ID, nil
}

func (r *Reconciler) ensureDeviceRole(ctx context.Context, name, color string, result *Result) (int, error) {
	role, found, err := r.backend.GetDeviceRole(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to look up device role %q: %w", name, err)
	}
	if found {
		r.existing(result, KindDeviceRole, role.ID, name)
		return role.ID, nil
	}

	role, err = r.backend.CreateDeviceRole(ctx, netbox.DeviceRoleRequest{
		Name:  name,
		Slug:  Slugify(name),
		Color: color,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create device role %q: %w", name, err)
	}
	r.created(result, KindDeviceRole, role.ID, name)
	return role.ID, nil
}

func (r *Reconciler) created(result *Result, kind string, id int, name string) {
	result.Created = append(result.Created, Record{Kind: kind, ID: id, Name: name})
	r.logger.Info("Created NetBox record",
		zap.String("kind", kind),
		zap.Int("id", id),
		zap.String("name", name))
}

func (r *Reconciler) existing(result *Result, kind string, id int, name string) {
	result.Existing = append(result.Existing, Record{Kind: kind, ID: id, Name: name})
	r.logger.Debug("Found existing NetBox record",
		zap.String("kind", kind),
		zap.Int("id", id),
		zap.String("name", name))
}

// CreatedCount returns how many records of kind were created
func (r Result) CreatedCount(kind string) int {
	n := 0
	for _, rec := range r.Created {
		if rec.Kind == kind {
			n++
		}
	}
	return n
}
