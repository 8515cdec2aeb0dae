package netbox

// Ref is the nested form NetBox uses for foreign keys in responses
type Ref struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
	Slug string `json:"slug,omitempty"`
}

// Choice is a NetBox choice field such as status
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type Tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type TagRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Manufacturer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type ManufacturerRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type DeviceType struct {
	ID           int    `json:"id"`
	Model        string `json:"model"`
	Slug         string `json:"slug"`
	Manufacturer *Ref   `json:"manufacturer,omitempty"`
}

type DeviceTypeRequest struct {
	Model        string `json:"model"`
	Slug         string `json:"slug"`
	Manufacturer int    `json:"manufacturer"`
}

type DeviceRole struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Color string `json:"color"`
}

type DeviceRoleRequest struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Color string `json:"color"`
}

type Device struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Site   *Ref    `json:"site,omitempty"`
	Status *Choice `json:"status,omitempty"`
}

// DeviceRequest references role, device type, site and tags by id
type DeviceRequest struct {
	Name       string `json:"name"`
	Role       int    `json:"role"`
	DeviceType int    `json:"device_type"`
	Site       int    `json:"site"`
	Status     string `json:"status"`
	Tags       []int  `json:"tags"`
}

type Interface struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Device     *Ref   `json:"device,omitempty"`
	MACAddress string `json:"mac_address,omitempty"`
}

type InterfaceRequest struct {
	Device     int    `json:"device"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	MACAddress string `json:"mac_address,omitempty"`
}

type IPAddress struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
}

// AssignedObjectInterface is the content type of a device interface
const AssignedObjectInterface = "dcim.interface"

type IPAddressRequest struct {
	Address            string `json:"address"`
	Status             string `json:"status"`
	AssignedObjectType string `json:"assigned_object_type"`
	AssignedObjectID   int    `json:"assigned_object_id"`
}

// StatusInfo is the subset of /api/status/ the agent reports
type StatusInfo struct {
	NetBoxVersion string `json:"netbox-version"`
	PythonVersion string `json:"python-version"`
}
