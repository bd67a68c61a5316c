package manageable

import (
	"net/netip"
)

// Storage reports a device's disk usage in bytes.
type Storage struct {
	Free int64 `json:"free"`
	Used int64 `json:"used"`
}

// Preset is a recording configuration offered by a device.
type Preset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Settings groups what a device reports about itself after authentication.
type Settings struct {
	Storage *Storage       `json:"storage,omitempty"`
	Inputs  map[string]any `json:"inputs,omitempty"`
	Presets []Preset       `json:"presets,omitempty"`
}

// Device is a remote recorder.
//
// Status is runtime only: every device starts DISCONNECTED until it
// authenticates again.
type Device struct {
	Entity
	State  DeviceState   `json:"state"`
	Status SessionStatus `json:"status"`
	Group  string        `json:"group,omitempty"`
	IP     string        `json:"ip,omitempty"`
	URL    string        `json:"url,omitempty"`
	Settings
}

// NewDevice returns a pending, disconnected device.
func NewDevice(id string) *Device {
	return &Device{
		Entity: Entity{
			ID:        id,
			Type:      TypeDevice,
			History:   []*Historic{},
			Schedules: []*Schedule{},
		},
		State:  StatePending,
		Status: StatusDisconnected,
	}
}

// Property implements Manageable.
func (d *Device) Property(key string) (string, bool) {
	switch key {
	case "state":
		return string(d.State), true
	case "status":
		return string(d.Status), true
	case "group":
		return d.Group, true
	case "ip":
		return d.IP, true
	case "url":
		return d.URL, true
	}
	return d.Entity.Property(key)
}

// ApplySettings copies the non-empty parts of s onto the device.
func (d *Device) ApplySettings(s Settings) {
	if s.Storage != nil {
		d.Storage = s.Storage
	}
	if s.Inputs != nil {
		d.Inputs = s.Inputs
	}
	if s.Presets != nil {
		d.Presets = s.Presets
	}
}

// DeviceURL builds the web interface URL for an address as seen on the
// transport. IPv4-mapped IPv6 addresses are unwrapped; other IPv6 addresses
// are bracketed. Unparseable input is returned as a host name.
func DeviceURL(ip string) string {
	if ip == "" {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "http://" + ip
	}
	addr = addr.Unmap()
	if addr.Is6() {
		return "http://[" + addr.WithZone("").String() + "]"
	}
	return "http://" + addr.String()
}
