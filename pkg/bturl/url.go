// Package bturl implements the hierarchical identifier used throughout the
// governor layer to address adapters, devices, and characteristics.
package bturl

import (
	"fmt"
	"strings"
)

// URL identifies an adapter, a device under an adapter, or a characteristic
// under a device. Trailing segments are optional: an adapter URL has no
// device or characteristic address, a device URL has no characteristic
// address.
//
// Adapter and device addresses are case-insensitive (MAC addresses); they
// are normalized to lower case by every constructor in this package.
type URL struct {
	Protocol            string
	AdapterAddress      string
	DeviceAddress       string
	CharacteristicUUID  string
}

// New builds a URL from its components, normalizing addresses to lower case.
func New(protocol, adapterAddress, deviceAddress, characteristicUUID string) URL {
	return URL{
		Protocol:           protocol,
		AdapterAddress:     strings.ToLower(adapterAddress),
		DeviceAddress:      strings.ToLower(deviceAddress),
		CharacteristicUUID: strings.ToLower(characteristicUUID),
	}
}

// Parse decodes "protocol://adapterAddress/deviceAddress/characteristicUUID".
// The protocol and every segment after adapterAddress are optional.
func Parse(s string) (URL, error) {
	proto, rest := "", s
	if idx := strings.Index(s, "://"); idx >= 0 {
		proto, rest = s[:idx], s[idx+3:]
	}
	if rest == "" {
		return URL{}, fmt.Errorf("bturl: %q has no adapter address", s)
	}

	parts := strings.Split(rest, "/")
	if len(parts) > 3 {
		return URL{}, fmt.Errorf("bturl: %q has too many segments", s)
	}

	u := URL{Protocol: proto}
	u.AdapterAddress = strings.ToLower(parts[0])
	if len(parts) > 1 {
		u.DeviceAddress = strings.ToLower(parts[1])
	}
	if len(parts) > 2 {
		u.CharacteristicUUID = strings.ToLower(parts[2])
	}
	if u.AdapterAddress == "" {
		return URL{}, fmt.Errorf("bturl: %q has an empty adapter address", s)
	}
	return u, nil
}

// String renders the URL back to its canonical string form.
func (u URL) String() string {
	var b strings.Builder
	if u.Protocol != "" {
		b.WriteString(u.Protocol)
		b.WriteString("://")
	}
	b.WriteString(u.AdapterAddress)
	if u.DeviceAddress != "" {
		b.WriteByte('/')
		b.WriteString(u.DeviceAddress)
	}
	if u.CharacteristicUUID != "" {
		b.WriteByte('/')
		b.WriteString(u.CharacteristicUUID)
	}
	return b.String()
}

// IsAdapter reports whether u addresses an adapter only.
func (u URL) IsAdapter() bool {
	return u.AdapterAddress != "" && u.DeviceAddress == "" && u.CharacteristicUUID == ""
}

// IsDevice reports whether u addresses a device (not a characteristic).
func (u URL) IsDevice() bool {
	return u.DeviceAddress != "" && u.CharacteristicUUID == ""
}

// IsCharacteristic reports whether u addresses a characteristic.
func (u URL) IsCharacteristic() bool {
	return u.CharacteristicUUID != ""
}

// AdapterURL returns the adapter-level view of u.
func (u URL) AdapterURL() URL {
	return URL{Protocol: u.Protocol, AdapterAddress: u.AdapterAddress}
}

// DeviceURL returns the device-level view of u. Meaningless if u is
// adapter-only; callers should check IsDevice/IsCharacteristic first.
func (u URL) DeviceURL() URL {
	return URL{Protocol: u.Protocol, AdapterAddress: u.AdapterAddress, DeviceAddress: u.DeviceAddress}
}

// CharacteristicURL returns u itself; provided for symmetry with
// AdapterURL/DeviceURL so callers can write u.CharacteristicURL() uniformly.
func (u URL) CharacteristicURL() URL {
	return u
}

// CopyWithProtocol returns a copy of u bound to a specific backend protocol.
func (u URL) CopyWithProtocol(protocol string) URL {
	c := u
	c.Protocol = protocol
	return c
}

// Equals compares two URLs by address. Protocol only participates when both
// sides have one set; an unset protocol on either side is treated as a
// wildcard so a raw URL matches the protocol-bound URL a backend returns.
func (u URL) Equals(other URL) bool {
	if u.AdapterAddress != other.AdapterAddress ||
		u.DeviceAddress != other.DeviceAddress ||
		u.CharacteristicUUID != other.CharacteristicUUID {
		return false
	}
	if u.Protocol != "" && other.Protocol != "" && u.Protocol != other.Protocol {
		return false
	}
	return true
}

// IsDescendant reports whether u's address prefix strictly extends parent's:
// a device is a descendant of its adapter, a characteristic of its device
// and of its adapter.
// An entity is never its own descendant.
func (u URL) IsDescendant(parent URL) bool {
	if parent.Protocol != "" && u.Protocol != "" && parent.Protocol != u.Protocol {
		return false
	}
	if parent.AdapterAddress == "" || u.AdapterAddress != parent.AdapterAddress {
		return false
	}
	switch {
	case parent.IsAdapter():
		return u.DeviceAddress != ""
	case parent.IsDevice():
		return u.CharacteristicUUID != "" && u.DeviceAddress == parent.DeviceAddress
	default:
		return false
	}
}
