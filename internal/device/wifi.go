package device

import (
	"fmt"

	"github.com/danmuck/wearctl/internal/protocol/registry"
)

// WiFi credential limits.
const (
	MaxWifiSSIDLength     = 32
	MaxWifiPasswordLength = 64
)

type wifiState struct {
	available         bool
	ssid              string
	password          string
	connectionEnabled bool
	connected         bool
	ipAddress         string
	secure            bool
}

func (d *Device) handleWifi(t registry.MessageType, p []byte) error {
	s := &d.wifi
	switch t {
	case registry.IsWifiAvailable, registry.IsWifiConnected, registry.IsWifiSecure,
		registry.GetWifiConnectionEnabled, registry.SetWifiConnectionEnabled:
		v, err := readBool(p)
		if err != nil {
			return err
		}
		var field string
		switch t {
		case registry.IsWifiAvailable:
			s.available, field = v, "available"
		case registry.IsWifiConnected:
			s.connected, field = v, "connected"
		case registry.IsWifiSecure:
			s.secure, field = v, "secure"
		default:
			s.connectionEnabled, field = v, "connectionEnabled"
		}
		d.changed("wifi", field, v)
	case registry.GetWifiSSID, registry.SetWifiSSID:
		s.ssid = readString(p)
		d.changed("wifi", "ssid", s.ssid)
	case registry.GetWifiPassword, registry.SetWifiPassword:
		s.password = readString(p)
		d.changed("wifi", "passwordSet", s.password != "")
	case registry.IPAddress:
		s.ipAddress = readString(p)
		d.changed("wifi", "ipAddress", s.ipAddress)
	default:
		return ErrUnhandledType
	}
	return nil
}

func (d *Device) requireWifi() error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	if !d.wifi.available {
		return fmt.Errorf("%w: wifi", ErrUnsupported)
	}
	return nil
}

func (d *Device) SetWifiSSID(ssid string) error {
	if err := d.requireWifi(); err != nil {
		return err
	}
	if ssid == "" || len(ssid) > MaxWifiSSIDLength {
		return fmt.Errorf("%w: ssid length=%d", ErrInvalidArg, len(ssid))
	}
	return d.send(registry.SetWifiSSID, []byte(ssid))
}

func (d *Device) SetWifiPassword(password string) error {
	if err := d.requireWifi(); err != nil {
		return err
	}
	if len(password) > MaxWifiPasswordLength {
		return fmt.Errorf("%w: password length=%d", ErrInvalidArg, len(password))
	}
	return d.send(registry.SetWifiPassword, []byte(password))
}

func (d *Device) SetWifiConnectionEnabled(enabled bool) error {
	if err := d.requireWifi(); err != nil {
		return err
	}
	return d.send(registry.SetWifiConnectionEnabled, boolByte(enabled))
}
