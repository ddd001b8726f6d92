package device

import (
	"github.com/danmuck/wearctl/internal/protocol/registry"
	"github.com/danmuck/wearctl/internal/protocol/session"
)

type batteryState struct {
	level    *uint8
	charging *bool
	current  *float32
}

// SetBatteryLevel records the battery level reported outside the message
// protocol, and re-runs the connected gate.
func (d *Device) SetBatteryLevel(level uint8) {
	if d.state == session.NotConnected {
		return
	}
	d.battery.level = &level
	d.changed("battery", "level", level)
	d.checkConnection()
}

func (d *Device) handleBattery(t registry.MessageType, p []byte) error {
	switch t {
	case registry.IsBatteryCharging:
		v, err := readBool(p)
		if err != nil {
			return err
		}
		d.battery.charging = &v
		d.changed("battery", "charging", v)
	case registry.GetBatteryCurrent:
		v, err := readF32(p)
		if err != nil {
			return err
		}
		d.battery.current = &v
		d.changed("battery", "current", v)
	default:
		return ErrUnhandledType
	}
	return nil
}
