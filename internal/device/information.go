package device

import (
	"fmt"
	"time"

	"github.com/danmuck/wearctl/internal/protocol/registry"
	"github.com/danmuck/wearctl/internal/protocol/session"
)

// mtuOverhead is the transport header subtracted from the MTU to get the
// usable batch size.
const mtuOverhead = 3

// MaxNameLength bounds names accepted by SetName.
const MaxNameLength = 30

type informationState struct {
	mtu         uint16
	reportedID  string
	name        string
	deviceType  *Type
	currentTime uint64
	fields      [infoFieldCount]string
}

// SetInformation records one device information string and re-runs the
// connected gate.
func (d *Device) SetInformation(field InfoField, value string) {
	if d.state == session.NotConnected || field >= infoFieldCount {
		return
	}
	d.info.fields[field] = value
	d.changed("information", field.String(), value)
	d.checkConnection()
}

func (d *Device) handleInformation(t registry.MessageType, p []byte) error {
	switch t {
	case registry.GetMtu:
		mtu, err := readU16(p)
		if err != nil {
			return err
		}
		d.info.mtu = mtu
		d.outbox.SetMaxSize(max(int(mtu)-mtuOverhead, 0))
		d.changed("information", "mtu", mtu)
	case registry.GetID:
		d.info.reportedID = readString(p)
		d.changed("information", "id", d.info.reportedID)
	case registry.GetName, registry.SetName:
		d.info.name = readString(p)
		d.changed("information", "name", d.info.name)
	case registry.GetType, registry.SetType:
		v, err := readU8(p)
		if err != nil {
			return err
		}
		dt := Type(v)
		if !dt.Valid() {
			return fmt.Errorf("%w: device type=%d", ErrPayload, v)
		}
		d.info.deviceType = &dt
		d.changed("information", "type", dt.String())
	case registry.GetCurrentTime, registry.SetCurrentTime:
		v, err := readU64(p)
		if err != nil {
			return err
		}
		d.info.currentTime = v
		d.changed("information", "currentTime", v)
	default:
		return ErrUnhandledType
	}
	return nil
}

func (d *Device) SetName(name string) error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	if name == "" || len(name) > MaxNameLength {
		return fmt.Errorf("%w: name length=%d", ErrInvalidArg, len(name))
	}
	return d.send(registry.SetName, []byte(name))
}

func (d *Device) SetType(t Type) error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	if !t.Valid() {
		return fmt.Errorf("%w: type=%d", ErrInvalidArg, uint8(t))
	}
	return d.send(registry.SetType, []byte{byte(t)})
}

func (d *Device) SetCurrentTime(at time.Time) error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	return d.send(registry.SetCurrentTime, u64Bytes(uint64(at.UnixMilli())))
}

// DeviceType returns the reported device type once known.
func (d *Device) DeviceType() (Type, bool) {
	if d.info.deviceType == nil {
		return 0, false
	}
	return *d.info.deviceType, true
}

func (d *Device) Name() string { return d.info.name }
