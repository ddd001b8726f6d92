package device

import (
	"fmt"

	"github.com/danmuck/wearctl/internal/sensor"
)

// Type is the device kind reported by the information protocol.
type Type uint8

const (
	LeftInsole Type = iota
	RightInsole
	LeftGlove
	RightGlove
	Glasses
	Generic
)

var typeNames = map[Type]string{
	LeftInsole:  "leftInsole",
	RightInsole: "rightInsole",
	LeftGlove:   "leftGlove",
	RightGlove:  "rightGlove",
	Glasses:     "glasses",
	Generic:     "generic",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// Side returns the body side for paired device kinds.
func (t Type) Side() sensor.Side {
	switch t {
	case LeftInsole, LeftGlove:
		return sensor.SideLeft
	case RightInsole, RightGlove:
		return sensor.SideRight
	default:
		return sensor.SideNone
	}
}

func ParseType(name string) (Type, bool) {
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// InfoField is one device information string.
type InfoField uint8

const (
	ManufacturerName InfoField = iota
	ModelNumber
	SerialNumber
	FirmwareRevision
	HardwareRevision
	SoftwareRevision
	PnPID

	infoFieldCount
)

var infoFieldNames = [infoFieldCount]string{
	"manufacturerName", "modelNumber", "serialNumber",
	"firmwareRevision", "hardwareRevision", "softwareRevision", "pnpId",
}

func (f InfoField) String() string {
	if f < infoFieldCount {
		return infoFieldNames[f]
	}
	return fmt.Sprintf("info(%d)", uint8(f))
}

// Required reports whether the connected gate waits for f.
func (f InfoField) Required() bool {
	return f < infoFieldCount && f != PnPID
}

func ParseInfoField(name string) (InfoField, bool) {
	for i, n := range infoFieldNames {
		if n == name {
			return InfoField(i), true
		}
	}
	return 0, false
}
