package udp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/wearctl/internal/protocol/codec"
)

// MessageType is the relay's own top-level message space. Device traffic
// travels inside DeviceMessage frames.
type MessageType uint8

const (
	Ping MessageType = iota
	Pong
	SetRemoteReceivePort
	DeviceMessage
	DeviceConnected
	DeviceDisconnected
	DeviceBattery
	DeviceInformation
	DisconnectDevice
)

var messageTypeNames = [...]string{
	Ping:                 "ping",
	Pong:                 "pong",
	SetRemoteReceivePort: "setRemoteReceivePort",
	DeviceMessage:        "deviceMessage",
	DeviceConnected:      "deviceConnected",
	DeviceDisconnected:   "deviceDisconnected",
	DeviceBattery:        "deviceBattery",
	DeviceInformation:    "deviceInformation",
	DisconnectDevice:     "disconnectDevice",
}

func (t MessageType) String() string {
	if int(t) < len(messageTypeNames) {
		return messageTypeNames[t]
	}
	return fmt.Sprintf("relay(%d)", uint8(t))
}

var ErrMalformed = errors.New("udp: malformed relay message")

// Frame is one decoded relay message addressed to a device, or to the relay
// itself when Device is empty.
type Frame struct {
	Type   MessageType
	Device string
	// Data carries device bytes, the battery level, or the information
	// value depending on Type.
	Data  []byte
	Field string
	Port  uint16
}

// AppendFrame appends f to dst as one Length16 codec message.
func AppendFrame(dst []byte, f Frame) ([]byte, error) {
	var payload []byte
	switch f.Type {
	case Ping, Pong:
	case SetRemoteReceivePort:
		payload = binary.LittleEndian.AppendUint16(nil, f.Port)
	case DeviceMessage, DeviceConnected, DeviceDisconnected, DeviceBattery, DisconnectDevice:
		var err error
		if payload, err = appendString8(nil, f.Device); err != nil {
			return dst, err
		}
		payload = append(payload, f.Data...)
	case DeviceInformation:
		var err error
		if payload, err = appendString8(nil, f.Device); err != nil {
			return dst, err
		}
		if payload, err = appendString8(payload, f.Field); err != nil {
			return dst, err
		}
		payload = append(payload, f.Data...)
	default:
		return dst, fmt.Errorf("%w: type=%s", ErrMalformed, f.Type)
	}
	return codec.AppendMessage(dst, codec.Message{Type: byte(f.Type), Payload: payload}, codec.Length16)
}

// ParseFrames decodes every relay message in one datagram. Frames decoded
// before a malformed one are returned with the error.
func ParseFrames(datagram []byte) ([]Frame, error) {
	var (
		out  []Frame
		errs []error
	)
	err := codec.Each(datagram, 0, codec.Length16, func(m codec.Message) {
		f, err := parseFrame(m)
		if err != nil {
			errs = append(errs, err)
			return
		}
		out = append(out, f)
	})
	if err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

func parseFrame(m codec.Message) (Frame, error) {
	f := Frame{Type: MessageType(m.Type)}
	p := m.Payload
	switch f.Type {
	case Ping, Pong:
	case SetRemoteReceivePort:
		if len(p) != 2 {
			return f, fmt.Errorf("%w: %s len=%d", ErrMalformed, f.Type, len(p))
		}
		f.Port = binary.LittleEndian.Uint16(p)
	case DeviceMessage, DeviceConnected, DeviceDisconnected, DeviceBattery, DisconnectDevice:
		id, rest, err := readString8(p)
		if err != nil {
			return f, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Type, err)
		}
		f.Device, f.Data = id, rest
		if f.Type == DeviceBattery && len(rest) != 1 {
			return f, fmt.Errorf("%w: %s len=%d", ErrMalformed, f.Type, len(rest))
		}
	case DeviceInformation:
		id, rest, err := readString8(p)
		if err == nil {
			f.Device = id
			f.Field, f.Data, err = readString8(rest)
		}
		if err != nil {
			return f, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Type, err)
		}
	default:
		return f, fmt.Errorf("%w: unknown type=%d", ErrMalformed, m.Type)
	}
	if f.Device == "" && f.Type >= DeviceMessage {
		return f, fmt.Errorf("%w: %s without device id", ErrMalformed, f.Type)
	}
	return f, nil
}

func appendString8(dst []byte, s string) ([]byte, error) {
	if len(s) > 0xFF {
		return dst, fmt.Errorf("%w: string length=%d", ErrMalformed, len(s))
	}
	dst = append(dst, byte(len(s)))
	return append(dst, s...), nil
}

func readString8(p []byte) (string, []byte, error) {
	if len(p) < 1 || len(p) < 1+int(p[0]) {
		return "", nil, errors.New("short string")
	}
	n := int(p[0])
	return string(p[1 : 1+n]), p[1+n:], nil
}
