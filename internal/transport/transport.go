// Package transport defines the byte-level link between the engine and a
// device, plus the adapters that provide one.
package transport

import "errors"

var (
	ErrLinkClosed = errors.New("transport: link closed")
	ErrUnknown    = errors.New("transport: unknown device")
)

// Link is the outgoing half of a device connection. Send starts an
// asynchronous transmission whose completion is reported through
// Handler.SendComplete; it must not block on the network.
type Link interface {
	Send(data []byte) error
	Disconnect() error
}

// Handler receives link notifications for devices. Calls for one device are
// delivered in order.
type Handler interface {
	LinkUp(deviceID string, link Link)
	LinkDown(deviceID string, err error)
	Received(deviceID string, data []byte)
	SendComplete(deviceID string, err error)
	// Battery level and device information travel outside the message
	// protocol on most links.
	BatteryLevel(deviceID string, level uint8)
	Information(deviceID string, field, value string)
}
