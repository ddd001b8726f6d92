package session

import "fmt"

// State is a device connection state.
type State uint8

const (
	NotConnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case NotConnected:
		return "notConnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// CanTransition reports whether from -> to is a legal handshake step.
// Same-state transitions are not transitions at all and report false.
func CanTransition(from, to State) bool {
	switch from {
	case NotConnected:
		return to == Connecting
	case Connecting:
		return to == Connected || to == Disconnecting
	case Connected:
		return to == Disconnecting
	case Disconnecting:
		return to == NotConnected
	}
	return false
}
