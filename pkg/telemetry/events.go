package telemetry

import (
	"fmt"
	"time"

	"github.com/Stefanor62/racebox-v/pkg/protocol"
	"github.com/Stefanor62/racebox-v/scanner"
)

// EventType classifies lifecycle and diagnostic events.
type EventType int

const (
	// EventDeviceFound: discovery selected a device.
	EventDeviceFound EventType = iota
	// EventConnected: the link is up and subscribed.
	EventConnected
	// EventReconnecting: the link dropped, a retry is pending.
	EventReconnecting
	// EventDisconnected: the connection is terminally down.
	EventDisconnected
	// EventDecodeError: a frame was rejected; the loop continues.
	EventDecodeError
)

func (t EventType) String() string {
	switch t {
	case EventDeviceFound:
		return "device_found"
	case EventConnected:
		return "connected"
	case EventReconnecting:
		return "reconnecting"
	case EventDisconnected:
		return "disconnected"
	case EventDecodeError:
		return "decode_error"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a lifecycle or diagnostic notification delivered alongside
// the reading stream. Only the fields relevant to Type are set.
type Event struct {
	Type EventType
	Time time.Time

	Device     scanner.DeviceDescriptor // DeviceFound, Connected
	MTU        int                      // Connected
	Attempt    int                      // Reconnecting
	Reason     error                    // Disconnected
	DecodeKind protocol.DecodeErrorKind // DecodeError
}
