// Package connection manages the lifecycle of a single RaceBox device
// connection: discovery, connect, MTU negotiation, link-loss detection
// and bounded retry/reconnect.
package connection

import (
	"context"
	"errors"
	"time"

	"github.com/Stefanor62/racebox-v/scanner"
)

// Errors surfaced by the connection manager.
var (
	// ErrDeviceNotFound: no matching device within the scan timeout.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrConnectTimeout: the transport did not connect in time.
	ErrConnectTimeout = errors.New("connection timed out")
	// ErrRetriesExhausted: the retry budget is spent; the manager is
	// terminally disconnected.
	ErrRetriesExhausted = errors.New("connection retries exhausted")
	// ErrLinkLost: no data for longer than the device timeout, or the
	// transport reported a disconnect.
	ErrLinkLost = errors.New("link lost")
	// ErrStopped: the manager was stopped by request.
	ErrStopped = errors.New("stopped by request")
)

// Link is an established device connection. The core consumes it as
// pure byte-stream plumbing.
type Link interface {
	// ExchangeMTU requests the desired MTU and returns the value the
	// transport actually negotiated, which may be smaller.
	ExchangeMTU(desired int) (int, error)
	// Subscribe registers the notification handler for the device's
	// TX characteristic. onData is invoked once per notification chunk.
	Subscribe(onData func([]byte)) error
	// Write sends bytes to the device's RX characteristic.
	Write(p []byte) error
	// Disconnected is closed when the transport detects link loss.
	Disconnected() <-chan struct{}
	// Close tears the connection down.
	Close() error
}

// Transport abstracts the wireless stack: discovery plus dialing.
type Transport interface {
	// Scan discovers peripherals whose advertised name matches any of
	// the prefixes, bounded by timeout.
	Scan(ctx context.Context, timeout time.Duration, prefixes []string) ([]scanner.DeviceDescriptor, error)
	// Dial connects to a discovered peripheral, bounded by timeout.
	Dial(ctx context.Context, desc scanner.DeviceDescriptor, timeout time.Duration) (Link, error)
}
