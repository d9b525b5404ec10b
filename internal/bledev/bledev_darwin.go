//go:build darwin

package bledev

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// Factory creates ble.Device instances (overridable in tests).
var Factory = func() (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		return nil, err
	}
	ble.SetDefaultDevice(dev)
	return dev, nil
}
