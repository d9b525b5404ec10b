//go:build linux

package bledev

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// Factory creates ble.Device instances (overridable in tests).
var Factory = func() (ble.Device, error) {
	dev, err := linux.NewDevice()
	if err != nil {
		return nil, err
	}
	ble.SetDefaultDevice(dev)
	return dev, nil
}
