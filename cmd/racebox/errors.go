package main

import (
	"errors"

	"github.com/Stefanor62/racebox-v/pkg/connection"
)

// FormatUserError turns pipeline errors into actionable messages for the
// terminal. Unknown errors pass through unchanged.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, connection.ErrDeviceNotFound):
		return "no RaceBox device found - make sure the device is powered on and in range"
	case errors.Is(err, connection.ErrConnectTimeout):
		return "connection attempt timed out - the device may be paired to another host"
	case errors.Is(err, connection.ErrRetriesExhausted):
		return "gave up reconnecting after repeated failures - check the device and try again"
	case errors.Is(err, connection.ErrLinkLost):
		return "lost contact with the device"
	default:
		return err.Error()
	}
}
