package main

import (
	"errors"

	"github.com/srg/bleproxy/internal/device"
)

// FormatUserError turns well-known failures into actionable messages.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable the adapter and try again"
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth is not supported on this platform"
	case errors.Is(err, device.ErrNotConnected):
		return "not connected: " + err.Error()
	default:
		return err.Error()
	}
}
