//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func(opts ...ble.Option) (ble.Device, error) {
	d, err := darwin.NewDevice(opts...)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// CoreBluetooth picks the adapter itself.
func deviceOptions(adapter string) ([]ble.Option, error) {
	if _, err := AdapterIndex(adapter); err != nil {
		return nil, err
	}
	return nil, nil
}
