//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func(opts ...ble.Option) (ble.Device, error) {
	d, err := linux.NewDevice(opts...)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func deviceOptions(adapter string) ([]ble.Option, error) {
	idx, err := AdapterIndex(adapter)
	if err != nil {
		return nil, err
	}
	return []ble.Option{ble.OptDeviceID(idx)}, nil
}
