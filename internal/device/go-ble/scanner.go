package goble

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ble "github.com/go-ble/ble"
	"github.com/srg/bleproxy/internal/device"
)

// bleScanner wraps ble.Device to implement a device.ScanningDevice interface
type bleScanner struct {
	dev ble.Device
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement.
// Cancellation of ctx is not reported as an error.
func (s *bleScanner) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	err := s.dev.Scan(ctx, allowDup, bleHandler)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return NormalizeError(err)
	}
	return nil
}

// Close stops the device. On Linux this closes the HCI user channel, which
// hands the controller back to BlueZ.
func (s *bleScanner) Close() error {
	return s.dev.Stop()
}

// AdapterIndex parses an adapter name such as "hci1". Empty means hci0.
func AdapterIndex(adapter string) (int, error) {
	if adapter == "" {
		return 0, nil
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(adapter, "hci"))
	if err != nil || idx < 0 || !strings.HasPrefix(adapter, "hci") {
		return 0, fmt.Errorf("invalid adapter name %q", adapter)
	}
	return idx, nil
}

// NewScanner creates a device.ScanningDevice backed by the platform BLE
// device for adapter.
func NewScanner(adapter string) (device.ScanningDevice, error) {
	opts, err := deviceOptions(adapter)
	if err != nil {
		return nil, err
	}
	dev, err := DeviceFactory(opts...)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &bleScanner{dev: dev}, nil
}
