package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/bleproxy/internal/device"
)

// addressTyper is implemented by the Linux HCI advertisement; other backends
// do not expose the LE address type and are reported as public.
type addressTyper interface {
	AddressType() uint8
}

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement interface
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper
func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string        { return a.adv.LocalName() }
func (a *BLEAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *BLEAdvertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int                { return a.adv.RSSI() }

// Addr returns the upper-case MAC address. A nil address yields "".
func (a *BLEAdvertisement) Addr() string {
	addr := a.adv.Addr()
	if addr == nil {
		return ""
	}
	return device.NormalizeAddress(addr.String())
}

func (a *BLEAdvertisement) AddressType() device.AddressType {
	if at, ok := a.adv.(addressTyper); ok {
		return device.AddressType(at.AddressType())
	}
	return device.AddressPublic
}

func (a *BLEAdvertisement) ServiceData() []device.ServiceData {
	bleServiceData := a.adv.ServiceData()
	result := make([]device.ServiceData, len(bleServiceData))
	for i, sd := range bleServiceData {
		result[i] = device.ServiceData{
			UUID: device.NormalizeUUID(sd.UUID.String()),
			Data: sd.Data,
		}
	}
	return result
}

func (a *BLEAdvertisement) Services() []string {
	bleServices := a.adv.Services()
	result := make([]string, len(bleServices))
	for i, svc := range bleServices {
		result[i] = device.NormalizeUUID(svc.String())
	}
	return result
}

// Unwrap returns the underlying ble.Advertisement for internal use within go-ble package
func (a *BLEAdvertisement) Unwrap() ble.Advertisement {
	return a.adv
}
