package goble

import (
	"errors"
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/bleproxy/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdvertisement struct {
	addr        ble.Addr
	serviceData []ble.ServiceData
	services    []ble.UUID
}

func (s *stubAdvertisement) LocalName() string              { return "LYWSD03MMC" }
func (s *stubAdvertisement) ManufacturerData() []byte       { return nil }
func (s *stubAdvertisement) ServiceData() []ble.ServiceData { return s.serviceData }
func (s *stubAdvertisement) Services() []ble.UUID           { return s.services }
func (s *stubAdvertisement) OverflowService() []ble.UUID    { return nil }
func (s *stubAdvertisement) TxPowerLevel() int              { return 0 }
func (s *stubAdvertisement) Connectable() bool              { return false }
func (s *stubAdvertisement) SolicitedService() []ble.UUID   { return nil }
func (s *stubAdvertisement) RSSI() int                      { return -71 }
func (s *stubAdvertisement) Addr() ble.Addr                 { return s.addr }

type hciStubAdvertisement struct {
	stubAdvertisement
	addrType uint8
}

func (s *hciStubAdvertisement) AddressType() uint8 { return s.addrType }

func TestBLEAdvertisement(t *testing.T) {
	stub := &stubAdvertisement{
		addr: ble.NewAddr("a4:c1:38:ed:c0:21"),
		serviceData: []ble.ServiceData{
			{UUID: ble.UUID16(0xfe95), Data: []byte{0x50, 0x20}},
		},
		services: []ble.UUID{ble.UUID16(0x181a)},
	}

	adv := NewBLEAdvertisement(stub)

	assert.Equal(t, "A4:C1:38:ED:C0:21", adv.Addr())
	assert.Equal(t, "LYWSD03MMC", adv.LocalName())
	assert.Equal(t, -71, adv.RSSI())
	assert.Equal(t, device.AddressPublic, adv.AddressType())
	assert.Equal(t, []string{"181a"}, adv.Services())

	sd := adv.ServiceData()
	require.Len(t, sd, 1)
	assert.Equal(t, "fe95", sd[0].UUID)
	assert.Equal(t, []byte{0x50, 0x20}, sd[0].Data)
}

func TestBLEAdvertisementAddressType(t *testing.T) {
	stub := &hciStubAdvertisement{
		stubAdvertisement: stubAdvertisement{addr: ble.NewAddr("11:22:33:44:55:66")},
		addrType:          3,
	}

	adv := NewBLEAdvertisement(stub)

	assert.Equal(t, device.AddressRPARandom, adv.AddressType())
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantOff bool
	}{
		{name: "nil", err: nil},
		{name: "darwin powered off", err: errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), wantOff: true},
		{name: "linux adapter down", err: errors.New("can't init hci: network is down"), wantOff: true},
		{name: "unrelated", err: errors.New("permission denied")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.wantOff, errors.Is(got, device.ErrBluetoothOff))
			assert.ErrorContains(t, got, tt.err.Error())
		})
	}
}
