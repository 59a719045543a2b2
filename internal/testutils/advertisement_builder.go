package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/bleproxy/internal/device"
)

// FakeAdvertisement is an in-memory device.Advertisement.
type FakeAdvertisement struct {
	name        string
	address     string
	addressType device.AddressType
	rssi        int
	services    []string
	manufData   []byte
	serviceData []device.ServiceData
	connectable bool
}

func (a *FakeAdvertisement) LocalName() string                 { return a.name }
func (a *FakeAdvertisement) ManufacturerData() []byte          { return a.manufData }
func (a *FakeAdvertisement) ServiceData() []device.ServiceData { return a.serviceData }
func (a *FakeAdvertisement) Services() []string                { return a.services }
func (a *FakeAdvertisement) Connectable() bool                 { return a.connectable }
func (a *FakeAdvertisement) RSSI() int                         { return a.rssi }
func (a *FakeAdvertisement) Addr() string                      { return a.address }
func (a *FakeAdvertisement) AddressType() device.AddressType   { return a.addressType }

// AdvertisementBuilder builds fake BLE advertisements for testing with a
// fluent API.
//
//	adv := testutils.NewAdvertisementBuilder().
//	    WithAddress("A4:C1:38:ED:C0:21").
//	    WithName("LYWSD03MMC").
//	    WithRSSI(-60).
//	    WithServiceData("fe95", payload).
//	    Build()
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder creates a builder for a public-address advertisement.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		adv: FakeAdvertisement{
			address:     "AA:BB:CC:DD:EE:FF",
			addressType: device.AddressPublic,
			rssi:        -60,
		},
	}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.address = addr
	return b
}

// WithAddressType sets the LE address type.
func (b *AdvertisementBuilder) WithAddressType(t device.AddressType) *AdvertisementBuilder {
	b.adv.addressType = t
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.adv.services = append(b.adv.services, device.NormalizeUUID(u))
	}
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.manufData = data
	return b
}

// WithServiceData appends a service-data entry for the given service UUID.
func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	b.adv.serviceData = append(b.adv.serviceData, device.ServiceData{
		UUID: device.NormalizeUUID(uuid),
		Data: data,
	})
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Service data values are byte arrays keyed by UUID.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	var spec struct {
		Name        *string          `json:"name"`
		Address     *string          `json:"address"`
		AddressType *string          `json:"addressType"`
		RSSI        *int             `json:"rssi"`
		Services    []string         `json:"services"`
		RawService  map[string][]int `json:"serviceData"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &spec); err != nil {
		panic(fmt.Sprintf("FromJSON: failed to unmarshal advertisement: %v", err))
	}

	if spec.Name != nil {
		b.WithName(*spec.Name)
	}
	if spec.Address != nil {
		b.WithAddress(*spec.Address)
	}
	if spec.AddressType != nil {
		b.WithAddressType(parseAddressType(*spec.AddressType))
	}
	if spec.RSSI != nil {
		b.WithRSSI(*spec.RSSI)
	}
	b.WithServices(spec.Services...)
	for uuid, ints := range spec.RawService {
		data := make([]byte, len(ints))
		for i, v := range ints {
			data[i] = byte(v)
		}
		b.WithServiceData(uuid, data)
	}
	return b
}

// Build returns a snapshot of the configured advertisement.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := b.adv
	adv.services = append([]string(nil), b.adv.services...)
	adv.serviceData = append([]device.ServiceData(nil), b.adv.serviceData...)
	return &adv
}

func parseAddressType(s string) device.AddressType {
	for t := device.AddressPublic; t <= device.AddressRPARandom; t++ {
		if t.String() == s {
			return t
		}
	}
	panic(fmt.Sprintf("unknown address type %q", s))
}
