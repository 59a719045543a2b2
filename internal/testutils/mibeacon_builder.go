package testutils

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// MiBeaconBuilder assembles MiBeacon (0xFE95) service-data frames.
//
//	payload := testutils.NewMiBeaconBuilder().
//	    WithFrameCounter(7).
//	    WithTemperatureHumidity(21.5, 48.2).
//	    Build()
type MiBeaconBuilder struct {
	product    uint16
	counter    uint8
	mac        [6]byte
	capability bool
	encrypted  bool
	noObject   bool
	objects    []byte
}

// NewMiBeaconBuilder creates a builder for an LYWSD03MMC frame.
func NewMiBeaconBuilder() *MiBeaconBuilder {
	return &MiBeaconBuilder{
		product: 0x055B,
		counter: 1,
		mac:     [6]byte{0xA4, 0xC1, 0x38, 0xED, 0xC0, 0x21},
	}
}

func (b *MiBeaconBuilder) WithProduct(id uint16) *MiBeaconBuilder {
	b.product = id
	return b
}

func (b *MiBeaconBuilder) WithFrameCounter(counter uint8) *MiBeaconBuilder {
	b.counter = counter
	return b
}

// WithMAC sets the sender address written into the frame.
func (b *MiBeaconBuilder) WithMAC(mac string) *MiBeaconBuilder {
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		panic(fmt.Sprintf("invalid MAC %q", mac))
	}
	for i, p := range parts {
		var v byte
		if _, err := fmt.Sscanf(p, "%02X", &v); err != nil {
			panic(fmt.Sprintf("invalid MAC %q: %v", mac, err))
		}
		b.mac[i] = v
	}
	return b
}

func (b *MiBeaconBuilder) WithCapability() *MiBeaconBuilder {
	b.capability = true
	return b
}

func (b *MiBeaconBuilder) Encrypted() *MiBeaconBuilder {
	b.encrypted = true
	return b
}

// WithoutObjectFlag clears the "object data present" frame-control bit.
func (b *MiBeaconBuilder) WithoutObjectFlag() *MiBeaconBuilder {
	b.noObject = true
	return b
}

// WithObject appends a raw object of the given type.
func (b *MiBeaconBuilder) WithObject(typ byte, value ...byte) *MiBeaconBuilder {
	b.objects = append(b.objects, typ, 0x10, byte(len(value)))
	b.objects = append(b.objects, value...)
	return b
}

func (b *MiBeaconBuilder) WithTemperature(celsius float64) *MiBeaconBuilder {
	return b.WithObject(0x04, le16(int16(math.Round(celsius*10)))...)
}

func (b *MiBeaconBuilder) WithHumidity(percent float64) *MiBeaconBuilder {
	return b.WithObject(0x06, le16(int16(math.Round(percent*10)))...)
}

func (b *MiBeaconBuilder) WithTemperatureHumidity(celsius, percent float64) *MiBeaconBuilder {
	v := append(le16(int16(math.Round(celsius*10))), le16(int16(math.Round(percent*10)))...)
	return b.WithObject(0x0D, v...)
}

func (b *MiBeaconBuilder) WithBattery(percent uint8) *MiBeaconBuilder {
	return b.WithObject(0x0A, percent)
}

// Build returns the encoded frame.
func (b *MiBeaconBuilder) Build() []byte {
	fc := byte(0x10) // MAC included
	if !b.noObject {
		fc |= 0x40
	}
	if b.capability {
		fc |= 0x20
	}
	if b.encrypted {
		fc |= 0x08
	}

	frame := []byte{fc, 0x20}
	frame = binary.LittleEndian.AppendUint16(frame, b.product)
	frame = append(frame, b.counter)
	for i := 5; i >= 0; i-- {
		frame = append(frame, b.mac[i])
	}
	if b.capability {
		frame = append(frame, 0x08)
	}
	return append(frame, b.objects...)
}

func le16(v int16) []byte {
	return binary.LittleEndian.AppendUint16(nil, uint16(v))
}
