package xiaomi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ServiceUUID is the normalized service-data UUID of MiBeacon frames.
const ServiceUUID = "fe95"

// frame control bits (first byte)
const (
	frameEncrypted     = 0x08
	frameHasCapability = 0x20
	frameHasObject     = 0x40
)

var (
	ErrTooShort       = errors.New("payload too short")
	ErrNoObject       = errors.New("frame carries no object data")
	ErrUnknownProduct = errors.New("unknown product id")
	ErrEncrypted      = errors.New("payload is encrypted")
	ErrMalformed      = errors.New("malformed object")
)

// products maps MiBeacon product ids to model names.
var products = map[uint16]string{
	0x0098: "HHCCJCY01",
	0x01AA: "LYWSDCGQ",
	0x015D: "HHCCPOT002",
	0x0153: "YM-K1501",
	0x0113: "WX08ZM",
	0x02DF: "JQJCY01YM",
	0x0347: "CGG1",
	0x0387: "MHO-C401",
	0x03BC: "GCLS002",
	0x03DD: "MUE4094RT",
	0x045B: "LYWSD02",
	0x055B: "LYWSD03MMC",
	0x0576: "CGD1",
	0x066F: "CGDK2",
	0x07F6: "MJYD02YLA",
	0x0A83: "CGPR1",
}

// Header is the decoded MiBeacon frame header.
type Header struct {
	ProductID     uint16
	Model         string
	FrameCounter  uint8
	Encrypted     bool
	HasCapability bool
	// PayloadOffset is where the object list starts: frame control (2),
	// product id (2), frame counter (1), MAC (6) and optional capability (1).
	PayloadOffset int
}

// ParseHeader decodes the MiBeacon frame header from raw service data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < 5 {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrTooShort, len(data))
	}

	fc := data[0]
	if fc&frameHasObject == 0 {
		return Header{}, ErrNoObject
	}

	h := Header{
		ProductID:     binary.LittleEndian.Uint16(data[2:4]),
		FrameCounter:  data[4],
		Encrypted:     fc&frameEncrypted != 0,
		HasCapability: fc&frameHasCapability != 0,
		PayloadOffset: 11,
	}
	if h.HasCapability {
		h.PayloadOffset = 12
	}

	model, ok := products[h.ProductID]
	if !ok {
		return Header{}, fmt.Errorf("%w: 0x%04X", ErrUnknownProduct, h.ProductID)
	}
	h.Model = model

	return h, nil
}
