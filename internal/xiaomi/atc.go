package xiaomi

import (
	"encoding/binary"
	"fmt"
)

// ATCServiceUUID is the normalized service-data UUID used by the ATC1441 and
// pvvx custom thermometer firmware.
const ATCServiceUUID = "181a"

const (
	atcFormatLen  = 13
	pvvxFormatLen = 15
)

// ATCFrame is a decoded custom-firmware advertisement.
type ATCFrame struct {
	MAC          string
	FrameCounter uint8
	VoltageMV    int
	Reading      Reading
}

// DecodeATC decodes both custom firmware layouts.
//
// ATC1441 (13 bytes, big endian): MAC(6), temperature s16 0.1°C, humidity u8,
// battery u8, battery mV u16, frame counter u8.
//
// pvvx (15 bytes, little endian): MAC(6, reversed), temperature s16 0.01°C,
// humidity u16 0.01%, battery mV u16, battery u8, frame counter u8, flags u8.
func DecodeATC(data []byte) (ATCFrame, error) {
	switch len(data) {
	case atcFormatLen:
		return decodeATC1441(data), nil
	case pvvxFormatLen:
		return decodePVVX(data), nil
	default:
		return ATCFrame{}, fmt.Errorf("%w: custom format expects %d or %d bytes, got %d", ErrMalformed, atcFormatLen, pvvxFormatLen, len(data))
	}
}

func decodeATC1441(data []byte) ATCFrame {
	return ATCFrame{
		MAC:          fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", data[0], data[1], data[2], data[3], data[4], data[5]),
		VoltageMV:    int(binary.BigEndian.Uint16(data[10:12])),
		FrameCounter: data[12],
		Reading: Reading{
			Model:        "ATC",
			Temperature:  float(float64(int16(binary.BigEndian.Uint16(data[6:8]))) / 10),
			Humidity:     float(float64(data[8])),
			BatteryLevel: float(float64(data[9])),
		},
	}
}

func decodePVVX(data []byte) ATCFrame {
	return ATCFrame{
		MAC:          fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", data[5], data[4], data[3], data[2], data[1], data[0]),
		VoltageMV:    int(binary.LittleEndian.Uint16(data[10:12])),
		FrameCounter: data[13],
		Reading: Reading{
			Model:        "PVVX",
			Temperature:  float(float64(int16(binary.LittleEndian.Uint16(data[6:8]))) / 100),
			Humidity:     float(float64(binary.LittleEndian.Uint16(data[8:10])) / 100),
			BatteryLevel: float(float64(data[12])),
		},
	}
}
