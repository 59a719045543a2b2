package xiaomi

import (
	"encoding/binary"
	"fmt"
)

// object types carried in the MiBeacon object list
const (
	objMotion          = 0x03
	objTemperature     = 0x04
	objHumidity        = 0x06
	objIlluminance     = 0x07
	objMoisture        = 0x08
	objConductivity    = 0x09
	objBattery         = 0x0A
	objTempHumidity    = 0x0D
	objMotionIllum     = 0x0F
	objActive          = 0x12
	objTablet          = 0x13
	objLight           = 0x18
	lightThresholdLux  = 100
	maxObjectValueSize = 4
)

// ParseMessage decodes the object list that follows the header. Each object
// is laid out as type(1), 0x10 or 0x00(1), length(1), value(length). At least
// one recognised object is required.
func ParseMessage(data []byte, h Header) (Reading, error) {
	r := Reading{Model: h.Model}

	if h.Encrypted {
		return r, ErrEncrypted
	}
	if len(data) < h.PayloadOffset+4 {
		return r, fmt.Errorf("%w: object list needs %d bytes, have %d", ErrTooShort, h.PayloadOffset+4, len(data))
	}

	payload := data[h.PayloadOffset:]
	decoded := false
	for len(payload) > 3 {
		if payload[1] != 0x10 && payload[1] != 0x00 {
			if decoded {
				break
			}
			return r, fmt.Errorf("%w: fixed byte 0x%02X", ErrMalformed, payload[1])
		}
		size := int(payload[2])
		if size < 1 || size > maxObjectValueSize || len(payload) < 3+size {
			if decoded {
				break
			}
			return r, fmt.Errorf("%w: object 0x%02X has length %d", ErrMalformed, payload[0], size)
		}
		if parseObject(payload[0], payload[3:3+size], &r) {
			decoded = true
		}
		payload = payload[3+size:]
	}

	if !decoded {
		return r, fmt.Errorf("%w: no known object", ErrMalformed)
	}
	return r, nil
}

func parseObject(typ byte, v []byte, r *Reading) bool {
	switch {
	case typ == objMotion && len(v) == 1:
		r.HasMotion = flag(v[0] != 0)
	case typ == objTemperature && len(v) == 2:
		r.Temperature = float(float64(int16(binary.LittleEndian.Uint16(v))) / 10)
	case typ == objHumidity && len(v) == 2:
		r.Humidity = float(float64(binary.LittleEndian.Uint16(v)) / 10)
	case (typ == objIlluminance || typ == objMotionIllum) && len(v) == 3:
		lux := uint32(v[0]) | uint32(v[1])<<8 | uint32(v[2])<<16
		r.Illuminance = float(float64(lux))
		r.IsLight = flag(lux >= lightThresholdLux)
		if typ == objMotionIllum {
			r.HasMotion = flag(true)
		}
	case typ == objMoisture && len(v) == 1:
		r.Moisture = float(float64(v[0]))
	case typ == objConductivity && len(v) == 2:
		r.Conductivity = float(float64(binary.LittleEndian.Uint16(v)))
	case typ == objBattery && len(v) == 1:
		r.BatteryLevel = float(float64(v[0]))
	case typ == objTempHumidity && len(v) == 4:
		r.Temperature = float(float64(int16(binary.LittleEndian.Uint16(v[0:2]))) / 10)
		r.Humidity = float(float64(binary.LittleEndian.Uint16(v[2:4])) / 10)
	case typ == objActive && len(v) == 1:
		r.IsActive = flag(v[0] != 0)
	case typ == objTablet && len(v) == 1:
		r.Tablet = float(float64(v[0]))
	case typ == objLight && len(v) == 1:
		r.IsLight = flag(v[0] != 0)
	default:
		return false
	}
	return true
}
