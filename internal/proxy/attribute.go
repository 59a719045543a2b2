package proxy

import "fmt"

// Attribute is one measured quantity of a sensor.
type Attribute uint8

const (
	Temperature Attribute = iota
	Humidity
	BatteryLevel
	Conductivity
	Illuminance
	Moisture
	Tablet
	IsActive
	HasMotion
	IsLight
)

type attributeInfo struct {
	label string
	unit  string
	icon  string
}

var attributeTable = [...]attributeInfo{
	Temperature:  {"temperature", "°C", "mdi:thermometer"},
	Humidity:     {"humidity", "%", "mdi:water-percent"},
	BatteryLevel: {"battery_level", "%", "mdi:battery"},
	Conductivity: {"conductivity", "µS/cm", ""},
	Illuminance:  {"illuminance", "lx", ""},
	Moisture:     {"moisture", "%", "mdi:water-percent"},
	Tablet:       {"tablet", "%", ""},
	IsActive:     {"is_active", "", ""},
	HasMotion:    {"has_motion", "", ""},
	IsLight:      {"is_light", "", ""},
}

// String returns the label used in topics and discovery names.
func (a Attribute) String() string {
	if int(a) < len(attributeTable) {
		return attributeTable[a].label
	}
	return fmt.Sprintf("attribute(%d)", uint8(a))
}

// Unit returns the unit of measurement, empty when the attribute has none.
func (a Attribute) Unit() string {
	if int(a) < len(attributeTable) {
		return attributeTable[a].unit
	}
	return ""
}

// Icon returns the dashboard icon, empty when the attribute has none.
func (a Attribute) Icon() string {
	if int(a) < len(attributeTable) {
		return attributeTable[a].icon
	}
	return ""
}

// ParseAttribute maps a label back to its Attribute.
func ParseAttribute(label string) (Attribute, bool) {
	for i, info := range attributeTable {
		if info.label == label {
			return Attribute(i), true
		}
	}
	return 0, false
}
