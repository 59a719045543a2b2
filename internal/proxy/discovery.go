package proxy

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

const (
	// TopicBase prefixes every state topic.
	TopicBase = "ble_proxy"

	discoveryPrefix = "homeassistant/sensor"
	deviceModel     = "ble_proxy"
	manufacturer    = "johnmu"
)

// DiscoveryDevice groups sensors of one physical device in the dashboard.
type DiscoveryDevice struct {
	Identifiers  string `json:"identifiers"`
	Name         string `json:"name"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
}

// Discovery is the Home Assistant MQTT discovery document for one sensor.
type Discovery struct {
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	Icon              string          `json:"icon"`
	Name              string          `json:"name"`
	StateTopic        string          `json:"state_topic"`
	UniqueID          string          `json:"unique_id"`
	Device            DiscoveryDevice `json:"device"`
}

// SanitizeID lower-cases s and replaces every non alphanumeric character
// with an underscore.
func SanitizeID(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// ObjectID is the sanitized unique id of a (device, attribute) sensor.
func ObjectID(deviceName string, attr Attribute) string {
	return SanitizeID(deviceName + "__" + attr.String())
}

// StateTopic is where values of attr reported by deviceName are published.
func StateTopic(deviceName string, attr Attribute) string {
	return fmt.Sprintf("%s/%s/%s/state", TopicBase, deviceName, attr)
}

// DiscoveryTopic is where the discovery document for the sensor is published.
func DiscoveryTopic(deviceName string, attr Attribute) string {
	return fmt.Sprintf("%s/%s/%s/config", discoveryPrefix, deviceModel, ObjectID(deviceName, attr))
}

// NewDiscovery builds the discovery document for a sensor.
func NewDiscovery(deviceName string, attr Attribute) Discovery {
	return Discovery{
		UnitOfMeasurement: attr.Unit(),
		Icon:              attr.Icon(),
		Name:              deviceName + " " + attr.String(),
		StateTopic:        StateTopic(deviceName, attr),
		UniqueID:          ObjectID(deviceName, attr),
		Device: DiscoveryDevice{
			Identifiers:  deviceName,
			Name:         deviceName,
			Model:        deviceModel,
			Manufacturer: manufacturer,
		},
	}
}

// Payload encodes the document.
func (d Discovery) Payload() ([]byte, error) {
	return json.Marshal(d)
}
