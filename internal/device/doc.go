// Package device defines the platform-neutral view of BLE advertisements
// consumed by the proxy: the Advertisement and ScanningDevice interfaces,
// LE address types, and the connection sentinel errors shared by the BLE
// backend and the MQTT transport.
//
// Concrete go-ble backed implementations live in the go-ble subpackage.
package device
