// Package xiaomi decodes the service-data payloads broadcast by Xiaomi and
// Qingping environmental sensors: MiBeacon frames (service UUID 0xFE95) and
// the ATC/pvvx custom firmware formats (service UUID 0x181A).
//
// Encrypted MiBeacon payloads are recognised and rejected; no key material
// is handled here.
package xiaomi
