package proxy

import (
	"sort"
	"time"

	"github.com/cornelk/hashmap"
)

// DeviceSnapshot is the latest known state of a tracked device.
type DeviceSnapshot struct {
	Name        string             `json:"name"`
	Address     string             `json:"address"`
	Model       string             `json:"model"`
	RSSI        int                `json:"rssi"`
	AddressType string             `json:"address_type"`
	LastSeen    time.Time          `json:"last_seen"`
	Values      map[string]float64 `json:"values"`
}

// Registry keeps the last reading of every device. The event loop writes it;
// any goroutine may read it. Stored snapshots are never mutated in place.
type Registry struct {
	devices *hashmap.Map[string, *DeviceSnapshot]
}

func NewRegistry() *Registry {
	return &Registry{devices: hashmap.New[string, *DeviceSnapshot]()}
}

// Update merges values into the snapshot stored under s.Name.
func (r *Registry) Update(s DeviceSnapshot, values map[string]float64) {
	merged := make(map[string]float64, len(values))
	if prev, ok := r.devices.Get(s.Name); ok {
		for k, v := range prev.Values {
			merged[k] = v
		}
	}
	for k, v := range values {
		merged[k] = v
	}
	s.Values = merged
	r.devices.Set(s.Name, &s)
}

// Get returns a copy of the snapshot for name.
func (r *Registry) Get(name string) (DeviceSnapshot, bool) {
	s, ok := r.devices.Get(name)
	if !ok {
		return DeviceSnapshot{}, false
	}
	return *s, true
}

// Snapshot returns all devices ordered by name.
func (r *Registry) Snapshot() []DeviceSnapshot {
	out := make([]DeviceSnapshot, 0, r.devices.Len())
	r.devices.Range(func(_ string, s *DeviceSnapshot) bool {
		out = append(out, *s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Len() int {
	return r.devices.Len()
}
